package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/rfsavaris/raincast/internal/models"
	"github.com/rfsavaris/raincast/internal/predictor"
	"github.com/rfsavaris/raincast/internal/state"
	"github.com/rfsavaris/raincast/internal/store"
)

// Scheduler re-runs the forecast-and-persist cycle at the top of every
// hour so forecasts stay fresh with no request traffic. Every pipeline
// error is logged and swallowed; the next firing is unaffected.
type Scheduler struct {
	store   *store.Store
	cache   *state.Cache
	invoker *predictor.Invoker
	cron    *gocron.Scheduler
}

func New(st *store.Store, cache *state.Cache, invoker *predictor.Invoker) *Scheduler {
	return &Scheduler{
		store:   st,
		cache:   cache,
		invoker: invoker,
		cron:    gocron.NewScheduler(time.UTC),
	}
}

func (s *Scheduler) Start() error {
	_, err := s.cron.Cron("0 * * * *").Do(func() {
		log.Println("scheduler: running hourly forecast cycle")
		if err := s.RunOnce(context.Background()); err != nil {
			log.Printf("scheduler: forecast cycle failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule hourly cycle: %w", err)
	}

	s.cron.StartAsync()
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RunOnce executes one forecast-and-persist cycle. A Busy rejection means
// a request-triggered invocation is already mid-flight and will publish a
// result of its own; that is a benign skip, not an error.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	result, err := s.invoker.Generate(ctx)
	if errors.Is(err, predictor.ErrBusy) {
		log.Println("scheduler: invocation in flight elsewhere, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("generate forecast: %w", err)
	}

	reading, ok := s.cache.Reading()
	if !ok {
		return predictor.ErrNoReading
	}
	cloudCover, _ := s.cache.CloudCover()

	inserted, err := s.store.InsertRecordIfChanged(models.Record{
		TempC:           reading.TempC,
		Humidity:        reading.Humidity,
		PressurePa:      reading.PressurePa,
		UV:              reading.UV,
		PrecipMM:        reading.PrecipMM,
		CloudCover:      cloudCover,
		RainProbability: result.RainProbability,
	})
	if err != nil {
		return fmt.Errorf("persist record: %w", err)
	}
	if inserted {
		log.Printf("scheduler: persisted record (rain probability %.3f)", result.RainProbability)
	}
	return nil
}
