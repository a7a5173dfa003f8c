package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/rfsavaris/raincast/internal/metrics"
	"github.com/rfsavaris/raincast/internal/state"
)

const DefaultPollInterval = 15 * time.Minute

// CloudCoverPoller keeps the cloud cover slot of the state cache fresh by
// polling Open-Meteo, the same source the model was trained on. An external
// updater can still push values through the HTTP boundary; whichever writes
// last wins.
type CloudCoverPoller struct {
	cache    *state.Cache
	client   *http.Client
	circuit  *gobreaker.CircuitBreaker
	baseURL  string
	lat, lon float64
	interval time.Duration
}

func NewCloudCoverPoller(cache *state.Cache, lat, lon float64) *CloudCoverPoller {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &CloudCoverPoller{
		cache:    cache,
		client:   &http.Client{Timeout: 30 * time.Second},
		circuit:  cb,
		baseURL:  "https://api.open-meteo.com/v1/forecast",
		lat:      lat,
		lon:      lon,
		interval: DefaultPollInterval,
	}
}

// SetBaseURL overrides the Open-Meteo endpoint, for tests.
func (p *CloudCoverPoller) SetBaseURL(url string) { p.baseURL = url }

// SetInterval overrides the polling cadence.
func (p *CloudCoverPoller) SetInterval(d time.Duration) { p.interval = d }

// Run polls until ctx is cancelled. The first fetch happens immediately so
// the cloud cover gate opens as soon as the provider answers.
func (p *CloudCoverPoller) Run(ctx context.Context) {
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("cloudcover: shutting down")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *CloudCoverPoller) poll(ctx context.Context) {
	value, err := p.FetchOnce(ctx)
	if err != nil {
		metrics.CloudCoverFetches.WithLabelValues("error").Inc()
		log.Printf("cloudcover: fetch failed: %v", err)
		return
	}
	metrics.CloudCoverFetches.WithLabelValues("ok").Inc()
	p.cache.SetCloudCover(value)
}

type openMeteoResponse struct {
	Current struct {
		CloudCover *float64 `json:"cloud_cover"`
	} `json:"current"`
}

// FetchOnce retrieves the current cloud cover percentage, retrying
// transient failures with exponential backoff behind a circuit breaker.
func (p *CloudCoverPoller) FetchOnce(ctx context.Context) (float64, error) {
	url := fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&current=cloud_cover", p.baseURL, p.lat, p.lon)

	var body []byte
	operation := func() error {
		result, err := p.circuit.Execute(func() (interface{}, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			resp, err := p.client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return nil, fmt.Errorf("fetch cloud cover: status %d", resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				b, _ := io.ReadAll(resp.Body)
				return nil, backoff.Permanent(fmt.Errorf("fetch cloud cover: status %d: %s", resp.StatusCode, string(b)))
			}

			return io.ReadAll(resp.Body)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			return err
		}
		body = result.([]byte)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return 0, err
	}

	var data openMeteoResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return 0, fmt.Errorf("unmarshal: %w", err)
	}
	if data.Current.CloudCover == nil {
		return 0, fmt.Errorf("no cloud_cover field in response")
	}
	return *data.Current.CloudCover, nil
}
