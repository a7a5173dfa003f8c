package ingest

import (
	"sync"
	"time"

	"github.com/rfsavaris/raincast/internal/metrics"
	"github.com/rfsavaris/raincast/internal/models"
	"github.com/rfsavaris/raincast/internal/state"
)

// DefaultMinSpacing is the duplicate-suppression window for inbound
// readings. The sensor occasionally re-sends within a few seconds; without
// spacing those re-sends would trigger spurious re-forecasts.
const DefaultMinSpacing = 5 * time.Second

// Gate applies the ingestion spacing policy in front of the state cache.
// A reading arriving within the window of the previously accepted one is
// dropped; first-in wins.
type Gate struct {
	cache      *state.Cache
	minSpacing time.Duration

	mu           sync.Mutex
	lastAccepted time.Time
	now          func() time.Time
}

func NewGate(cache *state.Cache) *Gate {
	return &Gate{
		cache:      cache,
		minSpacing: DefaultMinSpacing,
		now:        time.Now,
	}
}

// Accept caches the reading and reports true, or reports false when the
// reading falls inside the suppression window.
func (g *Gate) Accept(r models.Reading) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if !g.lastAccepted.IsZero() && now.Sub(g.lastAccepted) < g.minSpacing {
		metrics.ReadingsIngested.WithLabelValues("suppressed").Inc()
		return false
	}
	g.lastAccepted = now

	if r.ObservedAt.IsZero() {
		r.ObservedAt = now.UTC()
	}
	g.cache.SetReading(r)
	metrics.ReadingsIngested.WithLabelValues("accepted").Inc()
	return true
}
