package state

import (
	"context"
	"errors"
	"sync"

	"github.com/rfsavaris/raincast/internal/models"
)

// ErrCloudCoverTimeout is returned when a caller gives up waiting for the
// first cloud cover value.
var ErrCloudCoverTimeout = errors.New("timed out waiting for cloud cover")

// Cache holds the mutable process-wide state: the latest sensor reading,
// the latest cloud cover value and the last published forecast. All slots
// are last-writer-wins; there is no versioning or compare-and-swap.
type Cache struct {
	mu          sync.RWMutex
	reading     models.Reading
	hasReading  bool
	cloudCover  float64
	hasCloud    bool
	cloudReady  chan struct{}
	forecast    models.ForecastResult
	hasForecast bool
}

func NewCache() *Cache {
	return &Cache{cloudReady: make(chan struct{})}
}

// SetReading replaces the current reading unconditionally.
func (c *Cache) SetReading(r models.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reading = r
	c.hasReading = true
}

func (c *Cache) Reading() (models.Reading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reading, c.hasReading
}

// SetCloudCover replaces the cloud cover value. The first call opens the
// gate for any waiters blocked in WaitCloudCover.
func (c *Cache) SetCloudCover(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cloudCover = v
	if !c.hasCloud {
		c.hasCloud = true
		close(c.cloudReady)
	}
}

func (c *Cache) CloudCover() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cloudCover, c.hasCloud
}

// WaitCloudCover blocks until a cloud cover value has been set at least
// once, then returns the current value. The inference model's feature
// ordering requires cloud cover and cannot tolerate a missing value, so
// feature generation must not proceed before this returns. The wait is
// bounded by ctx; expiry yields ErrCloudCoverTimeout.
func (c *Cache) WaitCloudCover(ctx context.Context) (float64, error) {
	c.mu.RLock()
	if c.hasCloud {
		v := c.cloudCover
		c.mu.RUnlock()
		return v, nil
	}
	ready := c.cloudReady
	c.mu.RUnlock()

	select {
	case <-ready:
		v, _ := c.CloudCover()
		return v, nil
	case <-ctx.Done():
		return 0, ErrCloudCoverTimeout
	}
}

// SetForecast publishes the last known forecast. A failed invocation never
// calls this, so the previous value survives errors.
func (c *Cache) SetForecast(f models.ForecastResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forecast = f
	c.hasForecast = true
}

func (c *Cache) Forecast() (models.ForecastResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.forecast, c.hasForecast
}
