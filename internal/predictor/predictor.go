package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/rfsavaris/raincast/internal/metrics"
	"github.com/rfsavaris/raincast/internal/models"
	"github.com/rfsavaris/raincast/internal/state"
)

const (
	DefaultInferTimeout   = 60 * time.Second
	DefaultCloudCoverWait = 30 * time.Second
)

// Invoker orchestrates forecast generation: it gates on cloud cover,
// guarantees at most one concurrent inference subprocess, exchanges the
// JSON protocol over the process's standard streams and publishes the
// parsed result to the state cache.
type Invoker struct {
	cache          *state.Cache
	command        []string
	inferTimeout   time.Duration
	cloudCoverWait time.Duration

	// slot is the single-flight guard for the inference process. A send
	// acquires it, a receive releases it; a caller that cannot send
	// without blocking is rejected with ErrBusy instead of queued.
	slot chan struct{}
}

// New returns an Invoker that runs command (argv form, e.g.
// ["python3", "model/server.py"]) once per Generate call.
func New(cache *state.Cache, command []string) *Invoker {
	return &Invoker{
		cache:          cache,
		command:        command,
		inferTimeout:   DefaultInferTimeout,
		cloudCoverWait: DefaultCloudCoverWait,
		slot:           make(chan struct{}, 1),
	}
}

// SetInferTimeout bounds the subprocess wall time. On expiry the process
// is killed and the call fails with an InvocationError.
func (inv *Invoker) SetInferTimeout(d time.Duration) { inv.inferTimeout = d }

// SetCloudCoverWait bounds how long Generate waits for the first cloud
// cover value before giving up with state.ErrCloudCoverTimeout.
func (inv *Invoker) SetCloudCoverWait(d time.Duration) { inv.cloudCoverWait = d }

type inferRequest struct {
	Features []any `json:"features"`
}

type inferResponse struct {
	Prediction [][]float64 `json:"prediction"`
	Error      string      `json:"error"`
}

// Generate runs one forecast cycle: precondition check, cloud cover gate,
// single-flight acquisition, feature assembly, subprocess exchange, result
// publication. A concurrent call finding the slot taken fails immediately
// with ErrBusy. A failed run leaves the previously published forecast
// intact, and nothing is retried.
func (inv *Invoker) Generate(ctx context.Context) (models.ForecastResult, error) {
	reading, ok := inv.cache.Reading()
	if !ok {
		metrics.ForecastsTotal.WithLabelValues("no_reading").Inc()
		return models.ForecastResult{}, ErrNoReading
	}

	waitCtx, cancel := context.WithTimeout(ctx, inv.cloudCoverWait)
	defer cancel()
	cloudCover, err := inv.cache.WaitCloudCover(waitCtx)
	if err != nil {
		metrics.ForecastsTotal.WithLabelValues("cloudcover_timeout").Inc()
		return models.ForecastResult{}, err
	}

	select {
	case inv.slot <- struct{}{}:
	default:
		metrics.BusyRejections.Inc()
		return models.ForecastResult{}, ErrBusy
	}
	defer func() { <-inv.slot }()

	result, err := inv.invoke(ctx, FeaturesV1(reading, cloudCover))
	if err != nil {
		metrics.ForecastsTotal.WithLabelValues("error").Inc()
		return models.ForecastResult{}, err
	}

	inv.cache.SetForecast(result)
	metrics.ForecastsTotal.WithLabelValues("success").Inc()
	return result, nil
}

// invoke spawns the inference process once, writes {"features": [...]} to
// stdin, collects stdout until exit and parses it. Stderr is logged but is
// not itself a failure.
func (inv *Invoker) invoke(ctx context.Context, features []any) (models.ForecastResult, error) {
	payload, err := json.Marshal(inferRequest{Features: features})
	if err != nil {
		return models.ForecastResult{}, fmt.Errorf("marshal features: %w", err)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, inv.inferTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, inv.command[0], inv.command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Don't wait on inherited pipe fds after the process itself is gone.
	cmd.WaitDelay = time.Second

	started := time.Now()
	runErr := cmd.Run()
	metrics.InferenceLatency.Observe(time.Since(started).Seconds())

	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		log.Printf("predictor: inference stderr: %s", msg)
	}

	if runErr != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			runErr = fmt.Errorf("deadline exceeded after %s: %w", inv.inferTimeout, runErr)
		}
		return models.ForecastResult{}, &InvocationError{Output: stdout.String(), Err: runErr}
	}

	var resp inferResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return models.ForecastResult{}, &InvocationError{Output: stdout.String(), Err: fmt.Errorf("parse output: %w", err)}
	}
	if resp.Error != "" {
		return models.ForecastResult{}, &InvocationError{Output: stdout.String(), Err: fmt.Errorf("model error: %s", resp.Error)}
	}
	if len(resp.Prediction) == 0 || len(resp.Prediction[0]) < 2 {
		return models.ForecastResult{}, &InvocationError{Output: stdout.String(), Err: fmt.Errorf("malformed prediction shape")}
	}

	return models.ForecastResult{
		RainProbability: resp.Prediction[0][1],
		FeatureVersion:  FeatureVersion,
		GeneratedAt:     time.Now().UTC(),
	}, nil
}
