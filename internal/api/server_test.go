package api_test

import (
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rfsavaris/raincast/internal/api"
	"github.com/rfsavaris/raincast/internal/ingest"
	"github.com/rfsavaris/raincast/internal/models"
	"github.com/rfsavaris/raincast/internal/predictor"
	"github.com/rfsavaris/raincast/internal/state"
	"github.com/rfsavaris/raincast/internal/store"
)

type fixture struct {
	server *api.Server
	cache  *state.Cache
	store  *store.Store
}

func setup(t *testing.T, modelScript string) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatal(err)
	}

	cache := state.NewCache()
	gate := ingest.NewGate(cache)
	inv := predictor.New(cache, []string{"sh", "-c", "cat >/dev/null; " + modelScript})

	return &fixture{
		server: api.NewServer(st, cache, gate, inv, "8080"),
		cache:  cache,
		store:  st,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

const okModel = `echo '{"prediction": [[0.58, 0.42]]}'`

func TestHealth(t *testing.T) {
	t.Parallel()
	f := setup(t, okModel)

	w := f.do(t, "GET", "/health", "")
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s, want status ok", w.Body.String())
	}
}

func TestIngestReading(t *testing.T) {
	t.Parallel()
	f := setup(t, okModel)

	w := f.do(t, "POST", "/api/reading", `{"temp_c":23.5,"humidity":82,"pressure_pa":101100,"uv":"Low","precip_mm":0}`)
	if w.Code != 202 {
		t.Fatalf("status = %d, want 202", w.Code)
	}

	r, ok := f.cache.Reading()
	if !ok {
		t.Fatal("reading not cached")
	}
	if r.TempC != 23.5 || r.UV != "Low" {
		t.Errorf("cached reading = %+v", r)
	}
	if !r.PrecipMM.Valid || r.PrecipMM.Float64 != 0 {
		t.Errorf("PrecipMM = %+v, want valid 0", r.PrecipMM)
	}
}

func TestIngestReading_SuppressedWithinWindow(t *testing.T) {
	t.Parallel()
	f := setup(t, okModel)

	body := `{"temp_c":23.5,"humidity":82,"pressure_pa":101100,"uv":"Low"}`
	if w := f.do(t, "POST", "/api/reading", body); w.Code != 202 {
		t.Fatalf("first ingest: status = %d", w.Code)
	}

	w := f.do(t, "POST", "/api/reading", body)
	if w.Code != 200 {
		t.Fatalf("second ingest: status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"suppressed":true`) {
		t.Errorf("body = %s, want suppressed", w.Body.String())
	}
}

func TestIngestReading_Validation(t *testing.T) {
	t.Parallel()
	f := setup(t, okModel)

	if w := f.do(t, "POST", "/api/reading", `not json`); w.Code != 400 {
		t.Errorf("malformed body: status = %d, want 400", w.Code)
	}
	if w := f.do(t, "POST", "/api/reading", `{"temp_c":23.5}`); w.Code != 400 {
		t.Errorf("missing fields: status = %d, want 400", w.Code)
	}
}

func TestCloudCoverUpdate(t *testing.T) {
	t.Parallel()
	f := setup(t, okModel)

	w := f.do(t, "POST", "/api/cloudcover", `{"cloud_cover":40}`)
	if w.Code != 202 {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	v, ok := f.cache.CloudCover()
	if !ok || v != 40 {
		t.Errorf("cloud cover = %v (ok=%v), want 40", v, ok)
	}

	if w := f.do(t, "POST", "/api/cloudcover", `{}`); w.Code != 400 {
		t.Errorf("missing field: status = %d, want 400", w.Code)
	}
}

func TestGetForecast_NotYetAvailable(t *testing.T) {
	t.Parallel()
	f := setup(t, okModel)

	w := f.do(t, "GET", "/api/forecast", "")
	if w.Code != 404 {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestTriggerForecast_FullCycle(t *testing.T) {
	t.Parallel()
	f := setup(t, okModel)

	f.cache.SetReading(models.Reading{TempC: 23.5, Humidity: 82, PressurePa: 101100, UV: "Low"})
	f.cache.SetCloudCover(40)

	w := f.do(t, "POST", "/api/forecast", "")
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var result models.ForecastResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.RainProbability != 0.42 {
		t.Errorf("RainProbability = %v, want 0.42", result.RainProbability)
	}

	// The cycle persisted a row and published the forecast.
	if rec, _ := f.store.LatestRecord(); rec == nil || rec.RainProbability != 0.42 {
		t.Errorf("latest record = %+v, want persisted row", rec)
	}
	if w := f.do(t, "GET", "/api/forecast", ""); w.Code != 200 {
		t.Errorf("GET after trigger: status = %d, want 200", w.Code)
	}
}

func TestTriggerForecast_NoReading(t *testing.T) {
	t.Parallel()
	f := setup(t, okModel)
	f.cache.SetCloudCover(40)

	w := f.do(t, "POST", "/api/forecast", "")
	if w.Code != 409 {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestTriggerForecast_Busy(t *testing.T) {
	t.Parallel()
	f := setup(t, `sleep 0.5; echo '{"prediction": [[0.58, 0.42]]}'`)

	f.cache.SetReading(models.Reading{TempC: 23.5, Humidity: 82, PressurePa: 101100, UV: "Low"})
	f.cache.SetCloudCover(40)

	done := make(chan int, 1)
	go func() {
		w := f.do(t, "POST", "/api/forecast", "")
		done <- w.Code
	}()

	time.Sleep(150 * time.Millisecond)

	if w := f.do(t, "POST", "/api/forecast", ""); w.Code != 429 {
		t.Fatalf("concurrent trigger: status = %d, want 429", w.Code)
	}
	if code := <-done; code != 200 {
		t.Fatalf("first trigger: status = %d, want 200", code)
	}
}

func TestTriggerForecast_InvocationError(t *testing.T) {
	t.Parallel()
	f := setup(t, `echo 'garbage'`)

	f.cache.SetReading(models.Reading{TempC: 23.5, Humidity: 82, PressurePa: 101100, UV: "Low"})
	f.cache.SetCloudCover(40)

	w := f.do(t, "POST", "/api/forecast", "")
	if w.Code != 502 {
		t.Fatalf("status = %d, want 502", w.Code)
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()
	f := setup(t, okModel)

	for i := 0; i < 3; i++ {
		rec := models.Record{TempC: 20 + float64(i), Humidity: 50, PressurePa: 101000, UV: "Low", CloudCover: 10, RainProbability: 0.1}
		if _, err := f.store.InsertRecordIfChanged(rec); err != nil {
			t.Fatal(err)
		}
	}

	w := f.do(t, "GET", "/api/history?limit=2", "")
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var records []models.Record
	if err := json.Unmarshal(w.Body.Bytes(), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
	if records[0].TempC != 22 {
		t.Errorf("first record TempC = %v, want newest first", records[0].TempC)
	}

	if w := f.do(t, "GET", "/api/history?limit=abc", ""); w.Code != 400 {
		t.Errorf("bad limit: status = %d, want 400", w.Code)
	}
}

func TestHistory_EmptyIsArray(t *testing.T) {
	t.Parallel()
	f := setup(t, okModel)

	w := f.do(t, "GET", "/api/history", "")
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %s, want []", got)
	}
}
