package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/rfsavaris/raincast/internal/models"
	"github.com/rfsavaris/raincast/internal/predictor"
	"github.com/rfsavaris/raincast/internal/state"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type readingRequest struct {
	TempC      *float64 `json:"temp_c"`
	Humidity   *float64 `json:"humidity"`
	PressurePa *float64 `json:"pressure_pa"`
	UV         string   `json:"uv"`
	PrecipMM   *float64 `json:"precip_mm"`
}

func (s *Server) handleIngestReading(w http.ResponseWriter, r *http.Request) {
	var req readingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "malformed reading: "+err.Error())
		return
	}
	if req.TempC == nil || req.Humidity == nil || req.PressurePa == nil || req.UV == "" {
		jsonError(w, http.StatusBadRequest, "temp_c, humidity, pressure_pa and uv are required")
		return
	}

	reading := models.Reading{
		TempC:      *req.TempC,
		Humidity:   *req.Humidity,
		PressurePa: *req.PressurePa,
		UV:         req.UV,
	}
	if req.PrecipMM != nil {
		reading.PrecipMM = sql.NullFloat64{Float64: *req.PrecipMM, Valid: true}
	}

	if !s.gate.Accept(reading) {
		writeJSON(w, http.StatusOK, map[string]bool{"suppressed": true})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type cloudCoverRequest struct {
	CloudCover *float64 `json:"cloud_cover"`
}

func (s *Server) handleCloudCoverUpdate(w http.ResponseWriter, r *http.Request) {
	var req cloudCoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "malformed cloud cover update: "+err.Error())
		return
	}
	if req.CloudCover == nil {
		jsonError(w, http.StatusBadRequest, "cloud_cover is required")
		return
	}

	s.cache.SetCloudCover(*req.CloudCover)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTriggerForecast(w http.ResponseWriter, r *http.Request) {
	result, err := s.invoker.Generate(r.Context())
	if err != nil {
		var invErr *predictor.InvocationError
		switch {
		case errors.Is(err, predictor.ErrNoReading):
			jsonError(w, http.StatusConflict, err.Error())
		case errors.Is(err, predictor.ErrBusy):
			jsonError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, state.ErrCloudCoverTimeout):
			jsonError(w, http.StatusGatewayTimeout, err.Error())
		case errors.As(err, &invErr):
			log.Printf("api: inference failed: %v", invErr)
			jsonError(w, http.StatusBadGateway, invErr.Error())
		default:
			jsonError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	reading, _ := s.cache.Reading()
	cloudCover, _ := s.cache.CloudCover()
	if _, err := s.store.InsertRecordIfChanged(models.Record{
		TempC:           reading.TempC,
		Humidity:        reading.Humidity,
		PressurePa:      reading.PressurePa,
		UV:              reading.UV,
		PrecipMM:        reading.PrecipMM,
		CloudCover:      cloudCover,
		RainProbability: result.RainProbability,
	}); err != nil {
		jsonError(w, http.StatusInternalServerError, "persist record: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetForecast(w http.ResponseWriter, r *http.Request) {
	result, ok := s.cache.Forecast()
	if !ok {
		jsonError(w, http.StatusNotFound, "no forecast available yet")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = n
	}

	records, err := s.store.History(limit, offset)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []models.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountRecords()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"records": count,
	})
}
