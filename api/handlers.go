package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ec2-pricing/db/clickhouse"
	"ec2-pricing/pricing"
)

// savingsPlanQuery reports whether a browse request targets the per-region
// savings plan catalogs, which cannot be queried without a region.
func savingsPlanQuery(savingsType string) bool {
	switch strings.ToLower(savingsType) {
	case "compute savings plan", "ec2 savings plan":
		return true
	}
	return false
}

// InstancePricingResponse is the API response for a single priced instance.
type InstancePricingResponse struct {
	InputData      pricing.InstanceConfig `json:"input_data"`
	PricingResults *pricing.PricingResult `json:"pricing_results"`
	Errors         []string               `json:"errors"`
}

// BulkPricingResponse wraps the order-preserved batch response.
type BulkPricingResponse struct {
	Instances []InstancePricingResponse `json:"instances"`
}

func (s *Server) handlePriceInstance(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var cfg pricing.InstanceConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	res, priced, err := s.engine.Price(r.Context(), cfg)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid input: %v", err))
		return
	}

	s.jsonResponse(w, http.StatusOK, InstancePricingResponse{
		InputData:      priced,
		PricingResults: res,
		Errors:         []string{},
	})
}

func (s *Server) handlePriceInstances(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var cfgs []pricing.InstanceConfig
	if err := json.NewDecoder(r.Body).Decode(&cfgs); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	items := s.engine.PriceBatch(r.Context(), cfgs)
	instances := make([]InstancePricingResponse, len(items))
	for i, item := range items {
		instances[i] = InstancePricingResponse{
			InputData:      item.Config,
			PricingResults: item.Result,
			Errors:         item.Errors,
		}
	}

	s.jsonResponse(w, http.StatusOK, BulkPricingResponse{Instances: instances})
}

func (s *Server) handlePricingData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := clickhouse.BrowseFilter{
		Region:         q.Get("region"),
		OS:             q.Get("os"),
		InstanceType:   q.Get("instance_type"),
		InstanceFamily: q.Get("instance_family"),
		Term:           q.Get("term"),
		SavingsType:    q.Get("savings_type"),
	}

	if savingsPlanQuery(filter.SavingsType) && filter.Region == "" {
		s.jsonError(w, http.StatusBadRequest, "region is required for savings plan queries")
		return
	}

	rows, err := s.warehouse.Browse(r.Context(), filter)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"results": rows,
		"count":   len(rows),
	})
}

// TelemetryEvent is a client-reported usage event. Events are logged, not
// stored.
type TelemetryEvent struct {
	EventType string                 `json:"event_type"`
	EventData map[string]interface{} `json:"event_data"`
	Timestamp string                 `json:"timestamp,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	var event TelemetryEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid event: %v", err))
		return
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	s.log.Info().
		Str("event_type", event.EventType).
		Interface("event_data", event.EventData).
		Str("timestamp", event.Timestamp).
		Str("user_id", event.UserID).
		Str("session_id", event.SessionID).
		Msg("telemetry event")

	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "logged"})
}
