package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/internal/eod"
	"github.com/wonny/pricecanon/pkg/logger"
)

// RunHandler serves run audit rows and their canonical output.
type RunHandler struct {
	runs      contracts.RunRepository
	canonical contracts.CanonicalBarRepository
	logger    *logger.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(runs contracts.RunRepository, canonical contracts.CanonicalBarRepository, log *logger.Logger) *RunHandler {
	return &RunHandler{
		runs:      runs,
		canonical: canonical,
		logger:    log,
	}
}

// RunResponse is the JSON shape of one run.
type RunResponse struct {
	RunID          int64    `json:"run_id"`
	Job            string   `json:"job"`
	Mode           string   `json:"mode"`
	ParentRunID    *int64   `json:"parent_run_id,omitempty"`
	RawSourceRunID *int64   `json:"raw_source_run_id,omitempty"`
	Timezone       string   `json:"timezone"`
	Cutoff         string   `json:"cutoff"`
	FromDate       string   `json:"from_date"`
	ToDate         string   `json:"to_date"`
	TargetTickers  int      `json:"target_tickers"`
	TargetDays     int      `json:"target_days"`
	Status         string   `json:"status"`
	CoveragePct    float64  `json:"coverage_pct"`
	FallbackPct    float64  `json:"fallback_pct"`
	HardRejects    int      `json:"hard_rejects"`
	SoftFlags      int      `json:"soft_flags"`
	DisagreeMajor  int      `json:"disagree_major"`
	MissingDays    int      `json:"missing_trading_days"`
	Notes          []string `json:"notes"`
	StartedAt      string   `json:"started_at"`
	FinishedAt     string   `json:"finished_at,omitempty"`
}

func toRunResponse(run *contracts.Run) RunResponse {
	resp := RunResponse{
		RunID:          run.ID,
		Job:            string(run.Job),
		Mode:           string(run.Mode),
		ParentRunID:    run.ParentRunID,
		RawSourceRunID: run.RawSourceRunID,
		Timezone:       run.Timezone,
		Cutoff:         run.Cutoff,
		FromDate:       run.FromDate.Format("2006-01-02"),
		ToDate:         run.ToDate.Format("2006-01-02"),
		TargetTickers:  run.TargetTickers,
		TargetDays:     run.TargetDays,
		Status:         string(run.Status),
		CoveragePct:    run.CoveragePct,
		FallbackPct:    run.FallbackPct,
		HardRejects:    run.HardRejects,
		SoftFlags:      run.SoftFlags,
		DisagreeMajor:  run.DisagreeMajor,
		MissingDays:    run.MissingTradingDay,
		StartedAt:      run.StartedAt.Format(time.RFC3339),
	}
	if run.Notes != "" {
		resp.Notes = strings.Split(run.Notes, contracts.NoteSeparator)
	}
	if run.FinishedAt != nil {
		resp.FinishedAt = run.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

// List returns the most recent runs
// GET /api/runs?limit=20
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 500 {
			respondError(w, http.StatusBadRequest, "Invalid 'limit' (expected 1..500)")
			return
		}
		limit = parsed
	}

	runs, err := h.runs.List(ctx, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	out := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	respondJSON(w, http.StatusOK, out)
}

// Get returns one run
// GET /api/runs/{id}
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid run id")
		return
	}

	run, err := h.runs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, eod.ErrRunNotFound) {
			respondError(w, http.StatusNotFound, "Run not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get run")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve run")
		return
	}

	respondJSON(w, http.StatusOK, toRunResponse(run))
}

// CanonicalBarResponse is the JSON shape of one canonical row.
type CanonicalBarResponse struct {
	TickerID     int64    `json:"ticker_id"`
	TradeDate    string   `json:"trade_date"`
	ChosenSource string   `json:"chosen_source"`
	Reason       string   `json:"reason"`
	Flags        []string `json:"flags,omitempty"`
	Open         float64  `json:"open"`
	High         float64  `json:"high"`
	Low          float64  `json:"low"`
	Close        float64  `json:"close"`
	AdjClose     float64  `json:"adj_close"`
	Volume       int64    `json:"volume"`
}

// ListCanonical pages a run's canonical rows
// GET /api/runs/{id}/canonical?limit=100&offset=0
func (h *RunHandler) ListCanonical(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid run id")
		return
	}

	if _, err := h.runs.Get(ctx, id); err != nil {
		if errors.Is(err, eod.ErrRunNotFound) {
			respondError(w, http.StatusNotFound, "Run not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get run")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve run")
		return
	}

	limit := 100
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 1000 {
			respondError(w, http.StatusBadRequest, "Invalid 'limit' (expected 1..1000)")
			return
		}
		limit = parsed
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "Invalid 'offset'")
			return
		}
		offset = parsed
	}

	bars, err := h.canonical.ListByRun(ctx, id, limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list canonical bars")
		respondError(w, http.StatusInternalServerError, "Failed to list canonical bars")
		return
	}

	out := make([]CanonicalBarResponse, 0, len(bars))
	for _, bar := range bars {
		out = append(out, CanonicalBarResponse{
			TickerID:     bar.TickerID,
			TradeDate:    bar.TradeDate.Format("2006-01-02"),
			ChosenSource: bar.ChosenSource,
			Reason:       string(bar.Reason),
			Flags:        bar.Flags,
			Open:         bar.Open,
			High:         bar.High,
			Low:          bar.Low,
			Close:        bar.Close,
			AdjClose:     bar.AdjClose,
			Volume:       bar.Volume,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
