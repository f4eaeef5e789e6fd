package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/internal/eod"
	"github.com/wonny/pricecanon/pkg/logger"
)

type stubRunRepo struct {
	runs map[int64]*contracts.Run
}

func (s *stubRunRepo) Create(ctx context.Context, run *contracts.Run) (int64, error) {
	return 0, nil
}

func (s *stubRunRepo) Get(ctx context.Context, id int64) (*contracts.Run, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, eod.ErrRunNotFound
	}
	return run, nil
}

func (s *stubRunRepo) List(ctx context.Context, limit int) ([]*contracts.Run, error) {
	var out []*contracts.Run
	for _, run := range s.runs {
		out = append(out, run)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubRunRepo) Finish(ctx context.Context, id int64, status contracts.RunStatus, metrics contracts.RunMetrics, notes string) error {
	return nil
}

func (s *stubRunRepo) AppendNotes(ctx context.Context, id int64, note string) error {
	return nil
}

func (s *stubRunRepo) LatestSuccessImport(ctx context.Context, end time.Time) (*contracts.Run, error) {
	return nil, nil
}

func (s *stubRunRepo) SweepStuck(ctx context.Context, maxAge time.Duration) (int, error) {
	return 0, nil
}

type stubCanonicalRepo struct {
	bars []contracts.CanonicalBar
}

func (s *stubCanonicalRepo) UpsertBatch(ctx context.Context, bars []contracts.CanonicalBar) error {
	return nil
}

func (s *stubCanonicalRepo) DeleteByRun(ctx context.Context, runID int64) (int64, error) {
	return 0, nil
}

func (s *stubCanonicalRepo) CountByRun(ctx context.Context, runID int64) (int64, error) {
	return int64(len(s.bars)), nil
}

func (s *stubCanonicalRepo) CountByDay(ctx context.Context, runID int64, from, to time.Time) ([]contracts.DayCount, error) {
	return nil, nil
}

func (s *stubCanonicalRepo) ListByDay(ctx context.Context, runID int64, day time.Time) ([]contracts.CanonicalBar, error) {
	return nil, nil
}

func (s *stubCanonicalRepo) ListByRun(ctx context.Context, runID int64, limit, offset int) ([]contracts.CanonicalBar, error) {
	if offset >= len(s.bars) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.bars) {
		end = len(s.bars)
	}
	return s.bars[offset:end], nil
}

func sampleRun() *contracts.Run {
	finished := time.Date(2025, 11, 10, 23, 5, 0, 0, time.UTC)
	return &contracts.Run{
		ID:            7,
		Job:           contracts.RunJobImportEOD,
		Mode:          contracts.RunModeFetch,
		Timezone:      "America/New_York",
		Cutoff:        "17:30",
		FromDate:      time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC),
		ToDate:        time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC),
		TargetTickers: 3,
		TargetDays:    5,
		Status:        contracts.RunStatusSuccess,
		CoveragePct:   100,
		Notes:         "published=15 rejected=0",
		StartedAt:     time.Date(2025, 11, 10, 23, 0, 0, 0, time.UTC),
		FinishedAt:    &finished,
	}
}

func newRunRouter(h *RunHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/runs", h.List).Methods("GET")
	r.HandleFunc("/api/runs/{id:[0-9]+}", h.Get).Methods("GET")
	r.HandleFunc("/api/runs/{id:[0-9]+}/canonical", h.ListCanonical).Methods("GET")
	return r
}

func TestRunHandler_Get(t *testing.T) {
	repo := &stubRunRepo{runs: map[int64]*contracts.Run{7: sampleRun()}}
	h := NewRunHandler(repo, &stubCanonicalRepo{}, logger.NewNop())
	router := newRunRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs/7", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.RunID)
	assert.Equal(t, "import_eod", resp.Job)
	assert.Equal(t, "SUCCESS", resp.Status)
	assert.Equal(t, "2025-11-04", resp.FromDate)
	assert.Equal(t, []string{"published=15 rejected=0"}, resp.Notes)
	assert.NotEmpty(t, resp.FinishedAt)
}

func TestRunHandler_GetNotFound(t *testing.T) {
	h := NewRunHandler(&stubRunRepo{runs: map[int64]*contracts.Run{}}, &stubCanonicalRepo{}, logger.NewNop())
	router := newRunRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs/99", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunHandler_ListLimitValidation(t *testing.T) {
	h := NewRunHandler(&stubRunRepo{runs: map[int64]*contracts.Run{}}, &stubCanonicalRepo{}, logger.NewNop())
	router := newRunRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs?limit=0", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunHandler_ListCanonical(t *testing.T) {
	repo := &stubRunRepo{runs: map[int64]*contracts.Run{7: sampleRun()}}
	canonical := &stubCanonicalRepo{bars: []contracts.CanonicalBar{
		{
			RunID:        7,
			TickerID:     1,
			TradeDate:    time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC),
			ChosenSource: "stooq",
			Reason:       contracts.ReasonPriorityWin,
			Open:         100, High: 102, Low: 99, Close: 101, AdjClose: 101, Volume: 1000,
		},
		{
			RunID:        7,
			TickerID:     2,
			TradeDate:    time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC),
			ChosenSource: "marketarchive",
			Reason:       contracts.ReasonFallbackUsed,
			Flags:        []string{contracts.FlagVolumeMissing},
			Open:         50, High: 51, Low: 49, Close: 50.5, AdjClose: 50.5,
		},
	}}
	h := NewRunHandler(repo, canonical, logger.NewNop())
	router := newRunRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs/7/canonical?limit=1&offset=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []CanonicalBarResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "marketarchive", resp[0].ChosenSource)
	assert.Equal(t, "FALLBACK_USED", resp[0].Reason)
	assert.Equal(t, []string{"volume_missing"}, resp[0].Flags)
}

func TestRunHandler_ListCanonicalUnknownRun(t *testing.T) {
	h := NewRunHandler(&stubRunRepo{runs: map[int64]*contracts.Run{}}, &stubCanonicalRepo{}, logger.NewNop())
	router := newRunRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs/42/canonical", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
