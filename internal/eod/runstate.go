package eod

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wonny/pricecanon/internal/anomaly"
	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/pkg/logger"
)

// Detectors bundles the three post-selection detectors every run goes
// through.
type Detectors struct {
	Disagreement *anomaly.DisagreementDetector
	MissingDay   *anomaly.MissingDayDetector
	SoftQuality  *anomaly.SoftQualityEvaluator
}

// pipeline carries the run finishing machinery shared by the import and
// rebuild paths: coverage gating, detector application, hold cleanup and the
// single finishing write.
type pipeline struct {
	runs      contracts.RunRepository
	canonical contracts.CanonicalBarRepository
	detect    *Detectors
	policy    contracts.ImportPolicy
	logger    *logger.Logger
}

// finalize applies coverage gating and the three detectors, deletes canonical
// output on hold, and performs the single finishing write. rawRunID differs
// from runID only on the rebuild path, where raw rows belong to the source
// run.
func (p *pipeline) finalize(ctx context.Context, runID, rawRunID int64, win Window, st *runState) error {
	st.applyCoverageGate(p.policy.CoverageMinPct)
	st.appendProviderErrorNotes()

	disagree, err := p.detect.Disagreement.Compute(ctx, rawRunID, win.From, win.To, st.canonicalPoints)
	if err != nil {
		_, err = p.fail(ctx, runID, st, fmt.Sprintf("disagreement scan failed: %v", err), err)
		return err
	}
	st.applyDisagreement(disagree)

	missing, err := p.detect.MissingDay.Compute(ctx, runID, win.From, win.To, st.targetTickers)
	if err != nil {
		_, err = p.fail(ctx, runID, st, fmt.Sprintf("coverage scan failed: %v", err), err)
		return err
	}
	st.applyMissingDay(missing)

	soft, err := p.detect.SoftQuality.Evaluate(ctx, runID, win.From, win.To, st.targetTickers)
	if err != nil {
		_, err = p.fail(ctx, runID, st, fmt.Sprintf("soft quality scan failed: %v", err), err)
		return err
	}
	st.applySoftQuality(soft)

	if st.status == contracts.RunStatusCanonicalHeld {
		deleted, err := p.canonical.DeleteByRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("delete held canonical rows of run %d: %w", runID, err)
		}
		st.note(fmt.Sprintf("canonical_rows_deleted=%d", deleted))
	}

	if err := p.runs.Finish(ctx, runID, st.status, st.metrics(), st.joinedNotes()); err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}

	p.logger.WithRun(runID).WithFields(map[string]interface{}{
		"status":    string(st.status),
		"coverage":  st.coveragePct(),
		"canonical": st.canonicalPoints,
	}).Info("Run finished")
	return nil
}

// fail records a fatal mid-run error as a FAILED terminal state. The run row
// survives as the audit trail for the aborted attempt.
func (p *pipeline) fail(ctx context.Context, runID int64, st *runState, note string, cause error) (*contracts.RunSummary, error) {
	st.status = contracts.RunStatusFailed
	if st.reason == "" {
		st.reason = note
	}
	st.note(note)

	if err := p.runs.Finish(ctx, runID, contracts.RunStatusFailed, st.metrics(), st.joinedNotes()); err != nil {
		p.logger.WithRun(runID).WithError(err).Error("Failed to record run failure")
	}
	return nil, fmt.Errorf("run %d failed: %w", runID, cause)
}

// runState accumulates per-run metrics and notes until the finishing write.
type runState struct {
	runID         int64
	targetTickers int
	targetDays    int

	canonicalPoints int
	fallbacks       int
	hardRejects     int
	softFlags       int
	disagreeMajor   int
	missingDays     int

	providerErrors map[string]int // "source/code" -> count

	status contracts.RunStatus
	reason string
	notes  []string
}

func newRunState(runID int64, targetTickers, targetDays int) *runState {
	return &runState{
		runID:          runID,
		targetTickers:  targetTickers,
		targetDays:     targetDays,
		providerErrors: make(map[string]int),
		status:         contracts.RunStatusSuccess,
	}
}

func (s *runState) tallyProviderError(source, code string) {
	s.providerErrors[source+"/"+code]++
}

func (s *runState) coveragePct() float64 {
	expected := s.targetTickers * s.targetDays
	if expected == 0 {
		return 0
	}
	return float64(s.canonicalPoints) / float64(expected) * 100
}

func (s *runState) fallbackPct() float64 {
	if s.canonicalPoints == 0 {
		return 0
	}
	return float64(s.fallbacks) / float64(s.canonicalPoints) * 100
}

// hold flips the run to CANONICAL_HELD, keeping the first hold reason.
func (s *runState) hold(reason string) {
	s.status = contracts.RunStatusCanonicalHeld
	if s.reason == "" {
		s.reason = reason
	}
	s.note("hold: " + reason)
}

func (s *runState) note(n string) {
	s.notes = append(s.notes, n)
}

func (s *runState) joinedNotes() string {
	return strings.Join(s.notes, contracts.NoteSeparator)
}

func (s *runState) applyCoverageGate(minPct float64) {
	if s.coveragePct() < minPct {
		s.hold(contracts.HoldCoverageBelowMin)
		s.note(fmt.Sprintf("coverage_pct=%.1f below min=%.1f", s.coveragePct(), minPct))
	}
}

// appendProviderErrorNotes surfaces the top-3 error codes by count.
func (s *runState) appendProviderErrorNotes() {
	if len(s.providerErrors) == 0 {
		return
	}

	type tally struct {
		key   string
		count int
	}
	tallies := make([]tally, 0, len(s.providerErrors))
	for k, c := range s.providerErrors {
		tallies = append(tallies, tally{k, c})
	}
	sort.Slice(tallies, func(a, b int) bool {
		if tallies[a].count != tallies[b].count {
			return tallies[a].count > tallies[b].count
		}
		return tallies[a].key < tallies[b].key
	})
	if len(tallies) > 3 {
		tallies = tallies[:3]
	}
	for _, t := range tallies {
		s.note(fmt.Sprintf("provider_errors %s=%d", t.key, t.count))
	}
}

func (s *runState) applyDisagreement(res *anomaly.DisagreementResult) {
	s.disagreeMajor = res.Major
	if res.Major > 0 {
		s.note(fmt.Sprintf("disagree_major=%d ratio=%.4f", res.Major, res.Ratio))
	}
	if res.Hold {
		s.hold(res.HoldReason)
	}
}

func (s *runState) applyMissingDay(res *anomaly.CoverageResult) {
	s.missingDays = res.MissingDays
	if res.MissingDays > 0 {
		s.note(fmt.Sprintf("missing_days=%d", res.MissingDays))
	}
	if res.LowCoverageDays > 0 {
		s.note(fmt.Sprintf("low_coverage_days=%d", res.LowCoverageDays))
	}
	if res.Hold {
		s.hold(res.HoldReason)
	}
}

func (s *runState) applySoftQuality(res *anomaly.SoftQualityResult) {
	s.softFlags += res.SoftFlags

	rules := make([]string, 0, len(res.RuleCounts))
	for rule := range res.RuleCounts {
		rules = append(rules, rule)
	}
	sort.Strings(rules)
	for _, rule := range rules {
		s.note(fmt.Sprintf("soft_quality %s=%d", rule, res.RuleCounts[rule]))
	}

	if res.Hold {
		s.hold(res.HoldReason)
	}
}

func (s *runState) metrics() contracts.RunMetrics {
	return contracts.RunMetrics{
		CoveragePct:       s.coveragePct(),
		FallbackPct:       s.fallbackPct(),
		HardRejects:       s.hardRejects,
		SoftFlags:         s.softFlags,
		DisagreeMajor:     s.disagreeMajor,
		MissingTradingDay: s.missingDays,
	}
}

func (s *runState) summary() *contracts.RunSummary {
	return &contracts.RunSummary{
		RunID:           s.runID,
		Status:          s.status,
		Reason:          s.reason,
		ExpectedPoints:  s.targetTickers * s.targetDays,
		CanonicalPoints: s.canonicalPoints,
		CoveragePct:     s.coveragePct(),
		FallbackPct:     s.fallbackPct(),
		HardRejects:     s.hardRejects,
		SoftFlags:       s.softFlags,
		DisagreeMajor:   s.disagreeMajor,
		MissingDays:     s.missingDays,
		Notes:           s.notes,
	}
}
