package contracts

import "time"

// RunStatus is the lifecycle state of a run. A run is created RUNNING and
// terminates exactly once into one of the three terminal states.
type RunStatus string

const (
	RunStatusRunning       RunStatus = "RUNNING"
	RunStatusSuccess       RunStatus = "SUCCESS"
	RunStatusCanonicalHeld RunStatus = "CANONICAL_HELD"
	RunStatusFailed        RunStatus = "FAILED"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusCanonicalHeld || s == RunStatusFailed
}

// RunJob identifies which pipeline produced a run.
type RunJob string

const (
	RunJobImportEOD        RunJob = "import_eod"
	RunJobRebuildCanonical RunJob = "rebuild_canonical"
)

// RunMode distinguishes runs that called providers from runs that replayed
// stored raw bars.
type RunMode string

const (
	RunModeFetch   RunMode = "FETCH"
	RunModeRebuild RunMode = "REBUILD"
)

// Run is one execution of import or rebuild. It is the permanent audit row:
// operators diagnose a run by reading its metrics and notes, never by
// re-deriving state from logs.
type Run struct {
	ID             int64
	Job            RunJob
	Mode           RunMode
	ParentRunID    *int64
	RawSourceRunID *int64 // rebuild lineage; nil for imports
	Timezone       string
	Cutoff         string // local wall-clock "HH:MM"
	FromDate       time.Time
	ToDate         time.Time
	TargetTickers  int
	TargetDays     int
	Status         RunStatus

	// Aggregate metrics, stored by the single finishing write.
	CoveragePct       float64
	FallbackPct       float64
	HardRejects       int
	SoftFlags         int
	DisagreeMajor     int
	MissingTradingDay int

	Notes      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// RunMetrics carries the aggregates written by the finishing write.
type RunMetrics struct {
	CoveragePct       float64
	FallbackPct       float64
	HardRejects       int
	SoftFlags         int
	DisagreeMajor     int
	MissingTradingDay int
}

// RunSummary is what the orchestrators return to callers (CLI, scheduler).
type RunSummary struct {
	RunID           int64
	Status          RunStatus
	Reason          string // first hold/failure reason, empty on success
	ExpectedPoints  int
	CanonicalPoints int
	CoveragePct     float64
	FallbackPct     float64
	HardRejects     int
	SoftFlags       int
	DisagreeMajor   int
	MissingDays     int
	Notes           []string
}

// NoteSeparator joins run notes into the single audit column.
const NoteSeparator = " | "
