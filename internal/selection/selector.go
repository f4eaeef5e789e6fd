package selection

import (
	"time"

	"github.com/wonny/pricecanon/internal/contracts"
)

// Candidate is one source's gated bar competing for the canonical slot.
type Candidate struct {
	Source    string
	Bar       contracts.ProviderBar
	HardValid bool
	Flags     []string
}

// Pick is the selector's decision for one (ticker, date).
type Pick struct {
	Source string
	Reason contracts.SelectionReason
	Bar    contracts.ProviderBar
	Flags  []string
}

// Selector picks the canonical bar among candidates from N sources using the
// configured provider priority. Deterministic and side-effect free.
type Selector struct {
	priority contracts.ProviderPriority
}

// NewSelector creates a selector for the given priority order.
func NewSelector(priority contracts.ProviderPriority) *Selector {
	return &Selector{priority: priority}
}

// Select walks the priority order and returns the first hard-valid
// candidate, or nil when no candidate is hard-valid. A nil pick simply means
// the (ticker, date) pair is absent from canonical output; it is not an
// error.
func (s *Selector) Select(tradeDate time.Time, candidates map[string]Candidate) *Pick {
	if len(candidates) == 0 {
		return nil
	}

	for rank, source := range s.priority {
		cand, ok := candidates[source]
		if !ok || !cand.HardValid {
			continue
		}

		return &Pick{
			Source: source,
			Reason: s.reason(rank, candidates),
			Bar:    cand.Bar,
			Flags:  cand.Flags,
		}
	}

	return nil
}

// reason classifies a winning pick. ONLY_SOURCE wins over the priority
// reasons when exactly one candidate existed regardless of its rank.
func (s *Selector) reason(rank int, candidates map[string]Candidate) contracts.SelectionReason {
	if len(candidates) == 1 {
		return contracts.ReasonOnlySource
	}
	if rank == 0 {
		return contracts.ReasonPriorityWin
	}
	return contracts.ReasonFallbackUsed
}
