// Package bandit computes arm allocations from historical trial counts.
package bandit

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// ErrInvalidArm reports counts that cannot describe a sampled arm.
var ErrInvalidArm = errors.New("invalid sampled arm")

// SampledArm is an immutable snapshot of one arm's observed outcomes.
type SampledArm struct {
	win   float64
	loss  float64
	total int
}

// NewSampledArm validates and builds an arm snapshot.
func NewSampledArm(win, loss float64, total int) (SampledArm, error) {
	if win < 0 || math.IsNaN(win) || math.IsInf(win, 0) {
		return SampledArm{}, errors.Wrapf(ErrInvalidArm, "win=%v", win)
	}
	if loss < 0 || math.IsNaN(loss) || math.IsInf(loss, 0) {
		return SampledArm{}, errors.Wrapf(ErrInvalidArm, "loss=%v", loss)
	}
	if total < 0 {
		return SampledArm{}, errors.Wrapf(ErrInvalidArm, "total=%d", total)
	}
	return SampledArm{win: win, loss: loss, total: total}, nil
}

// Win returns the accumulated wins.
func (a SampledArm) Win() float64 { return a.win }

// Loss returns the accumulated losses.
func (a SampledArm) Loss() float64 { return a.loss }

// Total returns the number of trials.
func (a SampledArm) Total() int { return a.total }

// Unsampled reports whether the arm has never been tried.
func (a SampledArm) Unsampled() bool { return a.total == 0 }

// HistoricalInfo is the read-only experiment state at decision time.
type HistoricalInfo struct {
	arms map[string]SampledArm
}

// NewHistoricalInfo copies arms into a new snapshot.
func NewHistoricalInfo(arms map[string]SampledArm) *HistoricalInfo {
	copied := make(map[string]SampledArm, len(arms))
	for name, arm := range arms {
		copied[name] = arm
	}
	return &HistoricalInfo{arms: copied}
}

// Arms returns a copy of the arm-name to snapshot mapping.
func (h *HistoricalInfo) Arms() map[string]SampledArm {
	if h == nil {
		return map[string]SampledArm{}
	}
	out := make(map[string]SampledArm, len(h.arms))
	for name, arm := range h.arms {
		out[name] = arm
	}
	return out
}

// Arm looks up a single arm.
func (h *HistoricalInfo) Arm(name string) (SampledArm, bool) {
	if h == nil {
		return SampledArm{}, false
	}
	arm, ok := h.arms[name]
	return arm, ok
}

// Names returns the arm names in sorted order.
func (h *HistoricalInfo) Names() []string {
	if h == nil {
		return nil
	}
	names := make([]string, 0, len(h.arms))
	for name := range h.arms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of arms.
func (h *HistoricalInfo) Len() int {
	if h == nil {
		return 0
	}
	return len(h.arms)
}

// Empty reports whether the snapshot has no arms.
func (h *HistoricalInfo) Empty() bool {
	return h.Len() == 0
}

// TotalTrials sums the trial counts of every arm.
func (h *HistoricalInfo) TotalTrials() int {
	if h == nil {
		return 0
	}
	return totalTrials(h.arms)
}

// totalTrials saturates at math.MaxInt instead of wrapping.
func totalTrials(arms map[string]SampledArm) int {
	n := 0
	for _, arm := range arms {
		if arm.total > math.MaxInt-n {
			return math.MaxInt
		}
		n += arm.total
	}
	return n
}
