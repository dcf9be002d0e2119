package bandit

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// UCB1 allocates arms with the UCB1 upper-confidence-bound rule.
//
// Unsampled arms always win. Once every arm has been tried, each arm j is
// scored as
//
//	r_j = (win_j - loss_j) / total_j + sqrt(2 * ln(n) / total_j)
//
// where n is the total number of trials. Every arm whose score equals the
// maximum shares the allocation equally.
type UCB1 struct {
	hist *HistoricalInfo
}

// NewUCB1 builds a UCB1 policy over hist.
func NewUCB1(hist *HistoricalInfo) *UCB1 {
	return &UCB1{hist: hist}
}

// Subtype implements Policy.
func (p *UCB1) Subtype() Subtype {
	return SubtypeUCB1
}

// AllocateArms implements Policy.
func (p *UCB1) AllocateArms() (Allocation, error) {
	if p.hist.Empty() {
		return nil, ErrEmptyHistory
	}
	winners, err := WinningArmNames(p.hist.arms)
	if err != nil {
		return nil, err
	}
	return EqualAllocation(p.hist, winners), nil
}

// Scores returns the UCB1 score of every arm. It fails with
// ErrScoresUndefined while some arm is still unsampled.
func (p *UCB1) Scores() (map[string]float64, error) {
	unsampled, err := UnsampledArmNames(p.hist.Arms())
	if err != nil {
		return nil, err
	}
	if len(unsampled) > 0 {
		return nil, errors.Wrapf(ErrScoresUndefined, "unsampled arms %v", unsampled)
	}
	return ucb1Scores(p.hist.arms), nil
}

// UnsampledArmNames returns the sorted names of arms with zero trials.
func UnsampledArmNames(arms map[string]SampledArm) ([]string, error) {
	if len(arms) == 0 {
		return nil, ErrEmptyHistory
	}
	var names []string
	for name, arm := range arms {
		if arm.Unsampled() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// WinningArmNames returns the sorted names of the arms that should share
// the allocation: the unsampled arms if any exist, otherwise every arm
// tied for the best UCB1 score.
func WinningArmNames(arms map[string]SampledArm) ([]string, error) {
	if len(arms) == 0 {
		return nil, ErrEmptyHistory
	}
	unsampled, err := UnsampledArmNames(arms)
	if err != nil {
		return nil, err
	}
	if len(unsampled) > 0 {
		return unsampled, nil
	}

	scores := ucb1Scores(arms)
	best := math.Inf(-1)
	for _, score := range scores {
		if score > best {
			best = score
		}
	}
	// Exact equality: only identical scores tie.
	winners := make([]string, 0, 1)
	for name, score := range scores {
		if score == best {
			winners = append(winners, name)
		}
	}
	if len(winners) == 0 {
		return nil, errors.Wrapf(ErrNoWinner, "scores %v", scores)
	}
	sort.Strings(winners)
	return winners, nil
}

// ucb1Scores requires every arm to have at least one trial. n is summed in
// float64 so large counts cannot wrap.
func ucb1Scores(arms map[string]SampledArm) map[string]float64 {
	var n float64
	for _, arm := range arms {
		n += float64(arm.total)
	}
	scores := make(map[string]float64, len(arms))
	for name, arm := range arms {
		total := float64(arm.total)
		avg := (arm.win - arm.loss) / total
		scores[name] = avg + math.Sqrt(2.0*math.Log(n)/total)
	}
	return scores
}
