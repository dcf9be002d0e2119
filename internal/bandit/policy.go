package bandit

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyHistory is returned when an allocation is requested over zero arms.
	ErrEmptyHistory = errors.New("historical info has no arms")
	// ErrUnknownSubtype is returned when no policy implements a subtype.
	ErrUnknownSubtype = errors.New("unknown bandit subtype")
	// ErrScoresUndefined is returned by Scores while some arm has no trials.
	ErrScoresUndefined = errors.New("scores undefined with unsampled arms")
	// ErrNoWinner is returned when no arm reaches the maximum score.
	ErrNoWinner = errors.New("no arm reached the maximum score")
)

// Subtype tags the concrete allocation rule a policy runs.
type Subtype string

const (
	// SubtypeUCB1 selects the UCB1 upper-confidence-bound rule.
	SubtypeUCB1 Subtype = "UCB1"
)

// Subtypes lists every subtype New can build.
func Subtypes() []Subtype {
	return []Subtype{SubtypeUCB1}
}

// ParseSubtype resolves a subtype name, ignoring case and surrounding spaces.
func ParseSubtype(raw string) (Subtype, error) {
	name := strings.TrimSpace(raw)
	for _, s := range Subtypes() {
		if strings.EqualFold(name, string(s)) {
			return s, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownSubtype, "%q", raw)
}

// Policy computes an allocation from the historical info it holds.
type Policy interface {
	// Subtype returns the tag the policy was built for.
	Subtype() Subtype
	// AllocateArms returns the allocation over every held arm.
	AllocateArms() (Allocation, error)
}

// Scorer is implemented by policies that rank arms by a numeric score.
type Scorer interface {
	Scores() (map[string]float64, error)
}

// New builds the policy registered for subtype.
func New(subtype Subtype, hist *HistoricalInfo) (Policy, error) {
	switch subtype {
	case SubtypeUCB1:
		return NewUCB1(hist), nil
	default:
		return nil, errors.Wrapf(ErrUnknownSubtype, "%q", string(subtype))
	}
}
