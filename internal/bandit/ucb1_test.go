package bandit

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

const sumTolerance = 1e-9

func mustArm(t *testing.T, win, loss float64, total int) SampledArm {
	t.Helper()
	arm, err := NewSampledArm(win, loss, total)
	if err != nil {
		t.Fatalf("new sampled arm: %v", err)
	}
	return arm
}

func assertAllocation(t *testing.T, got Allocation, want map[string]float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("allocation=%v, want %v", got, want)
	}
	for name, p := range want {
		v, ok := got[name]
		if !ok {
			t.Fatalf("allocation missing arm %q: %v", name, got)
		}
		if v != p {
			t.Fatalf("allocation[%q]=%v, want %v", name, v, p)
		}
	}
}

func TestUCB1EmptyHistory(t *testing.T) {
	for _, hist := range []*HistoricalInfo{nil, NewHistoricalInfo(nil)} {
		_, err := NewUCB1(hist).AllocateArms()
		if !errors.Is(err, ErrEmptyHistory) {
			t.Fatalf("expected ErrEmptyHistory, got %v", err)
		}
	}
}

func TestUCB1UnsampledArmsWin(t *testing.T) {
	hist := NewHistoricalInfo(map[string]SampledArm{
		"A": mustArm(t, 0, 0, 0),
		"B": mustArm(t, 4, 1, 5),
		"C": mustArm(t, 0, 0, 0),
	})
	got, err := NewUCB1(hist).AllocateArms()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	assertAllocation(t, got, map[string]float64{"A": 0.5, "B": 0, "C": 0.5})
}

func TestUCB1SingleUnsampledAmongMany(t *testing.T) {
	hist := NewHistoricalInfo(map[string]SampledArm{
		"A": mustArm(t, 100, 0, 100),
		"B": mustArm(t, 50, 0, 50),
		"C": mustArm(t, 0, 0, 0),
	})
	got, err := NewUCB1(hist).AllocateArms()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	assertAllocation(t, got, map[string]float64{"A": 0, "B": 0, "C": 1})
}

func TestUCB1PicksBestBound(t *testing.T) {
	hist := NewHistoricalInfo(map[string]SampledArm{
		"A": mustArm(t, 3, 1, 4),
		"B": mustArm(t, 2, 2, 4),
		"C": mustArm(t, 1, 3, 4),
	})
	policy := NewUCB1(hist)
	got, err := policy.AllocateArms()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	assertAllocation(t, got, map[string]float64{"A": 1, "B": 0, "C": 0})

	scores, err := policy.Scores()
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	want := map[string]float64{"A": 1.614, "B": 1.114, "C": 0.614}
	for name, w := range want {
		if math.Abs(scores[name]-w) > 1e-3 {
			t.Fatalf("score[%q]=%v, want ~%v", name, scores[name], w)
		}
	}
}

func TestUCB1ExplorationBonusFavorsLessSampled(t *testing.T) {
	hist := NewHistoricalInfo(map[string]SampledArm{
		"veteran": mustArm(t, 10, 0, 10),
		"rookie":  mustArm(t, 1, 0, 1),
	})
	got, err := NewUCB1(hist).AllocateArms()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	assertAllocation(t, got, map[string]float64{"veteran": 0, "rookie": 1})
}

func TestUCB1TiesSplitEqually(t *testing.T) {
	hist := NewHistoricalInfo(map[string]SampledArm{
		"A": mustArm(t, 3, 1, 4),
		"B": mustArm(t, 3, 1, 4),
		"C": mustArm(t, 1, 3, 4),
	})
	got, err := NewUCB1(hist).AllocateArms()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	assertAllocation(t, got, map[string]float64{"A": 0.5, "B": 0.5, "C": 0})
}

func TestUCB1AllIdenticalArmsTie(t *testing.T) {
	arms := map[string]SampledArm{}
	for _, name := range []string{"a", "b", "c", "d"} {
		arms[name] = mustArm(t, 1, 1, 2)
	}
	got, err := NewUCB1(NewHistoricalInfo(arms)).AllocateArms()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	assertAllocation(t, got, map[string]float64{"a": 0.25, "b": 0.25, "c": 0.25, "d": 0.25})
}

func TestUCB1SingleArm(t *testing.T) {
	for _, total := range []int{1, 2, 7, 1000} {
		hist := NewHistoricalInfo(map[string]SampledArm{
			"only": mustArm(t, float64(total)/2, float64(total)/3, total),
		})
		got, err := NewUCB1(hist).AllocateArms()
		if err != nil {
			t.Fatalf("allocate total=%d: %v", total, err)
		}
		assertAllocation(t, got, map[string]float64{"only": 1})
	}
}

func TestUCB1RandomHistories(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		arms := map[string]SampledArm{}
		count := 1 + r.Intn(6)
		for i := 0; i < count; i++ {
			total := 1 + r.Intn(50)
			wins := r.Intn(total + 1)
			arms[string(rune('a'+i))] = mustArm(t, float64(wins), float64(total-wins), total)
		}
		// Duplicate an arm to exercise the symmetry rule.
		arms["twin"] = arms["a"]

		policy := NewUCB1(NewHistoricalInfo(arms))
		got, err := policy.AllocateArms()
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if math.Abs(got.Sum()-1) > sumTolerance {
			t.Fatalf("allocation sum=%v for %v", got.Sum(), got)
		}
		if got["twin"] != got["a"] {
			t.Fatalf("identical arms diverged: a=%v twin=%v", got["a"], got["twin"])
		}
		scores, err := policy.Scores()
		if err != nil {
			t.Fatalf("scores: %v", err)
		}
		best := math.Inf(-1)
		for _, s := range scores {
			best = math.Max(best, s)
		}
		for name, s := range scores {
			if s != best && got[name] != 0 {
				t.Fatalf("non-maximal arm %q got %v", name, got[name])
			}
			if s == best && got[name] == 0 {
				t.Fatalf("maximal arm %q got zero", name)
			}
		}
	}
}

func TestUCB1ScoresUndefinedWithUnsampled(t *testing.T) {
	hist := NewHistoricalInfo(map[string]SampledArm{
		"A": mustArm(t, 1, 0, 1),
		"B": mustArm(t, 0, 0, 0),
	})
	scores, err := NewUCB1(hist).Scores()
	if !errors.Is(err, ErrScoresUndefined) {
		t.Fatalf("expected ErrScoresUndefined, got %v", err)
	}
	if scores != nil {
		t.Fatalf("expected nil scores, got %v", scores)
	}
	if _, err := NewUCB1(NewHistoricalInfo(nil)).Scores(); !errors.Is(err, ErrEmptyHistory) {
		t.Fatalf("expected ErrEmptyHistory, got %v", err)
	}
}

func TestUCB1HugeTotalsDoNotOverflow(t *testing.T) {
	hist := NewHistoricalInfo(map[string]SampledArm{
		"A": mustArm(t, 1, 0, math.MaxInt64),
		"B": mustArm(t, 1, 0, 1),
	})
	policy := NewUCB1(hist)
	got, err := policy.AllocateArms()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	// B has the larger mean and the larger exploration bonus.
	assertAllocation(t, got, map[string]float64{"A": 0, "B": 1})

	scores, err := policy.Scores()
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	for name, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			t.Fatalf("score[%q]=%v", name, s)
		}
	}
	if hist.TotalTrials() != math.MaxInt {
		t.Fatalf("total trials=%d, want saturation", hist.TotalTrials())
	}
}

func TestWinningArmNamesNonFiniteScores(t *testing.T) {
	arms := map[string]SampledArm{
		"A": {win: math.NaN(), total: 1},
		"B": {win: math.NaN(), total: 1},
	}
	winners, err := WinningArmNames(arms)
	if !errors.Is(err, ErrNoWinner) {
		t.Fatalf("expected ErrNoWinner, got winners=%v err=%v", winners, err)
	}
}

func TestUnsampledArmNamesEmpty(t *testing.T) {
	if _, err := UnsampledArmNames(nil); !errors.Is(err, ErrEmptyHistory) {
		t.Fatalf("expected ErrEmptyHistory, got %v", err)
	}
	if _, err := WinningArmNames(map[string]SampledArm{}); !errors.Is(err, ErrEmptyHistory) {
		t.Fatalf("expected ErrEmptyHistory, got %v", err)
	}
}

func TestUCB1DoesNotMutateHistory(t *testing.T) {
	arms := map[string]SampledArm{"A": mustArm(t, 1, 0, 1)}
	hist := NewHistoricalInfo(arms)
	arms["B"] = mustArm(t, 0, 0, 0)
	got, err := NewUCB1(hist).AllocateArms()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	assertAllocation(t, got, map[string]float64{"A": 1})
	if hist.Len() != 1 {
		t.Fatalf("history changed: %v", hist.Names())
	}
}
