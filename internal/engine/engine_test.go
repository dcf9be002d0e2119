package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	"armalloc/internal/bandit"
	"armalloc/internal/history"
)

func TestRunKeepsOrderAndRecordsFailures(t *testing.T) {
	snap := history.Snapshot{Experiments: []history.Experiment{
		{Name: "best", Arms: map[string]history.ArmCounts{
			"A": {Win: 3, Loss: 1, Total: 4},
			"B": {Win: 2, Loss: 2, Total: 4},
			"C": {Win: 1, Loss: 3, Total: 4},
		}},
		{Name: "empty", Arms: map[string]history.ArmCounts{}},
		{Name: "explore", Arms: map[string]history.ArmCounts{
			"A": {Total: 0},
			"B": {Win: 5, Total: 5},
			"C": {Total: 0},
		}},
		{Name: "bad-subtype", Subtype: "thompson", Arms: map[string]history.ArmCounts{"A": {Total: 1}}},
	}}
	results, err := New(2, bandit.SubtypeUCB1).Run(context.Background(), snap)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("results=%d", len(results))
	}
	for i, exp := range snap.Experiments {
		if results[i].Experiment != exp.Name {
			t.Fatalf("result %d is %s, want %s", i, results[i].Experiment, exp.Name)
		}
	}

	best := results[0]
	if best.Error != "" {
		t.Fatalf("unexpected error: %s", best.Error)
	}
	if !reflect.DeepEqual(best.Winners, []string{"A"}) || best.Allocation["A"] != 1 {
		t.Fatalf("unexpected allocation: %+v", best)
	}
	if len(best.Scores) != 3 || best.TotalTrial != 12 {
		t.Fatalf("unexpected scores/trials: %+v", best)
	}

	if !errors.Is(results[1].Err(), bandit.ErrEmptyHistory) {
		t.Fatalf("expected ErrEmptyHistory, got %v", results[1].Err())
	}
	if results[1].Error == "" {
		t.Fatalf("expected error text")
	}

	explore := results[2]
	if explore.Allocation["A"] != 0.5 || explore.Allocation["C"] != 0.5 || explore.Allocation["B"] != 0 {
		t.Fatalf("unexpected explore allocation: %v", explore.Allocation)
	}
	if explore.Scores != nil {
		t.Fatalf("expected no scores with unsampled arms")
	}

	if !errors.Is(results[3].Err(), bandit.ErrUnknownSubtype) {
		t.Fatalf("expected ErrUnknownSubtype, got %v", results[3].Err())
	}
}

func TestRunManyExperimentsConcurrently(t *testing.T) {
	var snap history.Snapshot
	for i := 0; i < 64; i++ {
		snap.Experiments = append(snap.Experiments, history.Experiment{
			Name: fmt.Sprintf("exp-%02d", i),
			Arms: map[string]history.ArmCounts{
				"x": {Win: float64(i), Total: i + 1},
				"y": {Win: 1, Total: 1},
			},
		})
	}
	results, err := New(8, bandit.SubtypeUCB1).Run(context.Background(), snap)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, res := range results {
		if res.Error != "" {
			t.Fatalf("%s: %s", res.Experiment, res.Error)
		}
		if sum := res.Allocation.Sum(); sum < 1-1e-9 || sum > 1+1e-9 {
			t.Fatalf("%s: sum=%v", res.Experiment, sum)
		}
		if res.Experiment != fmt.Sprintf("exp-%02d", i) {
			t.Fatalf("order broken at %d: %s", i, res.Experiment)
		}
	}
}

func TestRunHugeTotalsKeepBatchAlive(t *testing.T) {
	snap := history.Snapshot{Experiments: []history.Experiment{
		{Name: "huge", Arms: map[string]history.ArmCounts{
			"A": {Win: 1, Total: math.MaxInt64},
			"B": {Win: 1, Total: 1},
		}},
		{Name: "normal", Arms: map[string]history.ArmCounts{"A": {Win: 1, Total: 2}}},
	}}
	results, err := New(2, bandit.SubtypeUCB1).Run(context.Background(), snap)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if results[0].Error != "" || results[0].Allocation["B"] != 1 {
		t.Fatalf("unexpected huge result: %+v", results[0])
	}
	if results[0].TotalTrial != math.MaxInt {
		t.Fatalf("total trials=%d", results[0].TotalTrial)
	}
	if results[1].Allocation["A"] != 1 {
		t.Fatalf("unexpected normal result: %+v", results[1])
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap := history.Snapshot{Experiments: []history.Experiment{{Name: "a"}}}
	if _, err := New(1, bandit.SubtypeUCB1).Run(ctx, snap); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
