// Package engine runs allocation policies over a snapshot of experiments.
package engine

import (
	"context"
	"time"

	"armalloc/internal/bandit"
	"armalloc/internal/history"
	"armalloc/internal/util"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one experiment's allocation.
type Result struct {
	Experiment string             `json:"experiment"`
	Subtype    bandit.Subtype     `json:"subtype"`
	Allocation bandit.Allocation  `json:"allocation,omitempty"`
	Winners    []string           `json:"winners,omitempty"`
	Scores     map[string]float64 `json:"scores,omitempty"`
	TotalTrial int                `json:"total_trials"`
	Error      string             `json:"error,omitempty"`
	err        error
}

// Err returns the failure that produced Error, if any.
func (r Result) Err() error {
	return r.err
}

// Engine fans experiments out over a bounded number of workers.
type Engine struct {
	Workers        int
	DefaultSubtype bandit.Subtype
}

// New builds an engine.
func New(workers int, subtype bandit.Subtype) *Engine {
	if workers <= 0 {
		workers = 1
	}
	return &Engine{Workers: workers, DefaultSubtype: subtype}
}

// Run allocates every experiment in snap. Results keep the snapshot order.
// Per-experiment failures are recorded on the result; Run only fails when
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context, snap history.Snapshot) ([]Result, error) {
	results := make([]Result, len(snap.Experiments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Workers)
	for i, exp := range snap.Experiments {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.allocate(exp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) allocate(exp history.Experiment) Result {
	start := time.Now()
	res := Result{Experiment: exp.Name}
	fail := func(err error) Result {
		res.err = err
		res.Error = err.Error()
		util.Warnf("experiment %s: %v", exp.Name, err)
		return res
	}

	subtype, err := exp.ResolveSubtype(e.DefaultSubtype)
	if err != nil {
		return fail(err)
	}
	res.Subtype = subtype
	hist, err := exp.HistoricalInfo()
	if err != nil {
		return fail(err)
	}
	res.TotalTrial = hist.TotalTrials()
	policy, err := bandit.New(subtype, hist)
	if err != nil {
		return fail(err)
	}
	alloc, err := policy.AllocateArms()
	if err != nil {
		return fail(err)
	}
	res.Allocation = alloc
	res.Winners = alloc.Winners()
	if scorer, ok := policy.(bandit.Scorer); ok {
		scores, err := scorer.Scores()
		if err != nil && !errors.Is(err, bandit.ErrScoresUndefined) {
			return fail(err)
		}
		res.Scores = scores
		for name, score := range scores {
			util.Debugf("experiment %s arm %s score=%.6f", exp.Name, name, score)
		}
	}
	util.Debugf("experiment %s allocated in %s winners=%v", exp.Name, time.Since(start), res.Winners)
	return res
}
