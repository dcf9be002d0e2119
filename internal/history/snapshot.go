// Package history loads trial-count snapshots for allocation runs.
package history

import (
	"context"
	"sort"

	"armalloc/internal/bandit"
	"armalloc/internal/config"

	"github.com/pkg/errors"
)

// ArmCounts is the persisted outcome record of one arm.
type ArmCounts struct {
	Win   float64 `yaml:"win" json:"win"`
	Loss  float64 `yaml:"loss" json:"loss"`
	Total int     `yaml:"total" json:"total"`
}

// Experiment groups the arms competing in one decision.
type Experiment struct {
	Name    string               `yaml:"name" json:"name"`
	Subtype string               `yaml:"subtype,omitempty" json:"subtype,omitempty"`
	Arms    map[string]ArmCounts `yaml:"arms" json:"arms"`
}

// Snapshot is the full set of experiments read at one point in time.
type Snapshot struct {
	Experiments []Experiment `yaml:"experiments" json:"experiments"`
}

// Source loads a snapshot.
type Source interface {
	Load(ctx context.Context) (Snapshot, error)
}

// HistoricalInfo validates the counts and builds the policy input.
func (e Experiment) HistoricalInfo() (*bandit.HistoricalInfo, error) {
	arms := make(map[string]bandit.SampledArm, len(e.Arms))
	for name, counts := range e.Arms {
		arm, err := bandit.NewSampledArm(counts.Win, counts.Loss, counts.Total)
		if err != nil {
			return nil, errors.Wrapf(err, "experiment %s arm %s", e.Name, name)
		}
		arms[name] = arm
	}
	return bandit.NewHistoricalInfo(arms), nil
}

// ResolveSubtype returns the experiment's subtype or fallback when unset.
func (e Experiment) ResolveSubtype(fallback bandit.Subtype) (bandit.Subtype, error) {
	if e.Subtype == "" {
		return fallback, nil
	}
	return bandit.ParseSubtype(e.Subtype)
}

// Validate checks experiment names are present and unique.
func (s Snapshot) Validate() error {
	seen := make(map[string]struct{}, len(s.Experiments))
	for i, exp := range s.Experiments {
		if exp.Name == "" {
			return errors.Errorf("experiment #%d has no name", i)
		}
		if _, ok := seen[exp.Name]; ok {
			return errors.Errorf("duplicate experiment %q", exp.Name)
		}
		seen[exp.Name] = struct{}{}
	}
	return nil
}

// SortExperiments orders experiments by name.
func (s *Snapshot) SortExperiments() {
	sort.Slice(s.Experiments, func(i, j int) bool {
		return s.Experiments[i].Name < s.Experiments[j].Name
	})
}

// NewSource builds the source selected by cfg.Source.
func NewSource(cfg config.HistoryConfig) (Source, error) {
	switch cfg.Source {
	case config.HistorySourceFile:
		return NewFileSource(cfg.Path), nil
	case config.HistorySourceMySQL:
		return NewMySQLSource(cfg)
	default:
		return nil, errors.Errorf("unknown history source %q", cfg.Source)
	}
}
