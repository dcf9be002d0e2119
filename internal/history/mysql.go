package history

import (
	"context"
	"fmt"
	"time"

	"armalloc/internal/config"
	"armalloc/internal/db"
	"armalloc/internal/util"

	"github.com/pkg/errors"
)

// MySQLSource reads per-arm counters from a table with columns
// (experiment, arm, win, loss, total).
type MySQLSource struct {
	exec         *db.DB
	dsn          string
	table        string
	timeout      time.Duration
	ensureSchema bool
}

type countRow struct {
	experiment string
	arm        string
	win        float64
	loss       float64
	total      int
}

// NewMySQLSource opens a pool for cfg.DSN. No connection is made until Load.
func NewMySQLSource(cfg config.HistoryConfig) (*MySQLSource, error) {
	if !db.ValidIdent(cfg.Table) {
		return nil, errors.Errorf("invalid history table name %q", cfg.Table)
	}
	exec, err := db.Open(cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &MySQLSource{
		exec:         exec,
		dsn:          cfg.DSN,
		table:        cfg.Table,
		timeout:      time.Duration(cfg.QueryTimeoutMs) * time.Millisecond,
		ensureSchema: cfg.EnsureSchema,
	}, nil
}

// Close releases the connection pool.
func (m *MySQLSource) Close() error {
	return m.exec.Close()
}

// Load implements Source.
func (m *MySQLSource) Load(ctx context.Context) (Snapshot, error) {
	qctx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	if m.ensureSchema {
		if err := m.prepareSchema(qctx); err != nil {
			return Snapshot{}, err
		}
	}
	query := selectCountsSQL(m.table)
	util.Debugf("history query: %s", query)
	rows, err := m.exec.QueryContext(qctx, query)
	if err != nil {
		if db.IsMissingSchema(err) {
			return Snapshot{}, errors.Wrapf(err, "history table %s.%s is missing", m.exec.Database, m.table)
		}
		return Snapshot{}, errors.Wrap(err, "query history")
	}
	defer util.CloseWithErr(rows, "history rows")

	var out []countRow
	for rows.Next() {
		var r countRow
		if err := rows.Scan(&r.experiment, &r.arm, &r.win, &r.loss, &r.total); err != nil {
			return Snapshot{}, errors.Wrap(err, "scan history row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, errors.Wrap(err, "iterate history rows")
	}
	return collectRows(out)
}

// prepareSchema creates the database and counter table when missing, so a
// fresh deployment loads an empty snapshot instead of failing.
func (m *MySQLSource) prepareSchema(ctx context.Context) error {
	if err := db.EnsureDatabase(ctx, m.dsn, m.exec.Database); err != nil {
		return err
	}
	if err := m.exec.EnsureTable(ctx, m.table); err != nil {
		return err
	}
	util.Infof("ensured history table %s.%s", m.exec.Database, m.table)
	return nil
}

func selectCountsSQL(table string) string {
	return fmt.Sprintf("SELECT experiment, arm, win, loss, total FROM `%s` ORDER BY experiment, arm", table)
}

// collectRows groups rows into experiments, keeping first-seen order.
func collectRows(rows []countRow) (Snapshot, error) {
	index := make(map[string]int)
	var snap Snapshot
	for _, r := range rows {
		i, ok := index[r.experiment]
		if !ok {
			i = len(snap.Experiments)
			index[r.experiment] = i
			snap.Experiments = append(snap.Experiments, Experiment{
				Name: r.experiment,
				Arms: make(map[string]ArmCounts),
			})
		}
		arms := snap.Experiments[i].Arms
		if _, dup := arms[r.arm]; dup {
			return Snapshot{}, errors.Errorf("experiment %s has duplicate arm %s", r.experiment, r.arm)
		}
		arms[r.arm] = ArmCounts{Win: r.win, Loss: r.loss, Total: r.total}
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
