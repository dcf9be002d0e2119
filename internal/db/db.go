// Package db opens MySQL connections for reading trial counts.
package db

import (
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// DB wraps a MySQL connection pool.
type DB struct {
	*sql.DB
	Database string
}

// Open parses dsn and opens a connection pool without dialing.
func Open(dsn string) (*DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse mysql dsn")
	}
	cfg.ParseTime = true
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "mysql connector")
	}
	pool := sql.OpenDB(connector)
	pool.SetMaxOpenConns(4)
	pool.SetConnMaxLifetime(5 * time.Minute)
	return &DB{DB: pool, Database: cfg.DBName}, nil
}
