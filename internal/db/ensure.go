package db

import (
	"context"
	"fmt"
	"regexp"

	"armalloc/internal/config"
	"armalloc/internal/util"

	"github.com/pkg/errors"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether name can be used unescaped as a database or
// table name.
func ValidIdent(name string) bool {
	return identPattern.MatchString(name)
}

// EnsureDatabase creates the database if it does not exist.
func EnsureDatabase(ctx context.Context, dsn string, dbName string) error {
	if dbName == "" {
		return nil
	}
	if !ValidIdent(dbName) {
		return errors.Errorf("invalid database name %q", dbName)
	}
	exec, err := Open(config.AdminDSN(dsn))
	if err != nil {
		return err
	}
	defer util.CloseWithErr(exec, "db exec")
	_, err = exec.ExecContext(ctx, createDatabaseSQL(dbName))
	return errors.Wrapf(err, "create database %s", dbName)
}

// EnsureTable creates the per-arm counter table if it does not exist.
func (d *DB) EnsureTable(ctx context.Context, table string) error {
	if !ValidIdent(table) {
		return errors.Errorf("invalid table name %q", table)
	}
	_, err := d.ExecContext(ctx, createCountsTableSQL(table))
	return errors.Wrapf(err, "create table %s", table)
}

func createDatabaseSQL(dbName string) string {
	return fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", dbName)
}

func createCountsTableSQL(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"experiment VARCHAR(191) NOT NULL, "+
		"arm VARCHAR(191) NOT NULL, "+
		"win DOUBLE NOT NULL DEFAULT 0, "+
		"loss DOUBLE NOT NULL DEFAULT 0, "+
		"total BIGINT NOT NULL DEFAULT 0, "+
		"PRIMARY KEY (experiment, arm))", table)
}
