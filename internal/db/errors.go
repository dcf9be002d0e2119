package db

import (
	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// MySQL server error codes the history source reacts to.
// 1049 is an unknown database, 1146 a missing table.
const (
	errUnknownDatabase uint16 = 1049
	errNoSuchTable     uint16 = 1146
)

// MySQLErrorCode extracts the server error number, if err carries one.
func MySQLErrorCode(err error) (uint16, bool) {
	if err == nil {
		return 0, false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number, true
	}
	return 0, false
}

// IsMissingSchema reports whether err means the database or table is absent.
func IsMissingSchema(err error) bool {
	code, ok := MySQLErrorCode(err)
	return ok && (code == errUnknownDatabase || code == errNoSuchTable)
}
