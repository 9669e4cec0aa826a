package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrNotFound is returned by point reads when no record matches.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned by inserts whose primary key already exists.
	ErrDuplicate = errors.New("duplicate record")
)

// isDuplicateKey 檢查 MySQL 1062 (Duplicate entry)
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
