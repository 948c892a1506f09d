// Package repository implements persistence on MySQL. Repositories return
// the sentinel errors below so that handlers can tell failure scenarios
// apart without inspecting driver errors.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when no row matches the requested id or key.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert or update violates a unique key,
// e.g. a second review by the same user for the same movie.
var ErrDuplicate = errors.New("duplicate")

// ErrInUse is returned when a row cannot be deleted because other rows
// still reference it.
var ErrInUse = errors.New("in use")

// ErrInvalidField is returned when a list query names a field that does
// not exist or cannot be used the way it was asked for.
var ErrInvalidField = errors.New("invalid field")

// MySQL server error numbers we translate.
const (
	mysqlDupEntry        = 1062
	mysqlBadField        = 1054
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
)

// mapError translates driver errors into the package sentinels. Errors it
// does not recognise are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDupEntry:
			return fmt.Errorf("%w: %s", ErrDuplicate, me.Message)
		case mysqlBadField:
			return fmt.Errorf("%w: %s", ErrInvalidField, me.Message)
		case mysqlRowIsReferenced:
			return fmt.Errorf("%w: %s", ErrInUse, me.Message)
		case mysqlNoReferencedRow:
			return fmt.Errorf("%w: %s", ErrNotFound, me.Message)
		}
	}
	return err
}

// expectOne maps a zero rows-affected result to ErrNotFound.
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
