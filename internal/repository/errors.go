// Package repository implements the booking engine's persistence port
// on MySQL.  All methods run against the transaction carried in the
// context when one is present (see Store.WithTx) and directly against
// the pool otherwise, so the same queries serve both the locked
// booking path and the advisory read path.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the store translates into booking
// semantics.  1062 is a duplicate-key violation; 1205 and 1213 mean the
// transaction lost a lock race and can be retried as a whole.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

func mysqlErrNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// isDuplicateEntry reports whether err is a unique-index violation.
func isDuplicateEntry(err error) bool {
	return mysqlErrNumber(err) == mysqlDuplicateEntry
}

// isContention reports whether err means the transaction was aborted by
// concurrent lock contention rather than by invalid input.
func isContention(err error) bool {
	n := mysqlErrNumber(err)
	return n == mysqlLockWaitTimeout || n == mysqlDeadlock
}
