package mysql

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"hostel_booking/internal/domain"
)

// MySQL signals a victim transaction with 1213 (ER_LOCK_DEADLOCK) and a
// lock-wait timeout with 1205 (ER_LOCK_WAIT_TIMEOUT). Both mean the whole
// transaction should be rerun from scratch, so both get the same wrapper.
const (
	erLockWaitTimeout = 1205
	erLockDeadlock    = 1213
)

func wrapTransient(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == erLockDeadlock || me.Number == erLockWaitTimeout) {
		return fmt.Errorf("%w: %v", domain.ErrTxnTransient, err)
	}
	return err
}
