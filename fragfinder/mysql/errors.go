package mysql

import (
	"errors"
	"fmt"

	drv "github.com/go-sql-driver/mysql"
	"github.com/morikuni/failure"
	"github.com/sters/fragfinder/fragfinder"
	"github.com/sters/fragfinder/fragfinder/config"
)

// Client error numbers, as reported by libmysqlclient.
const (
	CRUnknownError   = 2000
	CRConnHostError  = 2003
	CodeInvalidInput = 1
)

// Describe turns err into the number and message printed as
// "Error <code>: <message>".
func Describe(err error) (int, string) {
	var me *drv.MySQLError
	if errors.As(err, &me) {
		return int(me.Number), me.Message
	}

	cause := fragfinder.RootCause(err)
	switch {
	case failure.Is(err, config.ErrConfig, fragfinder.ErrInvalidArgument):
		if msg, ok := failure.MessageOf(err); ok {
			return CodeInvalidInput, msg
		}
		return CodeInvalidInput, cause.Error()
	case failure.Is(err, ErrConnect):
		msg, ok := failure.MessageOf(err)
		if !ok {
			msg = "Can't connect to MySQL server"
		}
		return CRConnHostError, fmt.Sprintf("%s (%s)", msg, cause)
	case failure.Is(err, fragfinder.ErrOptimizeFailed):
		if msg, ok := failure.MessageOf(err); ok {
			return CRUnknownError, msg
		}
	}

	return CRUnknownError, cause.Error()
}

// ErrorLine formats err the way the check prints failures.
func ErrorLine(err error) string {
	code, msg := Describe(err)
	return fmt.Sprintf("Error %d: %s", code, msg)
}
