package dbutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
)

var limitRegex = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

func Finalize(query string, args []interface{}) (string, []interface{}) {
	loc := limitRegex.FindStringIndex(query)
	if loc != nil {
		prefix := query[:loc[0]]
		qCount := strings.Count(prefix, "?")
		if qCount+1 < len(args) {
			args[qCount], args[qCount+1] = args[qCount+1], args[qCount]
			query = limitRegex.ReplaceAllString(query, "LIMIT ? OFFSET ?")
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

func IsConflict(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// IsTransient reports connection, timeout and cancellation failures that
// are safe to retry as a whole operation.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		class := string(pgErr.Code.Class())
		return class == "08" || class == "53" || class == "57" || pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Classify wraps storage errors with the matching sentinel.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case IsConflict(err):
		return fmt.Errorf("%w: %v", appErr.ErrConflict, err)
	case IsTransient(err):
		return fmt.Errorf("%w: %v", appErr.ErrTransient, err)
	default:
		return err
	}
}
