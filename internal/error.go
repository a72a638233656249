package internal

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// errNotFound means Judge.me answered successfully but has no matching
	// product. It's deliberately not a statusErr: an HTTP 404 from the
	// transport is a failed request, not a confirmed miss.
	errNotFound   = errors.New("no matching product")
	errBadRequest = statusErr(http.StatusBadRequest)

	errMissingIDs = errors.Join(fmt.Errorf(`missing "shopifyId" or "ids"`), errBadRequest)

	// errMalformed is returned when the upstream answers 2xx with a body we
	// can't decode.
	errMalformed = statusErr(http.StatusBadGateway)
)

type statusErr int

var _ error = (*statusErr)(nil)

func (s statusErr) Status() int {
	return int(s)
}

func (s statusErr) Error() string {
	return fmt.Sprintf("HTTP %d", s)
}

// statusOf returns the HTTP status an error should be reported with. Errors
// that don't wrap a statusErr are internal faults.
func statusOf(err error) int {
	var s statusErr
	if errors.As(err, &s) {
		return s.Status()
	}
	return http.StatusInternalServerError
}
