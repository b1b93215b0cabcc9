package api

import (
	"errors"
	"net/http"

	eventqueue "github.com/okian/stakingtier/internal/adapters/mq/queue"
	"github.com/okian/stakingtier/internal/adapters/repository"
	"github.com/okian/stakingtier/internal/domain/types"
)

// Sentinel kinds for API errors. Each kind maps to one status code.
var (
	ErrServe         = errors.New("serve failed")
	ErrBadRequest    = errors.New("bad request")
	ErrNotFound      = errors.New("not found")
	ErrUnprocessable = errors.New("insufficient data")
	ErrBackpressure  = errors.New("backpressure")
	ErrUnavailable   = errors.New("unavailable")
)

// Error is an API failure tagged with the operation and its kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap tags err with op and a kind derived from the error chain.
func Wrap(op string, err error) error {
	return &Error{Op: op, Kind: kindOf(err), Err: err}
}

// WrapKind tags err with op and an explicit kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// NewKind returns a bare error of the given kind.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

func kindOf(err error) error {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		return ErrBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, types.ErrNoResult):
		return ErrUnprocessable
	case errors.Is(err, eventqueue.ErrFull):
		return ErrBackpressure
	case errors.Is(err, eventqueue.ErrClosed):
		return ErrUnavailable
	default:
		return ErrServe
	}
}

// status returns the HTTP status and the machine-readable code for err.
func status(err error) (int, string) {
	var kind error = ErrServe
	var apiErr *Error
	if errors.As(err, &apiErr) {
		kind = apiErr.Kind
	} else if err != nil {
		kind = kindOf(err)
	}

	switch kind {
	case ErrBadRequest:
		return http.StatusBadRequest, "bad_request"
	case ErrNotFound:
		return http.StatusNotFound, "not_found"
	case ErrUnprocessable:
		return http.StatusUnprocessableEntity, "insufficient_data"
	case ErrBackpressure:
		return http.StatusTooManyRequests, "backpressure"
	case ErrUnavailable:
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
