package api

import (
	"errors"
	"net/http"

	service "github.com/okian/agentmatch/internal/app"
	"github.com/okian/agentmatch/internal/domain/dispatch"
	"github.com/okian/agentmatch/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest      = errors.New("bad request")
	ErrUnauthenticated = errors.New("missing X-User-ID header")
)

// Kind classifies an API error. Its value doubles as the error code in
// the response body.
type Kind string

// Error kinds.
const (
	KindBadRequest        Kind = "bad_request"
	KindUnauthenticated   Kind = "unauthenticated"
	KindNotFound          Kind = "not_found"
	KindQuotaExhausted    Kind = "quota_exhausted"
	KindProfileIncomplete Kind = "profile_incomplete"
	KindDuplicateInFlight Kind = "duplicate_in_flight"
	KindBackpressure      Kind = "backpressure"
	KindNotReady          Kind = "not_ready"
	KindDispatchFailed    Kind = "dispatch_failed"
	KindUnavailable       Kind = "unavailable"
	KindInternal          Kind = "internal_error"
)

// Status returns the HTTP status code for k.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindQuotaExhausted:
		return http.StatusTooManyRequests
	case KindProfileIncomplete:
		return http.StatusUnprocessableEntity
	case KindDuplicateInFlight, KindNotReady:
		return http.StatusConflict
	case KindDispatchFailed:
		return http.StatusGone
	case KindBackpressure, KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is an operation-tagged API error.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with op and classifies it from the domain sentinels it wraps.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: classify(err), Err: err}
}

// WrapKind tags err with op and an explicit kind.
func WrapKind(op string, kind Kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// NewKind returns an error of the given kind with the sentinel as its cause.
func NewKind(op string, sentinel error) error {
	return &Error{Op: op, Kind: classify(sentinel), Err: sentinel}
}

// KindOf reports the kind of err, classifying untagged errors on the fly.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, dispatch.ErrInvalidRequest):
		return KindBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, dispatch.ErrQuotaExhausted):
		return KindQuotaExhausted
	case errors.Is(err, dispatch.ErrProfileIncomplete):
		return KindProfileIncomplete
	case errors.Is(err, dispatch.ErrDuplicateInFlight):
		return KindDuplicateInFlight
	case errors.Is(err, dispatch.ErrBackpressure):
		return KindBackpressure
	case errors.Is(err, dispatch.ErrNotReady):
		return KindNotReady
	case errors.Is(err, dispatch.ErrJobFailed):
		return KindDispatchFailed
	case errors.Is(err, dispatch.ErrCandidateNotFound),
		errors.Is(err, dispatch.ErrJobNotFound),
		errors.Is(err, model.ErrNotFound):
		return KindNotFound
	case errors.Is(err, service.ErrNotStarted):
		return KindUnavailable
	default:
		return KindInternal
	}
}

// message is the client-visible text for err. Internal failures are not
// echoed back.
func message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInternal {
			return http.StatusText(http.StatusInternalServerError)
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	return err.Error()
}
