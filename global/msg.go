package global

import (
	"net/http"

	"PNotepad/tools/errs"
)

// Msg is the JSON envelope of every REST endpoint.
type Msg struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func Success(data any) *Msg { return &Msg{Code: http.StatusOK, Data: data} }

func Fail(code int, msg string) *Msg { return &Msg{Code: code, Msg: msg} }

// FromError maps err to an HTTP status and envelope. known is false for
// errors that have no client-facing status; those answer 500.
func FromError(err error) (status int, msg *Msg, known bool) {
	status, known = http.StatusInternalServerError, true
	switch {
	case errs.ErrNotFound.Is(err):
		status = http.StatusNotFound
	case errs.ErrBadRequest.Is(err):
		status = http.StatusBadRequest
	case errs.ErrAuth.Is(err):
		status = http.StatusUnauthorized
	case errs.ErrStore.Is(err) && errs.IsRetryable(err):
		status = http.StatusServiceUnavailable
	default:
		known = false
	}
	return status, Fail(errs.Code(err), http.StatusText(status)), known
}
