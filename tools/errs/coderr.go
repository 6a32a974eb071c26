package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

var DefaultCodeRelation = newCodeRelation()

type CodeErrorI interface {
	ECode() int
	EMsg() string
	DDetail() string
	WithDetail(detail string) CodeError
	error
}

func NewCodeError(code int, msg string) CodeError {
	return CodeError{
		Code: code,
		Msg:  msg,
	}
}

// CodeError is the error carried across component boundaries. Retryable tells
// the caller whether repeating the same call may succeed.
type CodeError struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	Detail    string `json:"detail,omitempty"`
	Retryable bool   `json:"retryable"`

	cause error
}

func (e *CodeError) ECode() int      { return e.Code }
func (e *CodeError) EMsg() string    { return e.Msg }
func (e *CodeError) DDetail() string { return e.Detail }

func (e *CodeError) WithDetail(detail string) CodeError {
	var d string
	if e.Detail == "" {
		d = detail
	} else {
		d = e.Detail + ", " + detail
	}
	return CodeError{
		Code:      e.Code,
		Msg:       e.Msg,
		Detail:    d,
		Retryable: e.Retryable,
	}
}

func (e *CodeError) Wrap() error {
	return pkgerrors.WithStack(e.clone())
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{
		Code:      e.Code,
		Msg:       e.Msg,
		Detail:    e.Detail,
		Retryable: e.Retryable,
		cause:     e.cause,
	}
}

func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	retErr := e.clone()
	retErr.appendDetail(msg, kv)
	return pkgerrors.WithStack(retErr)
}

// WrapCause attaches cause to a copy of e. The cause stays reachable through
// errors.Is / errors.As.
func (e *CodeError) WrapCause(cause error, retryable bool, msg string, kv ...any) error {
	retErr := e.clone()
	retErr.cause = cause
	retErr.Retryable = retryable
	retErr.appendDetail(msg, kv)
	if cause != nil {
		retErr.appendDetail(cause.Error(), nil)
	}
	return pkgerrors.WithStack(retErr)
}

func (e *CodeError) appendDetail(msg string, kv []any) {
	if msg == "" && len(kv) == 0 {
		return
	}
	detail := toString(msg, kv)
	if e.Detail == "" {
		e.Detail = detail
	} else {
		e.Detail += ", " + detail
	}
}

func (e *CodeError) Unwrap() error { return e.cause }

func (e *CodeError) Is(err error) bool {
	codeErr, ok := As(err)
	if !ok {
		return err == nil && e == nil
	}
	if e == nil {
		return false
	}
	if e.Code == codeErr.Code {
		return true
	}
	return DefaultCodeRelation.Is(e.Code, codeErr.Code)
}

const initialCapacity = 3

func (e *CodeError) Error() string {
	v := make([]string, 0, initialCapacity)
	v = append(v, strconv.Itoa(e.Code), e.Msg)

	if e.Detail != "" {
		v = append(v, e.Detail)
	}

	return strings.Join(v, " ")
}

// As finds the first CodeError in err's chain.
func As(err error) (*CodeError, bool) {
	var codeErr *CodeError
	if errors.As(err, &codeErr) && codeErr != nil {
		return codeErr, true
	}
	return nil, false
}

// Code returns the code of err, ServerInternalError for foreign errors and 0 for nil.
func Code(err error) int {
	if err == nil {
		return 0
	}
	if codeErr, ok := As(err); ok {
		return codeErr.Code
	}
	return ServerInternalError
}

func IsRetryable(err error) bool {
	if codeErr, ok := As(err); ok {
		return codeErr.Retryable
	}
	return false
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, toString(msg, kv))
}

func New(msg string, kv ...any) error {
	return pkgerrors.New(toString(msg, kv))
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			sb.WriteString("MISSING")
		}
	}
	return sb.String()
}

type CodeRelation interface {
	Add(codes ...int) error
	Is(parent, child int) bool
}

func newCodeRelation() CodeRelation {
	return &codeRelation{m: make(map[int]map[int]struct{})}
}

type codeRelation struct {
	m map[int]map[int]struct{}
}

const minimumCodesLength = 2

func (r *codeRelation) Add(codes ...int) error {
	if len(codes) < minimumCodesLength {
		return New("codes length must be greater than 2", "codes", codes)
	}
	for i := 1; i < len(codes); i++ {
		parent := codes[i-1]
		s, ok := r.m[parent]
		if !ok {
			s = make(map[int]struct{})
			r.m[parent] = s
		}
		for _, code := range codes[i:] {
			s[code] = struct{}{}
		}
	}
	return nil
}

func (r *codeRelation) Is(parent, child int) bool {
	if parent == child {
		return true
	}
	s, ok := r.m[parent]
	if !ok {
		return false
	}
	_, ok = s[child]
	return ok
}
