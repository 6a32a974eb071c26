package errs

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrPanic converts a recovered value into a stack-carrying ServerInternalError.
// A nil value yields nil so callers can pass recover() straight through.
func ErrPanic(r any) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return pkgerrors.WithStack(ErrInternal.WrapCause(err, false, "panic"))
	}
	return pkgerrors.WithStack(&CodeError{Code: ServerInternalError, Msg: "panic", Detail: fmt.Sprint(r)})
}
