package safe

import (
	"fmt"
	"reflect"

	"PNotepad/logger"
	"PNotepad/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required dependencies during construction.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// Go starts f on a new goroutine that recovers from panic,
// so that one bad connection or sink cannot crash the process.
func Go(name string, f func()) {
	go Run(name, f)
}

// Run calls f and converts a panic into a logged error.
func Run(name string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[safe] panic recovered",
				zap.String("task", name),
				zap.Error(errs.ErrPanic(r)))
		}
	}()
	f()
}
