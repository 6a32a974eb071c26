package safe

import (
	"testing"
	"time"
)

func TestGoRecoversPanic(t *testing.T) {
	done := make(chan struct{})
	Go("boom", func() {
		defer close(done)
		panic("boom")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestMustNotNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil pointer")
		}
	}()
	var p *int
	MustNotNil(p, "p")
}
