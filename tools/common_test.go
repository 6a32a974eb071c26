package tools

import (
	"reflect"
	"testing"
	"time"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("PN_TEST_INT", "42")
	t.Setenv("PN_TEST_BAD_INT", "x")
	t.Setenv("PN_TEST_BOOL", "Yes")
	t.Setenv("PN_TEST_DUR", "1500ms")
	t.Setenv("PN_TEST_LIST", " a, ,b ")

	if got := GetEnvInt("PN_TEST_INT", 1); got != 42 {
		t.Fatalf("int = %d", got)
	}
	if got := GetEnvInt("PN_TEST_BAD_INT", 1); got != 1 {
		t.Fatalf("bad int = %d", got)
	}
	if !GetEnvBool("PN_TEST_BOOL", false) {
		t.Fatal("bool")
	}
	if got := GetEnvDuration("PN_TEST_DUR", time.Second); got != 1500*time.Millisecond {
		t.Fatalf("duration = %v", got)
	}
	if got := GetEnvList("PN_TEST_LIST", nil); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("list = %v", got)
	}
	if got := GetEnv("PN_TEST_UNSET", "def"); got != "def" {
		t.Fatalf("default = %q", got)
	}
}
