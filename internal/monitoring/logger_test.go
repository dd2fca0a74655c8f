package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLoggerCaptures(t *testing.T) {
	defer SetLogger(nil)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Logf("flight %d scored %d", 7, 50)
	if got != "flight 7 scored 50" {
		t.Errorf("captured %q", got)
	}
}

func TestSetLoggerNilIsNoOp(t *testing.T) {
	SetLogger(nil)
	// Must not panic.
	Logf("dropped %d events", 3)

	SetLogger(func(string, ...interface{}) {})
	Logf("still fine")
}
