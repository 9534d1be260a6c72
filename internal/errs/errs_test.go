package errs

import (
	"errors"
	"testing"
)

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("refused")
	e := Wrap(Connect, High, "dial u@host", cause)
	if !errors.Is(e, cause) {
		t.Fatalf("errors.Is(e, cause) = false")
	}
	if e.Kind != Connect || e.Severity != High {
		t.Fatalf("Kind/Severity = %v/%v", e.Kind, e.Severity)
	}
}

func TestAs(t *testing.T) {
	e := New(Stalled, High, errors.New("idle timeout"))
	var wrapped error = e
	got, ok := As(wrapped)
	if !ok || got.Kind != Stalled {
		t.Fatalf("As() = %v, %v", got, ok)
	}
}
