package lifecycle

import "testing"

func TestLifecycle_Draining(t *testing.T) {
	var l Lifecycle
	if l.IsDraining() {
		t.Fatalf("zero value should not be draining")
	}
	l.SetDraining(true)
	if !l.IsDraining() {
		t.Fatalf("expected draining")
	}
	l.SetDraining(false)
	if l.IsDraining() {
		t.Fatalf("expected draining cleared")
	}
}

func TestLifecycle_NilIsSafe(t *testing.T) {
	var l *Lifecycle
	l.SetDraining(true)
	if l.IsDraining() {
		t.Fatalf("nil lifecycle reported draining")
	}
}
