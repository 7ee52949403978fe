package service

import (
	"context"
	"testing"
	"time"
)

func TestNewDefaultsInteractiveTimeout(t *testing.T) {
	svc := New(&Config{})
	if svc.interactiveTimeout != defaultInteractiveTimeout {
		t.Fatalf("interactiveTimeout = %v, want %v", svc.interactiveTimeout, defaultInteractiveTimeout)
	}

	svc = New(&Config{InteractiveTimeout: time.Minute})
	if svc.interactiveTimeout != time.Minute {
		t.Fatalf("interactiveTimeout = %v, want %v", svc.interactiveTimeout, time.Minute)
	}
}

func TestInteractiveBoundsContext(t *testing.T) {
	svc := New(&Config{InteractiveTimeout: time.Minute})

	ctx, cancel := svc.interactive(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("interactive context has no deadline")
	}
	if until := time.Until(deadline); until <= 0 || until > time.Minute {
		t.Fatalf("deadline in %v, want within %v", until, time.Minute)
	}
}

func TestInteractiveKeepsTighterDeadline(t *testing.T) {
	svc := New(&Config{InteractiveTimeout: time.Minute})

	parent, parentCancel := context.WithTimeout(context.Background(), time.Second)
	defer parentCancel()

	ctx, cancel := svc.interactive(parent)
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("interactive context has no deadline")
	}
	if until := time.Until(deadline); until > time.Second {
		t.Fatalf("deadline in %v, want the parent's tighter bound", until)
	}
}
