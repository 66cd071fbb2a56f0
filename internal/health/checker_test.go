package health_test

import (
	"context"
	"errors"
	"testing"

	"github.com/scaffoldhq/scaffold/internal/health"
)

func TestReady_allPassing(t *testing.T) {
	c := health.NewChecker()
	c.Register("db", func(context.Context) error { return nil })
	c.Register("keys", func(context.Context) error { return nil })

	ok, statuses := c.Ready(context.Background())
	if !ok {
		t.Fatalf("expected ready, got statuses %v", statuses)
	}
	if statuses["db"] != "ok" || statuses["keys"] != "ok" {
		t.Errorf("unexpected statuses: %v", statuses)
	}
}

func TestReady_oneFailing(t *testing.T) {
	c := health.NewChecker()
	c.Register("db", func(context.Context) error { return errors.New("connection refused") })
	c.Register("keys", func(context.Context) error { return nil })

	ok, statuses := c.Ready(context.Background())
	if ok {
		t.Fatal("expected not ready")
	}
	if statuses["db"] != "connection refused" {
		t.Errorf("expected failure message for db, got %q", statuses["db"])
	}
	if statuses["keys"] != "ok" {
		t.Errorf("passing check should still report ok, got %q", statuses["keys"])
	}
}

func TestReady_noChecks(t *testing.T) {
	c := health.NewChecker()
	ok, statuses := c.Ready(context.Background())
	if !ok {
		t.Fatal("no checks should mean ready")
	}
	if len(statuses) != 0 {
		t.Errorf("expected empty statuses, got %v", statuses)
	}
}
