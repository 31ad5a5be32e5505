package sweeper

import (
	"testing"
	"time"

	"hostplane/internal/common"
	"hostplane/internal/engine"
)

func TestNewSweeperRequiresEngine(t *testing.T) {
	_, err := NewSweeper(NewSweeperOpts{
		Done: make(chan common.Done),
	})
	if err == nil {
		t.Fatal("expected an error when no engine is provided")
	}
}

func TestNewSweeperDefaultsInterval(t *testing.T) {
	instance, err := NewSweeper(NewSweeperOpts{
		Engine: &engine.Engine{},
		Done:   make(chan common.Done),
	})
	if err != nil {
		t.Fatalf("NewSweeper returned error: %v", err)
	}
	if instance.interval != DefaultInterval {
		t.Errorf("expected default interval %v, got %v", DefaultInterval, instance.interval)
	}
}

func TestSweeperStopsOnDone(t *testing.T) {
	done := make(chan common.Done)
	instance, err := NewSweeper(NewSweeperOpts{
		Engine:   &engine.Engine{},
		Interval: time.Hour,
		Done:     done,
	})
	if err != nil {
		t.Fatalf("NewSweeper returned error: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		instance.Start()
		close(stopped)
	}()

	close(done)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after done was closed")
	}
}
