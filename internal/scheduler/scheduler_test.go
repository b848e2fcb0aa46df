package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestStartRunsJobsOnceInOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
		done  = make(chan struct{})
	)
	job := func(name string) Job {
		return Job{Name: name, Run: func(context.Context) (Report, error) {
			mu.Lock()
			order = append(order, name)
			if len(order) == 3 {
				close(done)
			}
			mu.Unlock()
			return Report{}, nil
		}}
	}

	s := New(nil, zerolog.Nop(), job("reconcile"), job("risk"), job("signal"))
	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("initial runs did not complete")
	}
	mu.Lock()
	defer mu.Unlock()
	if order[0] != "reconcile" || order[1] != "risk" || order[2] != "signal" {
		t.Errorf("order = %v", order)
	}
}

func TestTriggerSkipsOverlappingRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := New(nil, zerolog.Nop(), Job{Name: "slow", Run: func(context.Context) (Report, error) {
		close(started)
		<-release
		return Report{}, nil
	}})

	result := make(chan bool)
	go func() { result <- s.Trigger(context.Background(), "slow") }()
	<-started

	if s.Trigger(context.Background(), "slow") {
		t.Error("overlapping trigger should be skipped")
	}
	close(release)
	if !<-result {
		t.Error("first trigger should have run")
	}
	if s.Trigger(context.Background(), "missing") {
		t.Error("unknown job should not run")
	}
}

func TestPanickingJobDoesNotStopScheduler(t *testing.T) {
	s := New(nil, zerolog.Nop(), Job{Name: "bad", Run: func(context.Context) (Report, error) {
		panic("boom")
	}})
	if !s.Trigger(context.Background(), "bad") {
		t.Fatal("job should have run")
	}
	if !s.Trigger(context.Background(), "bad") {
		t.Error("running flag must be released after a panic")
	}
}

func TestTickerRepeatsAndStopWaits(t *testing.T) {
	runs := make(chan struct{}, 16)
	s := New(nil, zerolog.Nop(), Job{Name: "tick", Interval: 5 * time.Millisecond, Run: func(context.Context) (Report, error) {
		select {
		case runs <- struct{}{}:
		default:
		}
		return Report{}, nil
	}})
	s.Start(context.Background())

	for i := 0; i < 3; i++ {
		select {
		case <-runs:
		case <-time.After(2 * time.Second):
			t.Fatalf("run %d did not happen", i)
		}
	}
	s.Stop()
}
