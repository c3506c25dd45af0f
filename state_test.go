package svcrun

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingOperator captures persisted snapshots, with an optional per-call
// delay and an optional failure predicate.
type recordingOperator struct {
	mu     sync.Mutex
	got    []int
	delay  time.Duration
	failOn func(int) bool
}

func (o *recordingOperator) Persist(ctx context.Context, snapshot int) error {
	if o.delay > 0 {
		select {
		case <-time.After(o.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if o.failOn != nil && o.failOn(snapshot) {
		return errors.New("injected persist failure")
	}
	o.mu.Lock()
	o.got = append(o.got, snapshot)
	o.mu.Unlock()
	return nil
}

func (o *recordingOperator) snapshots() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.got...)
}

// TestStatePersistOrder verifies snapshots are persisted strictly in push
// order even when persist is artificially slow
func TestStatePersistOrder(t *testing.T) {
	op := &recordingOperator{delay: 10 * time.Millisecond}
	pipeline, updater := OpenState(0, Operator[int](op))

	sched := NewScheduler(context.Background())
	sched.Spawn(pipeline.Run)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if err := updater.Push(ctx, i); err != nil {
			t.Fatalf("Push(%d) failed: %v", i, err)
		}
	}
	updater.Close()

	sched.Stop(5 * time.Second)
	if err := sched.Wait(); err != nil {
		t.Fatalf("Pipeline returned error: %v", err)
	}

	got := op.snapshots()
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("Persisted %d snapshots, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Snapshot %d: persisted %d, want %d", i, got[i], want[i])
		}
	}
}

// TestStatePersistFailureContinues verifies one failed persist never halts
// the pipeline
func TestStatePersistFailureContinues(t *testing.T) {
	op := &recordingOperator{failOn: func(s int) bool { return s == 2 }}
	pipeline, updater := OpenState(0, Operator[int](op))

	sched := NewScheduler(context.Background())
	sched.Spawn(pipeline.Run)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if err := updater.Push(ctx, i); err != nil {
			t.Fatalf("Push(%d) failed: %v", i, err)
		}
	}
	updater.Close()

	sched.Stop(5 * time.Second)
	if err := sched.Wait(); err != nil {
		t.Fatalf("Pipeline returned error after persist failure: %v", err)
	}

	got := op.snapshots()
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("Persisted %v, want [1 3]", got)
	}
}

// TestStatePushBackpressure verifies the bounded queue blocks the pusher
// rather than dropping snapshots
func TestStatePushBackpressure(t *testing.T) {
	_, updater := OpenState(0, Operator[int](NoOperator[int]{}), WithStateQueueCapacity(1))

	if err := updater.Push(context.Background(), 1); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	// No consumer is draining, so the second push must block until its
	// context expires.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := updater.Push(ctx, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestStatePushAfterClose(t *testing.T) {
	_, updater := OpenState(0, Operator[int](NoOperator[int]{}))
	updater.Close()
	updater.Close() // idempotent

	if err := updater.Push(context.Background(), 1); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Expected ErrChannelClosed, got %v", err)
	}
}

func TestStateInitialSeed(t *testing.T) {
	pipeline, _ := OpenState(42, Operator[int](NoOperator[int]{}))
	if got := pipeline.Initial(); got != 42 {
		t.Errorf("Initial() = %d, want 42", got)
	}
}

// TestStateHardCancel verifies a hard-cancelled pipeline stops without
// waiting for the queue to drain
func TestStateHardCancel(t *testing.T) {
	op := &recordingOperator{delay: time.Hour}
	pipeline, updater := OpenState(0, Operator[int](op))

	sched := NewScheduler(context.Background())
	sched.Spawn(pipeline.Run)

	if err := updater.Push(context.Background(), 1); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	sched.Stop(10 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- sched.Wait() }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Pipeline did not stop after hard cancellation")
	}
}
