package svcrun

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// TestRelayOrdering verifies messages are received in exactly the order sent
func TestRelayOrdering(t *testing.T) {
	const capacity = 8
	inbound, outbound := OpenRelay[int](capacity)
	ctx := context.Background()

	for i := 0; i < capacity; i++ {
		if err := outbound.Send(ctx, i); err != nil {
			t.Fatalf("Send(%d) failed: %v", i, err)
		}
	}

	for i := 0; i < capacity; i++ {
		got, err := inbound.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv failed at %d: %v", i, err)
		}
		if got != i {
			t.Errorf("Expected message %d, got %d", i, got)
		}
	}
}

// TestRelaySendAfterConsumerClosed verifies sends fail once the consumer is gone
func TestRelaySendAfterConsumerClosed(t *testing.T) {
	inbound, outbound := OpenRelay[int](4)

	inbound.Close()

	if err := outbound.Send(context.Background(), 1); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Expected ErrChannelClosed, got %v", err)
	}

	// A clone created before the close fails the same way
	clone := outbound.Clone()
	if err := clone.Send(context.Background(), 2); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Expected ErrChannelClosed from clone, got %v", err)
	}
}

// TestRelayEndOfStream verifies buffered messages drain before end-of-stream
func TestRelayEndOfStream(t *testing.T) {
	inbound, outbound := OpenRelay[int](4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := outbound.Send(ctx, i); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	outbound.Close()

	for i := 0; i < 3; i++ {
		got, err := inbound.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv failed before drain complete: %v", err)
		}
		if got != i {
			t.Errorf("Expected %d, got %d", i, got)
		}
	}

	if _, err := inbound.Recv(ctx); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Expected end-of-stream, got %v", err)
	}
	// End-of-stream is stable across repeated receives
	if _, err := inbound.Recv(ctx); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Expected end-of-stream on second receive, got %v", err)
	}
}

// TestRelayCloseIdempotent verifies closing a producer clone twice only
// releases one reference
func TestRelayCloseIdempotent(t *testing.T) {
	inbound, outbound := OpenRelay[int](1)
	clone := outbound.Clone()

	clone.Close()
	clone.Close()

	// The original producer still holds the relay open
	if err := outbound.Send(context.Background(), 7); err != nil {
		t.Fatalf("Send failed with original producer live: %v", err)
	}
	got, err := inbound.Recv(context.Background())
	if err != nil || got != 7 {
		t.Fatalf("Recv = (%d, %v), want (7, nil)", got, err)
	}

	outbound.Close()
	if _, err := inbound.Recv(context.Background()); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Expected end-of-stream after last producer closed, got %v", err)
	}
}

// TestRelayCloneInterleave verifies per-sender ordering with concurrent clones
func TestRelayCloneInterleave(t *testing.T) {
	const perSender = 50
	inbound, outbound := OpenRelay[[2]int](4)
	ctx := context.Background()

	var wg sync.WaitGroup
	for sender := 0; sender < 3; sender++ {
		p := outbound
		if sender > 0 {
			p = outbound.Clone()
		}
		wg.Add(1)
		go func(id int, p *OutboundRelay[[2]int]) {
			defer wg.Done()
			defer p.Close()
			for seq := 0; seq < perSender; seq++ {
				if err := p.Send(ctx, [2]int{id, seq}); err != nil {
					t.Errorf("sender %d: Send failed: %v", id, err)
					return
				}
			}
		}(sender, p)
	}

	lastSeq := map[int]int{0: -1, 1: -1, 2: -1}
	received := 0
	for {
		msg, err := inbound.Recv(ctx)
		if errors.Is(err, ErrChannelClosed) {
			break
		}
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		id, seq := msg[0], msg[1]
		if seq != lastSeq[id]+1 {
			t.Fatalf("sender %d: received seq %d after %d", id, seq, lastSeq[id])
		}
		lastSeq[id] = seq
		received++
	}
	wg.Wait()

	if received != 3*perSender {
		t.Errorf("Expected %d messages, received %d", 3*perSender, received)
	}
}

// TestRelayBackpressure verifies a send on a full buffer blocks until a receive
func TestRelayBackpressure(t *testing.T) {
	inbound, outbound := OpenRelay[int](1)
	ctx := context.Background()

	if err := outbound.Send(ctx, 0); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	sent := make(chan error, 1)
	go func() {
		sent <- outbound.Send(ctx, 1)
	}()

	select {
	case err := <-sent:
		t.Fatalf("Send on full buffer returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
		// Still blocked, as expected
	}

	if _, err := inbound.Recv(ctx); err != nil {
		t.Fatalf("Recv failed: %v", err)
	}

	select {
	case err := <-sent:
		if err != nil {
			t.Fatalf("Blocked send failed after drain: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send did not unblock after the buffer drained")
	}
}

// TestRelaySendContextCancelled verifies a blocked send honors its context
func TestRelaySendContextCancelled(t *testing.T) {
	_, outbound := OpenRelay[int](1)

	if err := outbound.Send(context.Background(), 0); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := outbound.Send(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}
