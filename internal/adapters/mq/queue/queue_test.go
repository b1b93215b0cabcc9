package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/stakingtier/internal/domain/model"
	"github.com/okian/stakingtier/internal/domain/quantity"
)

func stakeEvent(id, owner string) Event {
	return model.LedgerEvent{
		EventID:  id,
		Owner:    owner,
		Kind:     model.KindStake,
		Quantity: quantity.Parse("1.00000000 WAX"),
		TS:       time.Now(),
	}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if err := q.Enqueue(ctx, stakeEvent("event1", "alice")); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	ev := <-q.Dequeue(ctx)
	if ev.EventID != "event1" || ev.Owner != "alice" {
		t.Errorf("unexpected event %+v", ev)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Backpressure(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(ctx, stakeEvent(fmt.Sprintf("event%d", i), "alice")); err != nil {
			t.Fatalf("expected enqueue to succeed, got %v", err)
		}
	}
	if err := q.Enqueue(ctx, stakeEvent("event3", "alice")); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(ctx, stakeEvent("event1", "alice")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, ok := <-q.Dequeue(ctx); ok {
		t.Error("expected dequeue channel to close on a cancelled context")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()
	const producers, perProducer = 10, 100

	var consumed sync.Map
	var consumers sync.WaitGroup
	for i := 0; i < 4; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for ev := range q.Dequeue(ctx) {
				if _, dup := consumed.LoadOrStore(ev.EventID, true); dup {
					t.Errorf("event %s delivered twice", ev.EventID)
				}
			}
		}()
	}

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				ev := stakeEvent(fmt.Sprintf("event%d_%d", p, j), fmt.Sprintf("owner%d", p))
				for errors.Is(q.Enqueue(ctx, ev), ErrFull) {
					time.Sleep(time.Millisecond)
				}
			}
		}(p)
	}
	wg.Wait()
	_ = q.Close()
	consumers.Wait()

	n := 0
	consumed.Range(func(_, _ any) bool { n++; return true })
	if n != producers*perProducer {
		t.Errorf("expected %d events consumed, got %d", producers*perProducer, n)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	_ = q.Enqueue(ctx, stakeEvent("event1", "alice"))
	_ = q.Enqueue(ctx, stakeEvent("event2", "bob"))

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if err := q.Enqueue(ctx, stakeEvent("event3", "carol")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// Events queued before Close are still delivered, then the channel closes.
	var got []string
	timeout := time.After(time.Second)
	ch := q.Dequeue(ctx)
	for done := false; !done; {
		select {
		case ev, ok := <-ch:
			if !ok {
				done = true
				break
			}
			got = append(got, ev.EventID)
		case <-timeout:
			t.Fatal("expected dequeue channel to close within timeout")
		}
	}
	if len(got) != 2 || got[0] != "event1" || got[1] != "event2" {
		t.Errorf("expected queued events in order, got %v", got)
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}
