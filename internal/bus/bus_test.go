package bus

import (
	"fmt"
	"testing"
	"time"
)

func drain(sub *Subscription) []Event {
	out := []Event{}
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPublishDeliversInOrder(t *testing.T) {
	b := NewMemory()
	sub := b.Subscribe(TopicTally)
	defer b.Unsubscribe(sub)

	for i := 1; i <= 5; i++ {
		b.Publish(TopicTally, Event{Type: TypeTallyUpdate, RunID: 1, Count: i})
	}

	got := drain(sub)
	if len(got) != 5 {
		t.Fatalf("got %d events, want 5", len(got))
	}
	for i, ev := range got {
		if ev.Count != i+1 {
			t.Errorf("event %d has count %d, want %d", i, ev.Count, i+1)
		}
	}
}

func TestPublishDropsOldestOnOverflow(t *testing.T) {
	b := NewMemory()
	sub := b.Subscribe(TopicTally)
	defer b.Unsubscribe(sub)

	total := defaultBuffer + 7
	for i := 1; i <= total; i++ {
		b.Publish(TopicTally, Event{Type: TypeTallyUpdate, RunID: 1, Count: i})
	}

	got := drain(sub)
	if len(got) != defaultBuffer {
		t.Fatalf("got %d buffered events, want %d", len(got), defaultBuffer)
	}
	// The newest event must survive; the oldest must be gone.
	if last := got[len(got)-1].Count; last != total {
		t.Errorf("newest buffered count = %d, want %d", last, total)
	}
	if first := got[0].Count; first <= total-defaultBuffer {
		t.Errorf("oldest buffered count = %d, want > %d", first, total-defaultBuffer)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewMemory()
	sub := b.Subscribe(TopicTally)
	defer b.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10*defaultBuffer; i++ {
			b.Publish(TopicTally, Event{Count: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	b := NewMemory()
	tally := b.Subscribe(TopicTally)
	inval := b.Subscribe(TopicInvalidate)
	defer b.Unsubscribe(tally)
	defer b.Unsubscribe(inval)

	b.Publish(TopicTally, Event{Type: TypeTallyUpdate})

	if got := drain(inval); len(got) != 0 {
		t.Errorf("invalidate subscriber received %d tally events", len(got))
	}
	if got := drain(tally); len(got) != 1 {
		t.Errorf("tally subscriber received %d events, want 1", len(got))
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewMemory()
	sub := b.Subscribe(TopicTally)

	b.Unsubscribe(sub)
	b.Unsubscribe(sub) // must not panic on double close
	b.Unsubscribe(nil)

	if _, ok := <-sub.C; ok {
		t.Error("channel still open after unsubscribe")
	}

	// Publishing to a topic with no subscribers is a no-op.
	b.Publish(TopicTally, Event{})
}

func TestFanOutToMultipleSubscribers(t *testing.T) {
	b := NewMemory()
	subs := make([]*Subscription, 3)
	for i := range subs {
		subs[i] = b.Subscribe(TopicTally)
		defer b.Unsubscribe(subs[i])
	}

	b.Publish(TopicTally, Event{Type: TypeTallyUpdate, Count: 42})

	for i, sub := range subs {
		got := drain(sub)
		if len(got) != 1 || got[0].Count != 42 {
			t.Errorf("subscriber %d got %v, want one event with count 42", i, got)
		}
	}
}

func TestConcurrentPublishKeepsAllSubscribersLive(t *testing.T) {
	b := NewMemory()
	sub := b.Subscribe(TopicTally)
	defer b.Unsubscribe(sub)

	const publishers = 8
	done := make(chan struct{}, publishers)
	for p := 0; p < publishers; p++ {
		go func(p int) {
			for i := 0; i < 100; i++ {
				b.Publish(TopicTally, Event{SessionCode: fmt.Sprintf("p%d", p), Count: i})
			}
			done <- struct{}{}
		}(p)
	}
	for p := 0; p < publishers; p++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("concurrent publishers did not finish")
		}
	}
}
