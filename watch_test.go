package sealpost

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sealpost/sealpost/internal/ledger"
)

func TestWatch_LocalDelivery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.client()
	bob := env.client()
	env.publish(bob)

	if _, err := alice.Send(ctx, bob.Address(), []byte("before")); err != nil {
		t.Fatal(err)
	}

	got := make(chan *Message, 4)
	sub, err := bob.Watch(ctx, func(m *Message) { got <- m })
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer sub.Unsubscribe()

	env.clock.Advance(ledger.DefaultMinInterval)
	if _, err := alice.Send(ctx, bob.Address(), []byte("after")); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"before", "after"} {
		select {
		case m := <-got:
			if m.Err != nil {
				t.Fatalf("message Err = %v", m.Err)
			}
			if string(m.Plaintext) != want {
				t.Errorf("Plaintext = %q, want %q", m.Plaintext, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	select {
	case m := <-got:
		t.Errorf("unexpected extra delivery of message %d", m.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatch_Polling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.client()
	bob := env.client(
		WithDeliveryStrategy(StrategyPolling),
		WithPollingInitialInterval(10*time.Millisecond),
		WithPollingMaxBackoff(20*time.Millisecond),
		WithPollingJitterFactor(-1),
	)
	env.publish(bob)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	done := make(chan *Message, 1)
	go func() {
		m, err := bob.WaitForMessage(waitCtx, func(m *Message) bool {
			return string(m.Plaintext) == "polled"
		})
		if err != nil {
			t.Errorf("WaitForMessage() error = %v", err)
		}
		done <- m
	}()

	// Give the waiter time to subscribe before sending.
	time.Sleep(20 * time.Millisecond)
	if _, err := alice.Send(ctx, bob.Address(), []byte("polled")); err != nil {
		t.Fatal(err)
	}

	select {
	case m := <-done:
		if m == nil || m.Sender != alice.Address() {
			t.Errorf("WaitForMessage() = %+v, want message from alice", m)
		}
	case <-waitCtx.Done():
		t.Fatal("timed out")
	}
}

func TestWatch_LocalRequiresInProcessLedger(t *testing.T) {
	env := newTestEnv(t)
	keys, err := GenerateKeys("")
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(ledgerOnly{env.ledger}, env.blobs, keys, WithDeliveryStrategy(StrategyLocal))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.Watch(context.Background(), func(*Message) {}); err == nil {
		t.Error("Watch() error = nil, want error for local strategy without subscriber")
	}
}

// ledgerOnly hides Subscribe so the client sees a remote ledger.
type ledgerOnly struct {
	Ledger
}

func TestWatch_SequentialSubscriptions(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"local", nil},
		{"polling", []Option{
			WithDeliveryStrategy(StrategyPolling),
			WithPollingInitialInterval(10 * time.Millisecond),
			WithPollingMaxBackoff(20 * time.Millisecond),
			WithPollingJitterFactor(-1),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			alice := env.client()
			bob := env.client(tt.opts...)
			env.publish(bob)

			send := func(text string) {
				t.Helper()
				env.clock.Advance(ledger.DefaultMinInterval)
				if _, err := alice.Send(ctx, bob.Address(), []byte(text)); err != nil {
					t.Fatal(err)
				}
			}
			waitFor := func(text string) {
				t.Helper()
				waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				m, err := bob.WaitForMessage(waitCtx, func(m *Message) bool {
					return string(m.Plaintext) == text
				})
				if err != nil {
					t.Fatalf("WaitForMessage(%q) error = %v", text, err)
				}
				if m.Err != nil {
					t.Fatalf("WaitForMessage(%q) message Err = %v", text, m.Err)
				}
			}

			send("first")
			waitFor("first")

			// Delivery is running with nobody subscribed; let it pass the message by.
			send("between")
			time.Sleep(100 * time.Millisecond)
			waitFor("between")

			got := make(chan string, 8)
			sub, err := bob.Watch(ctx, func(m *Message) { got <- string(m.Plaintext) })
			if err != nil {
				t.Fatalf("Watch() error = %v", err)
			}
			defer sub.Unsubscribe()

			send("live")

			seen := make(map[string]int)
			for len(seen) < 3 {
				select {
				case text := <-got:
					seen[text]++
				case <-time.After(5 * time.Second):
					t.Fatalf("late Watch saw %v, want first, between and live", seen)
				}
			}
			select {
			case text := <-got:
				seen[text]++
			case <-time.After(50 * time.Millisecond):
			}
			for _, text := range []string{"first", "between", "live"} {
				if seen[text] != 1 {
					t.Errorf("late Watch delivered %q %d times, want 1", text, seen[text])
				}
			}
		})
	}
}

func TestSubscriptionManager(t *testing.T) {
	m := newSubscriptionManager()

	var mu sync.Mutex
	var calls int
	_, unsub := m.subscribe(func(*Message) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	m.notify(&Message{ID: 1})
	m.notify(&Message{ID: 1})
	unsub()
	unsub()
	m.notify(&Message{ID: 2})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if m.count() != 0 {
		t.Errorf("count() = %d, want 0", m.count())
	}

	var late []uint64
	sub, unsubLate := m.subscribe(func(msg *Message) { late = append(late, msg.ID) })
	defer unsubLate()
	if got := m.pending(1); len(got) != 1 || got[0] != sub {
		t.Errorf("pending(1) = %v, want the new subscription", got)
	}
	m.notify(&Message{ID: 1})
	if sub.deliver(&Message{ID: 1}) {
		t.Error("deliver() ran the callback twice for the same id")
	}
	if !sub.hasSeen(1) || len(m.pending(1)) != 0 {
		t.Error("id 1 still pending after delivery")
	}
	if len(late) != 1 || late[0] != 1 {
		t.Errorf("late subscription got %v, want [1]", late)
	}

	m.subscribe(func(*Message) { t.Error("callback after clear") })
	m.clear()
	m.notify(&Message{ID: 3})
}
