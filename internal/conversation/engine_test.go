package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
}

func (r *recordingSender) Send(ctx context.Context, chatID int64, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	for i, m := range r.sent {
		out[i] = m.Text
	}
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestEngineFlushesEffectsInOrder(t *testing.T) {
	rec := &recordingSender{}
	rs := NewRuleSet()
	rs.Handle(StateIdle, AnyText(), func(ctx context.Context, ev Event, s *Session, fx *Effects) (State, error) {
		fx.Send("uno")
		fx.SendMarkdown("dos")
		fx.SendRemoveKeyboard("tres")
		return StateSelectingAction, nil
	})

	e := NewEngine(Options{Rules: rs, Sender: rec})
	defer e.Close()

	if err := e.Submit(context.Background(), 1, TextEvent("hola")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(rec.texts()) == 3 })
	got := rec.texts()
	if got[0] != "uno" || got[1] != "dos" || got[2] != "tres" {
		t.Fatalf("unexpected order: %v", got)
	}
	if !e.Store().Active(1) {
		t.Fatal("expected session to leave idle")
	}
}

func TestEngineSerializesEventsPerChat(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	rs := NewRuleSet()
	rs.Handle(StateIdle, AnyText(), func(ctx context.Context, ev Event, s *Session, fx *Effects) (State, error) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen = append(seen, ev.Text)
		mu.Unlock()
		return StateIdle, nil
	})

	e := NewEngine(Options{Rules: rs})
	defer e.Close()

	const n = 20
	for i := 0; i < n; i++ {
		if err := e.Submit(context.Background(), 1, TextEvent(fmt.Sprintf("m%02d", i))); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == n
	})

	mu.Lock()
	defer mu.Unlock()
	for i, text := range seen {
		if want := fmt.Sprintf("m%02d", i); text != want {
			t.Fatalf("event %d = %s, want %s", i, text, want)
		}
	}
}

func TestEngineDeliversAllEventsUnderSaturation(t *testing.T) {
	rec := &recordingSender{}
	rs := NewRuleSet()
	rs.Handle(StateIdle, AnyText(), func(ctx context.Context, ev Event, s *Session, fx *Effects) (State, error) {
		time.Sleep(time.Millisecond)
		fx.Send(ev.Text)
		return StateIdle, nil
	})

	// A single-slot queue and a short idle window force Submit through
	// its saturated path while runners retire and respawn mid-stream.
	e := NewEngine(Options{Rules: rs, Sender: rec, QueueSize: 1, IdleTimeout: 20 * time.Millisecond})
	defer e.Close()

	const n = 40
	for i := 0; i < n; i++ {
		if err := e.Submit(context.Background(), 1, TextEvent(fmt.Sprintf("m%02d", i))); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	waitFor(t, 10*time.Second, func() bool { return len(rec.texts()) == n })

	got := rec.texts()
	for i, text := range got {
		if want := fmt.Sprintf("m%02d", i); text != want {
			t.Fatalf("event %d = %s, want %s", i, text, want)
		}
	}
}

func TestEngineDispatchesChatsConcurrently(t *testing.T) {
	release := make(chan struct{})
	done := make(chan string, 2)

	rs := NewRuleSet()
	rs.Handle(StateIdle, AnyText(), func(ctx context.Context, ev Event, s *Session, fx *Effects) (State, error) {
		if ev.Text == "block" {
			<-release
		}
		done <- ev.Text
		return StateIdle, nil
	})

	e := NewEngine(Options{Rules: rs})
	defer e.Close()

	if err := e.Submit(context.Background(), 1, TextEvent("block")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := e.Submit(context.Background(), 2, TextEvent("free")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case text := <-done:
		if text != "free" {
			t.Fatalf("expected the unblocked chat first, got %q", text)
		}
	case <-time.After(time.Second):
		t.Fatal("second chat blocked behind the first")
	}

	close(release)
	<-done
}

func TestEngineTimeoutExpiresSession(t *testing.T) {
	rec := &recordingSender{}
	rs := NewRuleSet()
	rs.Handle(StateIdle, AnyText(), func(ctx context.Context, ev Event, s *Session, fx *Effects) (State, error) {
		s.TenantID = "tenant-x"
		s.Authenticated = true
		s.ClientDraft = &ClientDraft{Name: "pendiente", Awaiting: ClientFieldCity}
		return StateClientSubmenu, nil
	})

	e := NewEngine(Options{Rules: rs, Sender: rec, IdleTimeout: 30 * time.Millisecond})
	defer e.Close()

	if err := e.Submit(context.Background(), 1, TextEvent("hola")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		s, ok := e.Store().Peek(1)
		return ok && s.State == StateIdle
	})
	s, _ := e.Store().Peek(1)
	if s.TenantID != "tenant-x" || !s.Authenticated {
		t.Fatal("timeout must keep the signed-in identity")
	}
	if s.ClientDraft != nil {
		t.Fatal("timeout must drop in-flight drafts")
	}
}

func TestEngineEndStateDestroysSession(t *testing.T) {
	rs := NewRuleSet()
	rs.Handle(StateIdle, AnyText(), func(ctx context.Context, ev Event, s *Session, fx *Effects) (State, error) {
		fx.Send("adios")
		return StateEnd, nil
	})

	rec := &recordingSender{}
	e := NewEngine(Options{Rules: rs, Sender: rec})
	defer e.Close()

	if err := e.Submit(context.Background(), 1, TextEvent("logout")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(rec.texts()) == 1 })
	waitFor(t, time.Second, func() bool {
		_, ok := e.Store().Peek(1)
		return !ok
	})
}

func TestEngineHandlerErrorKeepsState(t *testing.T) {
	rs := NewRuleSet()
	rs.Handle(StateIdle, AnyText(), func(ctx context.Context, ev Event, s *Session, fx *Effects) (State, error) {
		return "", fmt.Errorf("boom")
	})

	e := NewEngine(Options{Rules: rs})
	defer e.Close()

	if err := e.Submit(context.Background(), 1, TextEvent("x")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// The handler failed without naming a next state, so the session
	// must still be resting where it was.
	time.Sleep(50 * time.Millisecond)
	if s, ok := e.Store().Peek(1); !ok || s.State != StateIdle {
		t.Fatal("expected session to remain idle")
	}
}

func TestEngineSubmitAfterClose(t *testing.T) {
	e := NewEngine(Options{})
	e.Close()
	if err := e.Submit(context.Background(), 1, TextEvent("x")); err != ErrEngineClosed {
		t.Fatalf("expected ErrEngineClosed, got %v", err)
	}
}
