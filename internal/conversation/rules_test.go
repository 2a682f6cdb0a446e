package conversation

import (
	"context"
	"testing"
)

func nopHandler(next State) HandlerFunc {
	return func(ctx context.Context, ev Event, s *Session, fx *Effects) (State, error) {
		return next, nil
	}
}

func TestExactMatcherTrimsWhitespace(t *testing.T) {
	m := Exact("Iniciar sesión", "Registrarse")
	if !m.Match(TextEvent("  Iniciar sesión ")) {
		t.Fatal("expected trimmed text to match")
	}
	if m.Match(TextEvent("iniciar sesión")) {
		t.Fatal("Exact must be case sensitive")
	}
	if m.Match(CommandEvent("Registrarse")) {
		t.Fatal("Exact must not match command events")
	}
}

func TestExactFoldMatcher(t *testing.T) {
	m := ExactFold("Sí", "Si", "S")
	for _, text := range []string{"sí", "SI", "s", " Sí "} {
		if !m.Match(TextEvent(text)) {
			t.Fatalf("expected %q to match", text)
		}
	}
	if m.Match(TextEvent("no")) {
		t.Fatal("unexpected match")
	}
}

func TestCommandMatcherIgnoresArguments(t *testing.T) {
	m := Command("/start")
	if !m.Match(CommandEvent("/start")) {
		t.Fatal("expected bare command to match")
	}
	if !m.Match(CommandEvent("/start deep-link-payload")) {
		t.Fatal("expected command with arguments to match")
	}
	if m.Match(CommandEvent("/started")) {
		t.Fatal("prefix must not match")
	}
	if m.Match(TextEvent("/start")) {
		t.Fatal("text events are not commands")
	}
}

func TestAnyCommandMatcher(t *testing.T) {
	m := AnyCommand()
	if !m.Match(CommandEvent("/loquesea")) {
		t.Fatal("expected any command to match")
	}
	if m.Match(TextEvent("/loquesea")) {
		t.Fatal("text events are not commands")
	}
	if m.Match(CallbackEvent("k", "")) {
		t.Fatal("callbacks are not commands")
	}
}

func TestCallbackMatcherByKey(t *testing.T) {
	m := Callback("confirmar_eliminar", "cancelar_eliminar")
	if !m.Match(CallbackEvent("confirmar_eliminar", "some-id")) {
		t.Fatal("expected key match")
	}
	if m.Match(CallbackEvent("otra_cosa", "")) {
		t.Fatal("unexpected key match")
	}
	if m.Match(TextEvent("confirmar_eliminar")) {
		t.Fatal("text events must not match callbacks")
	}
}

func TestTimeoutMatcher(t *testing.T) {
	m := Timeout()
	if !m.Match(Event{Kind: EventTimeout}) {
		t.Fatal("expected timeout event to match")
	}
	if m.Match(TextEvent("x")) {
		t.Fatal("unexpected match")
	}
}

func TestResolveFirstRuleWins(t *testing.T) {
	rs := NewRuleSet()
	rs.Handle(StateIdle, AnyText(), nopHandler("first"))
	rs.Handle(StateIdle, AnyText(), nopHandler("second"))

	h, ok := rs.Resolve(StateIdle, TextEvent("hola"))
	if !ok {
		t.Fatal("expected a match")
	}
	next, _ := h(context.Background(), TextEvent("hola"), &Session{}, &Effects{})
	if next != "first" {
		t.Fatalf("expected first registered rule, got %q", next)
	}
}

func TestResolvePrefersStateRulesOverFallbacks(t *testing.T) {
	rs := NewRuleSet()
	rs.Fallback(AnyText(), nopHandler("fallback"))
	rs.Handle(StateSelectingAction, Exact("Cancelar"), nopHandler("state"))

	h, ok := rs.Resolve(StateSelectingAction, TextEvent("Cancelar"))
	if !ok {
		t.Fatal("expected a match")
	}
	next, _ := h(context.Background(), TextEvent("Cancelar"), &Session{}, &Effects{})
	if next != "state" {
		t.Fatalf("state rule must shadow fallback, got %q", next)
	}

	h, ok = rs.Resolve(StateSelectingAction, TextEvent("algo mas"))
	if !ok {
		t.Fatal("expected fallback match")
	}
	next, _ = h(context.Background(), TextEvent("algo mas"), &Session{}, &Effects{})
	if next != "fallback" {
		t.Fatalf("expected fallback, got %q", next)
	}
}

func TestResolveNoMatch(t *testing.T) {
	rs := NewRuleSet()
	rs.Handle(StateIdle, Exact("hola"), nopHandler(StateIdle))
	if _, ok := rs.Resolve(StateIdle, CallbackEvent("k", "")); ok {
		t.Fatal("expected no match for callback")
	}
}

func TestPayloadParts(t *testing.T) {
	tok := Token{Key: "valor_cliente", Payload: "route|Ruta 1"}
	parts := tok.PayloadParts("|")
	if len(parts) != 2 || parts[0] != "route" || parts[1] != "Ruta 1" {
		t.Fatalf("unexpected parts: %v", parts)
	}
	if (Token{}).PayloadParts("|") != nil {
		t.Fatal("empty payload must yield nil")
	}
}
