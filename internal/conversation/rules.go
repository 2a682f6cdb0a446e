package conversation

import (
	"context"
	"regexp"
	"strings"
)

// HandlerFunc reacts to an event for one session. It may queue outbound
// messages on fx and returns the next state, or StateEnd to terminate
// the conversation.
type HandlerFunc func(ctx context.Context, ev Event, s *Session, fx *Effects) (State, error)

// Matcher decides whether a rule accepts an event.
type Matcher interface {
	Match(ev Event) bool
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(ev Event) bool

// Match evaluates the underlying function.
func (f MatcherFunc) Match(ev Event) bool { return f(ev) }

// Exact matches a text event equal to one of the given options, after
// trimming surrounding whitespace.
func Exact(options ...string) Matcher {
	return MatcherFunc(func(ev Event) bool {
		if ev.Kind != EventText {
			return false
		}
		text := strings.TrimSpace(ev.Text)
		for _, opt := range options {
			if text == opt {
				return true
			}
		}
		return false
	})
}

// ExactFold matches like Exact but case-insensitively.
func ExactFold(options ...string) Matcher {
	return MatcherFunc(func(ev Event) bool {
		if ev.Kind != EventText {
			return false
		}
		text := strings.TrimSpace(ev.Text)
		for _, opt := range options {
			if strings.EqualFold(text, opt) {
				return true
			}
		}
		return false
	})
}

// Regex matches a text event against a compiled pattern.
func Regex(pattern string) Matcher {
	re := regexp.MustCompile(pattern)
	return MatcherFunc(func(ev Event) bool {
		return ev.Kind == EventText && re.MatchString(strings.TrimSpace(ev.Text))
	})
}

// AnyText matches every free text event.
func AnyText() Matcher {
	return MatcherFunc(func(ev Event) bool { return ev.Kind == EventText })
}

// Command matches a slash command by name.
func Command(name string) Matcher {
	return MatcherFunc(func(ev Event) bool {
		if ev.Kind != EventCommand {
			return false
		}
		fields := strings.Fields(ev.Text)
		return len(fields) > 0 && fields[0] == name
	})
}

// AnyCommand matches every slash command event.
func AnyCommand() Matcher {
	return MatcherFunc(func(ev Event) bool { return ev.Kind == EventCommand })
}

// Callback matches a button callback by token key.
func Callback(keys ...string) Matcher {
	return MatcherFunc(func(ev Event) bool {
		if ev.Kind != EventCallback {
			return false
		}
		for _, k := range keys {
			if ev.Callback.Key == k {
				return true
			}
		}
		return false
	})
}

// AnyCallback matches every button callback event.
func AnyCallback() Matcher {
	return MatcherFunc(func(ev Event) bool { return ev.Kind == EventCallback })
}

// Timeout matches the synthetic idle-expiry event.
func Timeout() Matcher {
	return MatcherFunc(func(ev Event) bool { return ev.Kind == EventTimeout })
}

// Rule binds a matcher to its handler. Rules registered on the same
// state are evaluated in registration order; the first match wins.
type Rule struct {
	Match  Matcher
	Handle HandlerFunc
}

// RuleSet is the routing table of the engine: an ordered rule list per
// state plus the shared fallbacks consulted when no state rule matches.
// It is built once at startup and must not be mutated afterwards.
type RuleSet struct {
	states    map[State][]Rule
	fallbacks []Rule
}

// NewRuleSet creates an empty routing table.
func NewRuleSet() *RuleSet {
	return &RuleSet{states: make(map[State][]Rule)}
}

// Handle appends a rule to the given state.
func (rs *RuleSet) Handle(state State, m Matcher, h HandlerFunc) {
	if m == nil || h == nil {
		return
	}
	rs.states[state] = append(rs.states[state], Rule{Match: m, Handle: h})
}

// Fallback appends a shared rule consulted from every state after the
// state-specific rules failed to match.
func (rs *RuleSet) Fallback(m Matcher, h HandlerFunc) {
	if m == nil || h == nil {
		return
	}
	rs.fallbacks = append(rs.fallbacks, Rule{Match: m, Handle: h})
}

// Resolve returns the first handler accepting the event at the given
// state, preferring state rules over fallbacks.
func (rs *RuleSet) Resolve(state State, ev Event) (HandlerFunc, bool) {
	for _, r := range rs.states[state] {
		if r.Match.Match(ev) {
			return r.Handle, true
		}
	}
	for _, r := range rs.fallbacks {
		if r.Match.Match(ev) {
			return r.Handle, true
		}
	}
	return nil, false
}

// HasRules reports whether the state has at least one registered rule.
func (rs *RuleSet) HasRules(state State) bool {
	return len(rs.states[state]) > 0
}
