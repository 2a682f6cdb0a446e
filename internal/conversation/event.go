package conversation

import "strings"

// EventKind discriminates the inbound event variants the engine accepts.
type EventKind int

const (
	// EventText is a free text message.
	EventText EventKind = iota
	// EventCommand is a slash command.
	EventCommand
	// EventCallback is an inline button press carrying a structured token.
	EventCallback
	// EventTimeout is synthesized by the engine when the idle window expires.
	EventTimeout
)

// Token is the structured payload of an inline button callback: a key
// naming the action and an opaque payload the handler parses.
type Token struct {
	Key     string
	Payload string
}

// PayloadParts splits the token payload on the given separator.
func (t Token) PayloadParts(sep string) []string {
	if t.Payload == "" {
		return nil
	}
	return strings.Split(t.Payload, sep)
}

// Event is a single inbound update addressed to one session.
type Event struct {
	Kind     EventKind
	Text     string
	Callback Token
}

// TextEvent builds a free text event.
func TextEvent(text string) Event {
	return Event{Kind: EventText, Text: text}
}

// CommandEvent builds a slash command event.
func CommandEvent(command string) Event {
	return Event{Kind: EventCommand, Text: command}
}

// CallbackEvent builds a button callback event.
func CallbackEvent(key, payload string) Event {
	return Event{Kind: EventCallback, Callback: Token{Key: key, Payload: payload}}
}
