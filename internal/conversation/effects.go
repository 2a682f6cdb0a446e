package conversation

import "context"

// InlineButton is a single inline keyboard button carrying a callback token.
type InlineButton struct {
	Text    string
	Key     string
	Payload string
}

// Message is one outbound message queued by a handler. It carries plain
// text plus at most one keyboard: a reply grid or an inline grid.
type Message struct {
	Text           string
	Markdown       bool
	Keyboard       [][]string
	Inline         [][]InlineButton
	RemoveKeyboard bool
}

// Sender delivers outbound messages to a chat. Implemented by the
// Telegram transport and by test recorders.
type Sender interface {
	Send(ctx context.Context, chatID int64, msg Message) error
}

// Effects buffers the outbound messages of a single dispatch. Handlers
// enqueue freely; the engine flushes the buffer in call order after the
// handler returns, so a handler never observes its own sends.
type Effects struct {
	queue []Message
}

// Send queues a plain text message.
func (fx *Effects) Send(text string) {
	fx.queue = append(fx.queue, Message{Text: text})
}

// SendMarkdown queues a Markdown-formatted message.
func (fx *Effects) SendMarkdown(text string) {
	fx.queue = append(fx.queue, Message{Text: text, Markdown: true})
}

// SendKeyboard queues a message with a reply keyboard.
func (fx *Effects) SendKeyboard(text string, rows [][]string) {
	fx.queue = append(fx.queue, Message{Text: text, Keyboard: rows})
}

// SendInline queues a message with an inline keyboard.
func (fx *Effects) SendInline(text string, rows [][]InlineButton) {
	fx.queue = append(fx.queue, Message{Text: text, Inline: rows})
}

// SendRemoveKeyboard queues a message that also hides the reply keyboard.
func (fx *Effects) SendRemoveKeyboard(text string) {
	fx.queue = append(fx.queue, Message{Text: text, RemoveKeyboard: true})
}

// Queue queues a fully built message.
func (fx *Effects) Queue(msg Message) {
	fx.queue = append(fx.queue, msg)
}

// Messages exposes the buffered queue, used by tests.
func (fx *Effects) Messages() []Message {
	return fx.queue
}
