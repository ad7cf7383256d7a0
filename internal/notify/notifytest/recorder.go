// Package notifytest provides an in-memory Dispatcher for tests.
package notifytest

import (
	"context"
	"errors"
	"sync"

	"github.com/Vortex-technology1/talko-task-manager/internal/notify"
)

// ErrUnreachable is the default failure for chats marked with Fail.
var ErrUnreachable = errors.New("chat unreachable")

type Message struct {
	Chat notify.ChatRef
	Ref  notify.MessageRef
	Text string
	Rows [][]notify.Button
}

type Ack struct {
	Ref  string
	Text string
}

// Recorder captures every dispatch. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	next   notify.MessageRef
	sent   []Message
	edits  []Message
	acks   []Ack
	broken map[notify.ChatRef]bool
}

func New() *Recorder {
	return &Recorder{broken: map[notify.ChatRef]bool{}}
}

// Fail makes every send to chat return ErrUnreachable.
func (r *Recorder) Fail(chat notify.ChatRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broken[chat] = true
}

func (r *Recorder) SendText(ctx context.Context, chat notify.ChatRef, text string) (notify.MessageRef, error) {
	return r.SendWithActions(ctx, chat, text, nil)
}

func (r *Recorder) SendWithActions(_ context.Context, chat notify.ChatRef, text string, rows [][]notify.Button) (notify.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken[chat] {
		return 0, ErrUnreachable
	}
	r.next++
	r.sent = append(r.sent, Message{Chat: chat, Ref: r.next, Text: text, Rows: rows})
	return r.next, nil
}

func (r *Recorder) EditMessage(_ context.Context, chat notify.ChatRef, msg notify.MessageRef, text string, rows [][]notify.Button) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken[chat] {
		return ErrUnreachable
	}
	r.edits = append(r.edits, Message{Chat: chat, Ref: msg, Text: text, Rows: rows})
	return nil
}

func (r *Recorder) AcknowledgeAction(_ context.Context, ref, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks = append(r.acks, Ack{Ref: ref, Text: text})
	return nil
}

func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}

// SentTo returns the messages delivered to one chat.
func (r *Recorder) SentTo(chat notify.ChatRef) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.sent {
		if m.Chat == chat {
			out = append(out, m)
		}
	}
	return out
}

func (r *Recorder) Edits() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.edits...)
}

func (r *Recorder) Acks() []Ack {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Ack(nil), r.acks...)
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent, r.edits, r.acks = nil, nil, nil
}

var _ notify.Dispatcher = (*Recorder)(nil)
