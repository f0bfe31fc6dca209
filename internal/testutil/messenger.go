package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/transport"
)

// ErrMessageNotFound mirrors the platform refusing to touch a message that
// no longer exists.
var ErrMessageNotFound = errors.New("message not found")

// Op names a transport capability.
type Op string

const (
	OpSend   Op = "send"
	OpEdit   Op = "edit"
	OpDelete Op = "delete"
	OpAnswer Op = "answer"
)

// Call is one recorded transport invocation, failed or not.
type Call struct {
	Op       Op
	Ref      model.MessageRef
	Text     string
	Keyboard *transport.Keyboard
	ActionID string
	Err      error
}

// Message is a message currently visible in a chat.
type Message struct {
	Ref      model.MessageRef
	Text     string
	Keyboard *transport.Keyboard
	FromBot  bool
}

type failure struct {
	op    Op
	chat  model.ChatID
	err   error
	times int // negative means forever
}

// FakeMessenger is an in-memory transport.Messenger.
//
// It keeps the set of live messages per chat so tests can assert what an
// operator would currently see, and records every call in order. Like the
// platform, message ids count up per chat and are shared by bot and operator
// messages.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeMessenger struct {
	mu       sync.Mutex
	nextID   map[model.ChatID]int
	live     map[model.MessageRef]Message
	calls    []Call
	failures []failure
}

var _ transport.Messenger = (*FakeMessenger)(nil)

// NewFakeMessenger creates an empty fake platform.
func NewFakeMessenger() *FakeMessenger {
	return &FakeMessenger{
		nextID: make(map[model.ChatID]int),
		live:   make(map[model.MessageRef]Message),
	}
}

// Incoming registers a message written by an operator and returns its ref.
func (f *FakeMessenger) Incoming(chat model.ChatID, text string) model.MessageRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := f.allocate(chat)
	f.live[ref] = Message{Ref: ref, Text: text}
	return ref
}

// FailNext makes the next matching call fail with err. A zero chat matches
// any chat.
func (f *FakeMessenger) FailNext(op Op, chat model.ChatID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, failure{op: op, chat: chat, err: err, times: 1})
}

// FailAlways makes every matching call fail with err.
func (f *FakeMessenger) FailAlways(op Op, chat model.ChatID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, failure{op: op, chat: chat, err: err, times: -1})
}

// Send implements transport.Messenger.
func (f *FakeMessenger) Send(ctx context.Context, chat model.ChatID, text string, kb *transport.Keyboard) (model.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail(ctx, OpSend, chat); err != nil {
		f.calls = append(f.calls, Call{Op: OpSend, Ref: model.MessageRef{Chat: chat}, Text: text, Keyboard: kb, Err: err})
		return model.MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	ref := f.allocate(chat)
	f.live[ref] = Message{Ref: ref, Text: text, Keyboard: kb, FromBot: true}
	f.calls = append(f.calls, Call{Op: OpSend, Ref: ref, Text: text, Keyboard: kb})
	return ref, nil
}

// Edit implements transport.Messenger.
func (f *FakeMessenger) Edit(ctx context.Context, ref model.MessageRef, text string, kb *transport.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.fail(ctx, OpEdit, ref.Chat)
	if err == nil {
		if _, ok := f.live[ref]; !ok {
			err = ErrMessageNotFound
		}
	}
	f.calls = append(f.calls, Call{Op: OpEdit, Ref: ref, Text: text, Keyboard: kb, Err: err})
	if err != nil {
		return fmt.Errorf("edit message %d: %w", ref.MessageID, err)
	}
	f.live[ref] = Message{Ref: ref, Text: text, Keyboard: kb, FromBot: true}
	return nil
}

// Delete implements transport.Messenger.
func (f *FakeMessenger) Delete(ctx context.Context, ref model.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.fail(ctx, OpDelete, ref.Chat)
	if err == nil {
		if _, ok := f.live[ref]; !ok {
			err = ErrMessageNotFound
		}
	}
	f.calls = append(f.calls, Call{Op: OpDelete, Ref: ref, Err: err})
	if err != nil {
		return fmt.Errorf("delete message %d: %w", ref.MessageID, err)
	}
	delete(f.live, ref)
	return nil
}

// AnswerAction implements transport.Messenger.
func (f *FakeMessenger) AnswerAction(ctx context.Context, actionID string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.fail(ctx, OpAnswer, 0)
	f.calls = append(f.calls, Call{Op: OpAnswer, Text: text, ActionID: actionID, Err: err})
	if err != nil {
		return fmt.Errorf("answer action: %w", err)
	}
	return nil
}

// Calls returns every recorded call in order.
func (f *FakeMessenger) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the recorded calls addressed to chat. Action answers carry
// no chat and are never included.
func (f *FakeMessenger) CallsTo(chat model.ChatID) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Op != OpAnswer && c.Ref.Chat == chat {
			out = append(out, c)
		}
	}
	return out
}

// Answers returns the recorded action acknowledgements.
func (f *FakeMessenger) Answers() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Op == OpAnswer {
			out = append(out, c)
		}
	}
	return out
}

// Live returns the message at ref if it is still visible.
func (f *FakeMessenger) Live(ref model.MessageRef) (Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.live[ref]
	return m, ok
}

// Chat returns the visible messages of a chat, oldest first.
func (f *FakeMessenger) Chat(chat model.ChatID) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for ref, m := range f.live {
		if ref.Chat == chat {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.MessageID < out[j].Ref.MessageID })
	return out
}

// Last returns the newest visible bot message of a chat.
func (f *FakeMessenger) Last(chat model.ChatID) (Message, bool) {
	msgs := f.Chat(chat)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].FromBot {
			return msgs[i], true
		}
	}
	return Message{}, false
}

func (f *FakeMessenger) allocate(chat model.ChatID) model.MessageRef {
	f.nextID[chat]++
	return model.MessageRef{Chat: chat, MessageID: f.nextID[chat]}
}

// fail must be called with f.mu held.
func (f *FakeMessenger) fail(ctx context.Context, op Op, chat model.ChatID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i := range f.failures {
		fl := &f.failures[i]
		if fl.op != op || fl.times == 0 || (fl.chat != 0 && fl.chat != chat) {
			continue
		}
		if fl.times > 0 {
			fl.times--
		}
		return fl.err
	}
	return nil
}
