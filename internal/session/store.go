package session

import (
	"sync"

	"github.com/roach88/cloister/internal/model"
)

// Key identifies one live session.
type Key struct {
	Actor    model.ActorID
	Workflow model.Workflow
}

type entry struct {
	session Session
	chat    model.ChatID
	started uint64
}

// Store is a mutex-guarded map of live sessions.
//
// Thread-safety: all methods are safe for concurrent use. Each method is
// atomic on its own; callers that read, modify and write back use Replace so
// that a session cleared in between is not resurrected.
type Store struct {
	mu      sync.Mutex
	entries map[Key]entry
	seq     uint64
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{entries: make(map[Key]entry)}
}

// Start stores s as the actor's fresh session for its workflow, held in
// chat. A previous session of the same workflow is overwritten and returned.
func (st *Store) Start(actor model.ActorID, chat model.ChatID, s Session) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.seq++
	k := Key{actor, s.Workflow()}
	prev, replaced := st.entries[k]
	st.entries[k] = entry{session: s.clone(), chat: chat, started: st.seq}
	if !replaced {
		return nil, false
	}
	return prev.session, true
}

// Replace overwrites an existing session and reports whether one was there.
// A missing session stays missing.
func (st *Store) Replace(actor model.ActorID, s Session) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	k := Key{actor, s.Workflow()}
	e, ok := st.entries[k]
	if !ok {
		return false
	}
	e.session = s.clone()
	st.entries[k] = e
	return true
}

// Lookup returns a copy of the actor's session for wf.
func (st *Store) Lookup(actor model.ActorID, wf model.Workflow) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.entries[Key{actor, wf}]
	if !ok {
		return nil, false
	}
	return e.session.clone(), true
}

// Clear removes the actor's session for wf.
func (st *Store) Clear(actor model.ActorID, wf model.Workflow) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.entries, Key{actor, wf})
}

// Take removes and returns the actor's session for wf. Two concurrent Takes
// never both succeed.
func (st *Store) Take(actor model.ActorID, wf model.Workflow) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	k := Key{actor, wf}
	e, ok := st.entries[k]
	if !ok {
		return nil, false
	}
	delete(st.entries, k)
	return e.session, true
}

// FindByPrompt returns the session of workflow wf whose cursor points at ref,
// together with its owner. A button press carries only the message it was
// attached to, and the presser may not be the owner.
func (st *Store) FindByPrompt(wf model.Workflow, ref model.MessageRef) (model.ActorID, Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	k, e, ok := st.findByPrompt(wf, ref)
	if !ok {
		return 0, nil, false
	}
	return k.Actor, e.session.clone(), true
}

// TakeByPrompt is FindByPrompt followed by removal, atomically.
func (st *Store) TakeByPrompt(wf model.Workflow, ref model.MessageRef) (model.ActorID, Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	k, e, ok := st.findByPrompt(wf, ref)
	if !ok {
		return 0, nil, false
	}
	delete(st.entries, k)
	return k.Actor, e.session, true
}

func (st *Store) findByPrompt(wf model.Workflow, ref model.MessageRef) (Key, entry, bool) {
	if ref.IsZero() {
		return Key{}, entry{}, false
	}
	for k, e := range st.entries {
		if k.Workflow != wf {
			continue
		}
		if cur, ok := e.session.Prompt().Ref(); ok && cur == ref {
			return k, e, true
		}
	}
	return Key{}, entry{}, false
}

// AwaitingText returns the actor's most recently started session in chat
// that is waiting for a text message. Text typed in another chat never
// feeds a dialogue.
func (st *Store) AwaitingText(actor model.ActorID, chat model.ChatID) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	var (
		best  entry
		found bool
	)
	for k, e := range st.entries {
		if k.Actor != actor || e.chat != chat || !e.session.Current().AwaitsText() {
			continue
		}
		if !found || e.started > best.started {
			best, found = e, true
		}
	}
	if !found {
		return nil, false
	}
	return best.session.clone(), true
}

// ClearActor removes every session of the actor and returns them in
// workflow declaration order.
func (st *Store) ClearActor(actor model.ActorID) []Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	var removed []Session
	for _, wf := range model.Workflows {
		k := Key{actor, wf}
		if e, ok := st.entries[k]; ok {
			removed = append(removed, e.session)
			delete(st.entries, k)
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}

// Get returns the actor's session of type S.
func Get[S Session](st *Store, actor model.ActorID) (S, bool) {
	var zero S
	s, ok := st.Lookup(actor, zero.Workflow())
	if !ok {
		return zero, false
	}
	typed, ok := s.(S)
	return typed, ok
}

// FindByPrompt is the typed form of Store.FindByPrompt.
func FindByPrompt[S Session](st *Store, ref model.MessageRef) (model.ActorID, S, bool) {
	var zero S
	actor, s, ok := st.FindByPrompt(zero.Workflow(), ref)
	if !ok {
		return 0, zero, false
	}
	typed, ok := s.(S)
	return actor, typed, ok
}

// TakeByPrompt is the typed form of Store.TakeByPrompt.
func TakeByPrompt[S Session](st *Store, ref model.MessageRef) (model.ActorID, S, bool) {
	var zero S
	actor, s, ok := st.TakeByPrompt(zero.Workflow(), ref)
	if !ok {
		return 0, zero, false
	}
	typed, ok := s.(S)
	return actor, typed, ok
}
