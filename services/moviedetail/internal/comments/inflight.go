package comments

import (
	"strconv"
	"sync"
)

// Action names a mutating request kind.
type Action string

const (
	ActionAdd    Action = "add"
	ActionReply  Action = "reply"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionLike   Action = "like"
)

var commentActions = []Action{ActionReply, ActionEdit, ActionDelete, ActionLike}

// InFlightKey identifies a pending request: a comment id for reply, edit,
// delete and like, or the movie reference for new root comments.
type InFlightKey struct {
	Target string
	Action Action
}

func CommentKey(id int64, a Action) InFlightKey {
	return InFlightKey{Target: strconv.FormatInt(id, 10), Action: a}
}

func MovieKey(movieRef string) InFlightKey {
	return InFlightKey{Target: "movie:" + movieRef, Action: ActionAdd}
}

// InFlight is a keyed set of pending requests.
type InFlight struct {
	mu      sync.Mutex
	pending map[InFlightKey]struct{}
}

func NewInFlight() *InFlight {
	return &InFlight{pending: make(map[InFlightKey]struct{})}
}

// Acquire marks k pending. ok is false when k already is; otherwise the
// caller must call release once the request and its refresh are done.
func (f *InFlight) Acquire(k InFlightKey) (release func(), ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.pending[k]; busy {
		return nil, false
	}
	f.pending[k] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.pending, k)
			f.mu.Unlock()
		})
	}, true
}

func (f *InFlight) Pending(k InFlightKey) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[k]
	return ok
}

// Busy reports whether any request against comment id is pending.
func (f *InFlight) Busy(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	target := strconv.FormatInt(id, 10)
	for _, a := range commentActions {
		if _, ok := f.pending[InFlightKey{Target: target, Action: a}]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of pending requests.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}
