package view

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

const (
	SuccessNoticeTTL = 3 * time.Second
	ErrorNoticeTTL   = 5 * time.Second
)

// Notice is a dismissible, auto-expiring message shown above the page.
type Notice struct {
	ID        string     `json:"id"`
	Kind      NoticeKind `json:"kind"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

type Notices struct {
	mu    sync.Mutex
	items []Notice
	now   func() time.Time
}

func NewNotices(now func() time.Time) *Notices {
	if now == nil {
		now = time.Now
	}
	return &Notices{now: now}
}

func (n *Notices) Success(msg string) Notice { return n.add(NoticeSuccess, msg, SuccessNoticeTTL) }

func (n *Notices) Error(msg string) Notice { return n.add(NoticeError, msg, ErrorNoticeTTL) }

func (n *Notices) add(kind NoticeKind, msg string, ttl time.Duration) Notice {
	now := n.now()
	nt := Notice{ID: uuid.NewString(), Kind: kind, Message: msg, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	n.mu.Lock()
	n.items = append(n.items, nt)
	n.mu.Unlock()
	return nt
}

// Dismiss removes the notice with id and reports whether it was present.
func (n *Notices) Dismiss(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	i := slices.IndexFunc(n.items, func(nt Notice) bool { return nt.ID == id })
	if i < 0 {
		return false
	}
	n.items = slices.Delete(n.items, i, i+1)
	return true
}

// Active drops expired notices and returns the rest, oldest first.
func (n *Notices) Active() []Notice {
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = slices.DeleteFunc(n.items, func(nt Notice) bool { return !now.Before(nt.ExpiresAt) })
	return append([]Notice{}, n.items...)
}
