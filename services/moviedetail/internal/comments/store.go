package comments

import (
	"sync"
	"time"
)

// Snapshot is one immutable ingestion of a movie's comment tree together
// with the maps derived from it. Values returned by its methods must be
// treated as read-only.
type Snapshot struct {
	MovieRef   string
	Version    uint64
	IngestedAt time.Time

	roots     []Comment
	nodes     map[int64]Located
	likeCount map[int64]int
	likedByMe map[int64]bool
}

// Located is a comment together with its position in the tree.
type Located struct {
	Comment   *Comment
	Depth     int
	ParentID  int64
	HasParent bool
}

func emptySnapshot(movieRef string) *Snapshot {
	return &Snapshot{
		MovieRef:  movieRef,
		roots:     []Comment{},
		nodes:     map[int64]Located{},
		likeCount: map[int64]int{},
		likedByMe: map[int64]bool{},
	}
}

// Roots returns the root comments in delivery order.
func (s *Snapshot) Roots() []Comment { return s.roots }

// Len returns the number of comments in the tree, replies included.
func (s *Snapshot) Len() int { return len(s.nodes) }

// Find locates a comment anywhere in the tree.
func (s *Snapshot) Find(id int64) (Located, bool) {
	l, ok := s.nodes[id]
	return l, ok
}

// LikeCount is the server reported like count for id, 0 when unknown.
func (s *Snapshot) LikeCount(id int64) int { return s.likeCount[id] }

// Liked reports the viewer's like flag for id, false when unknown.
func (s *Snapshot) Liked(id int64) bool { return s.likedByMe[id] }

// LikeCounts returns a copy of the id -> like count map.
func (s *Snapshot) LikeCounts() map[int64]int {
	out := make(map[int64]int, len(s.likeCount))
	for k, v := range s.likeCount {
		out[k] = v
	}
	return out
}

// LikedByMe returns a copy of the id -> liked-by-viewer map.
func (s *Snapshot) LikedByMe() map[int64]bool {
	out := make(map[int64]bool, len(s.likedByMe))
	for k, v := range s.likedByMe {
		out[k] = v
	}
	return out
}

// TreeStore holds the authoritative snapshot for one movie. Ingest is the
// only way its state changes.
type TreeStore struct {
	mu   sync.RWMutex
	snap *Snapshot
	now  func() time.Time
}

func NewTreeStore(movieRef string) *TreeStore {
	return &TreeStore{snap: emptySnapshot(movieRef), now: time.Now}
}

// Snapshot returns the current snapshot.
func (s *TreeStore) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Ingest replaces the whole tree with roots. The input is copied, checked
// and indexed before the swap; an invalid tree leaves the previous snapshot
// in place and returns an *InvalidTreeError.
func (s *TreeStore) Ingest(roots []Comment) (*Snapshot, error) {
	next, err := buildSnapshot(copyTree(roots))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next.MovieRef = s.snap.MovieRef
	next.Version = s.snap.Version + 1
	next.IngestedAt = s.now()
	s.snap = next
	return next, nil
}

func buildSnapshot(roots []Comment) (*Snapshot, error) {
	snap := emptySnapshot("")
	snap.roots = roots
	err := Walk(roots, func(c *Comment, depth int, parent *Comment) error {
		if _, dup := snap.nodes[c.ID]; dup {
			return &InvalidTreeError{CommentID: c.ID, Reason: "duplicate id"}
		}
		if c.LikeCount < 0 {
			return &InvalidTreeError{CommentID: c.ID, Reason: "negative like count"}
		}
		loc := Located{Comment: c, Depth: depth}
		if parent != nil {
			loc.ParentID = parent.ID
			loc.HasParent = true
		}
		snap.nodes[c.ID] = loc
		snap.likeCount[c.ID] = c.LikeCount
		snap.likedByMe[c.ID] = c.LikedByCurrentUser
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

type walkFrame struct {
	c      *Comment
	parent *Comment
	depth  int
}

// Walk visits every comment depth-first in delivery order using an explicit
// stack, so input depth does not grow the call stack. Returning an error
// from visit stops the walk.
func Walk(roots []Comment, visit func(c *Comment, depth int, parent *Comment) error) error {
	stack := make([]walkFrame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, walkFrame{c: &roots[i]})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if err := visit(f.c, f.depth, f.parent); err != nil {
			return err
		}
		for i := len(f.c.Replies) - 1; i >= 0; i-- {
			stack = append(stack, walkFrame{c: &f.c.Replies[i], parent: f.c, depth: f.depth + 1})
		}
	}
	return nil
}

// copyTree deep-copies roots so the snapshot shares no memory with the caller.
func copyTree(roots []Comment) []Comment {
	out := append([]Comment(nil), roots...)
	if out == nil {
		out = []Comment{}
	}
	stack := make([]*Comment, 0, len(out))
	for i := range out {
		stack = append(stack, &out[i])
	}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if c.ParentID != nil {
			pid := *c.ParentID
			c.ParentID = &pid
		}
		if len(c.Replies) == 0 {
			c.Replies = nil
			continue
		}
		c.Replies = append([]Comment(nil), c.Replies...)
		for i := range c.Replies {
			stack = append(stack, &c.Replies[i])
		}
	}
	return out
}
