package comments

import "sync"

type ModeKind int

const (
	ModeNone ModeKind = iota
	ModeEditing
	ModeReplying
)

func (k ModeKind) String() string {
	switch k {
	case ModeEditing:
		return "editing"
	case ModeReplying:
		return "replying"
	default:
		return "none"
	}
}

// Mode is the single active edit or reply, with its unsaved draft.
type Mode struct {
	Kind      ModeKind
	CommentID int64
	Draft     string
}

func (m Mode) Active() bool { return m.Kind != ModeNone }

// Is reports whether m targets id with the given kind.
func (m Mode) Is(kind ModeKind, id int64) bool {
	return m.Kind == kind && m.CommentID == id
}

// ModeController owns the active Mode. Every transition replaces the whole
// value, so editing and replying can never be active together.
type ModeController struct {
	mu   sync.Mutex
	mode Mode
}

func (c *ModeController) Current() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// StartEdit begins editing id with content as the initial draft. Any active
// edit or reply is dropped without saving.
func (c *ModeController) StartEdit(id int64, content string) Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = Mode{Kind: ModeEditing, CommentID: id, Draft: content}
	return c.mode
}

// ToggleReply opens a reply to id, or closes it when id is already the
// reply target. Comments at depth MaxReplyDepth or deeper cannot be
// replied to.
func (c *ModeController) ToggleReply(id int64, depth int) (Mode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode.Is(ModeReplying, id) {
		c.mode = Mode{}
		return c.mode, nil
	}
	if depth >= MaxReplyDepth {
		return c.mode, ErrReplyDepth
	}
	c.mode = Mode{Kind: ModeReplying, CommentID: id}
	return c.mode, nil
}

// SetDraft updates the active draft.
func (c *ModeController) SetDraft(text string) (Mode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mode.Active() {
		return c.mode, ErrNoActiveMode
	}
	c.mode.Draft = text
	return c.mode, nil
}

func (c *ModeController) Cancel() {
	c.mu.Lock()
	c.mode = Mode{}
	c.mu.Unlock()
}

// Finish clears the mode after a successful submit of submitted. A mode
// started while the submit was pending is left alone.
func (c *ModeController) Finish(submitted Mode) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mode.Is(submitted.Kind, submitted.CommentID) {
		return false
	}
	c.mode = Mode{}
	return true
}
