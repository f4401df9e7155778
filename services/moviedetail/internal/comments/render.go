package comments

import "time"

// MaxReplyDepth is the depth at which new replies stop being offered.
// Deeper comments delivered by the service still render.
const MaxReplyDepth = 5

// Row is one rendered comment in depth-first order.
type Row struct {
	ID          int64     `json:"id"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	Depth       int       `json:"depth"`
	AuthorID    string    `json:"author_id,omitempty"`
	AuthorName  string    `json:"author_name"`
	AuthorImage string    `json:"author_image,omitempty"`
	Content     string    `json:"content"`
	Deleted     bool      `json:"deleted"`
	CreatedAt   time.Time `json:"created_at"`
	LikeCount   int       `json:"like_count"`
	LikedByMe   bool      `json:"liked_by_me"`
	ReplyCount  int       `json:"reply_count"`

	Collapsed   bool `json:"collapsed"`
	CanCollapse bool `json:"can_collapse"`
	CanReply    bool `json:"can_reply"`
	CanEdit     bool `json:"can_edit"`
	CanDelete   bool `json:"can_delete"`
	CanLike     bool `json:"can_like"`

	Editing  bool   `json:"editing"`
	Replying bool   `json:"replying"`
	Draft    string `json:"draft,omitempty"`
	Busy     bool   `json:"busy"`
}

// Capabilities are the actions a viewer may start on a comment.
type Capabilities struct {
	Reply  bool
	Edit   bool
	Delete bool
	Like   bool
}

// CapabilitiesFor evaluates the row action gates for c at depth.
func CapabilitiesFor(c Comment, depth int, v Viewer) Capabilities {
	if c.Deleted() {
		return Capabilities{}
	}
	return Capabilities{
		Reply:  depth < MaxReplyDepth,
		Edit:   v.Owns(c),
		Delete: v.Owns(c),
		Like:   true,
	}
}

// RenderInput is the state a render reads. Collapse and InFlight may be nil.
type RenderInput struct {
	Snapshot *Snapshot
	Collapse *CollapseState
	InFlight *InFlight
	Mode     Mode
	Viewer   Viewer
}

type renderFrame struct {
	c     *Comment
	depth int
}

// Render flattens the snapshot depth-first with an explicit stack. A
// collapsed comment with replies is emitted but its subtree is skipped.
func Render(in RenderInput) []Row {
	if in.Snapshot == nil {
		return []Row{}
	}
	roots := in.Snapshot.Roots()
	rows := make([]Row, 0, in.Snapshot.Len())
	stack := make([]renderFrame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, renderFrame{c: &roots[i]})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		row := renderRow(in, f.c, f.depth)
		rows = append(rows, row)
		if row.Collapsed {
			continue
		}
		for i := len(f.c.Replies) - 1; i >= 0; i-- {
			stack = append(stack, renderFrame{c: &f.c.Replies[i], depth: f.depth + 1})
		}
	}
	return rows
}

func renderRow(in RenderInput, c *Comment, depth int) Row {
	caps := CapabilitiesFor(*c, depth, in.Viewer)
	hasReplies := len(c.Replies) > 0
	row := Row{
		ID:          c.ID,
		Depth:       depth,
		AuthorID:    string(c.AuthorID),
		AuthorName:  c.DisplayAuthor(),
		AuthorImage: c.AuthorImage,
		Content:     c.DisplayContent(),
		Deleted:     c.Deleted(),
		CreatedAt:   c.CreatedAt.Time,
		LikeCount:   in.Snapshot.LikeCount(c.ID),
		LikedByMe:   in.Snapshot.Liked(c.ID),
		ReplyCount:  len(c.Replies),
		CanCollapse: hasReplies,
		CanReply:    caps.Reply,
		CanEdit:     caps.Edit,
		CanDelete:   caps.Delete,
		CanLike:     caps.Like,
	}
	if loc, ok := in.Snapshot.Find(c.ID); ok && loc.HasParent {
		pid := loc.ParentID
		row.ParentID = &pid
	}
	if c.Deleted() {
		row.AuthorImage = ""
	}
	if in.Collapse != nil && hasReplies {
		row.Collapsed = in.Collapse.IsCollapsed(c.ID)
	}
	if in.InFlight != nil {
		row.Busy = in.InFlight.Busy(c.ID)
	}
	switch {
	case in.Mode.Is(ModeEditing, c.ID):
		row.Editing = true
		row.Draft = in.Mode.Draft
	case in.Mode.Is(ModeReplying, c.ID):
		row.Replying = true
		row.Draft = in.Mode.Draft
	}
	return row
}
