package comments

// Reactions is a read-only projection of like state over the store's
// current snapshot. It holds no state of its own.
type Reactions struct {
	store *TreeStore
}

func NewReactions(store *TreeStore) Reactions {
	return Reactions{store: store}
}

// Count returns the like count for id, or 0 when id is unknown.
func (r Reactions) Count(id int64) int {
	return r.store.Snapshot().LikeCount(id)
}

// LikedByMe reports whether the viewer likes id; false when id is unknown.
func (r Reactions) LikedByMe(id int64) bool {
	return r.store.Snapshot().Liked(id)
}
