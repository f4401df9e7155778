package comments

// Viewer is the caller a view session acts for. The zero value is an
// anonymous visitor.
type Viewer struct {
	UserID string
	Name   string
	Token  string
}

// Authenticated reports whether the viewer carries a bearer credential.
func (v Viewer) Authenticated() bool {
	return v.Token != "" && v.UserID != ""
}

// Owns reports whether the viewer authored c.
func (v Viewer) Owns(c Comment) bool {
	return v.Authenticated() && string(c.AuthorID) == v.UserID
}
