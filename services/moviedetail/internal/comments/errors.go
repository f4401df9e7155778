package comments

import (
	"errors"
	"fmt"
)

// GenericFailureMessage is shown when the interaction service gave no message.
const GenericFailureMessage = "Unexpected server error"

var (
	// ErrAuthRequired means the action needs a signed-in viewer. Callers
	// redirect to sign-in rather than showing an error.
	ErrAuthRequired = errors.New("comments: authentication required")
	// ErrInFlight means an identical request is still pending.
	ErrInFlight = errors.New("comments: identical request already in flight")
	// ErrClosed means the view was closed; the result was discarded.
	ErrClosed = errors.New("comments: view closed")
	// ErrReplyDepth means the comment sits at or below the reply depth cap.
	ErrReplyDepth = errors.New("comments: reply depth limit reached")
	// ErrNotAuthor means only the comment's author may edit or delete it.
	ErrNotAuthor = errors.New("comments: only the author may change this comment")
	// ErrNotFound means the id is not part of the current snapshot.
	ErrNotFound = errors.New("comments: comment not in current tree")
	// ErrTombstoned means the comment is deleted and accepts no actions.
	ErrTombstoned = errors.New("comments: comment is deleted")
	// ErrNoActiveMode means there is no edit or reply to submit.
	ErrNoActiveMode = errors.New("comments: nothing to submit")
)

// ValidationError reports input rejected locally before any request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("comments: invalid %s: %s", e.Field, e.Message)
}

// ServiceError is a failed request to, or refresh from, the interaction
// service. Message carries the server supplied text when there was one.
type ServiceError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("comments: %s: status %d: %s", e.Op, e.Status, msg)
	}
	return fmt.Sprintf("comments: %s: %s", e.Op, msg)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// HTTPStatus is the upstream status, 0 for transport failures.
func (e *ServiceError) HTTPStatus() int { return e.Status }

// UserMessage is the notice text for the failure.
func (e *ServiceError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return GenericFailureMessage
}

// LoadError wraps a failed initial tree fetch. The comment section renders
// empty while the rest of the page stays usable.
type LoadError struct {
	MovieRef string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("comments: load %s: %v", e.MovieRef, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// InvalidTreeError is returned by Ingest for a tree that breaks the model
// invariants. The previous snapshot is kept.
type InvalidTreeError struct {
	CommentID int64
	Reason    string
}

func (e *InvalidTreeError) Error() string {
	return fmt.Sprintf("comments: invalid tree at comment %d: %s", e.CommentID, e.Reason)
}

// UserMessage maps err to the text a notice would display.
func UserMessage(err error) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.UserMessage()
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return GenericFailureMessage
}
