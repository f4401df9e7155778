package view

import (
	"testing"
	"time"
)

func TestNotices_ExpireByKind(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := NewNotices(func() time.Time { return now })
	n.Success("Comment added")
	n.Error("Unexpected server error")

	if got := len(n.Active()); got != 2 {
		t.Fatalf("expected 2 notices, got %d", got)
	}
	now = now.Add(SuccessNoticeTTL)
	active := n.Active()
	if len(active) != 1 || active[0].Kind != NoticeError {
		t.Fatalf("expected only the error notice, got %+v", active)
	}
	now = now.Add(ErrorNoticeTTL)
	if got := len(n.Active()); got != 0 {
		t.Fatalf("expected no notices, got %d", got)
	}
}

func TestNotices_Dismiss(t *testing.T) {
	n := NewNotices(nil)
	a := n.Error("a")
	n.Error("b")
	if !n.Dismiss(a.ID) {
		t.Fatalf("expected dismiss to succeed")
	}
	if n.Dismiss(a.ID) {
		t.Fatalf("expected second dismiss to fail")
	}
	active := n.Active()
	if len(active) != 1 || active[0].Message != "b" {
		t.Fatalf("unexpected notices %+v", active)
	}
}
