package services

import (
	"context"
	"errors"
	"testing"

	"ledger/internal/core"
)

func TestAlertService_Create(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.alerts.Create(ctx, core.Alert{Owner: "u1", Title: "Statement ready"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.ID == "" || a.Priority != core.PriorityInfo || a.Type != "general" || a.Read {
		t.Fatalf("defaults not applied: %+v", a)
	}

	tests := []struct {
		name  string
		alert core.Alert
	}{
		{"blank title", core.Alert{Owner: "u1", Title: "  "}},
		{"unknown priority", core.Alert{Owner: "u1", Title: "x", Priority: "urgent"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.alerts.Create(ctx, tt.alert); !errors.Is(err, core.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAlertService_MarkRead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, err := h.alerts.Create(ctx, core.Alert{Owner: "u1", Title: "Hello", Priority: core.PriorityHigh})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := h.alerts.MarkRead(ctx, "u2", a.ID); !errors.Is(err, core.ErrAlertNotFound) {
		t.Fatalf("other owner: expected ErrAlertNotFound, got %v", err)
	}
	if err := h.alerts.MarkRead(ctx, "u1", "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unknown id: expected not found, got %v", err)
	}

	for range 2 {
		if err := h.alerts.MarkRead(ctx, "u1", a.ID); err != nil {
			t.Fatalf("mark read: %v", err)
		}
	}
	if n, _ := h.alerts.UnreadCount(ctx, "u1"); n != 0 {
		t.Fatalf("unread = %d, want 0", n)
	}
}

func TestAlertService_MarkAllReadAndList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for range DefaultAlertLimit + 2 {
		if _, err := h.alerts.Create(ctx, core.Alert{Owner: "u1", Title: "t"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := h.alerts.Create(ctx, core.Alert{Owner: "u2", Title: "t"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := h.alerts.List(ctx, "u1", 0)
	if err != nil || len(list) != DefaultAlertLimit {
		t.Fatalf("List() returned %d alerts (err %v), want %d", len(list), err, DefaultAlertLimit)
	}

	n, err := h.alerts.MarkAllRead(ctx, "u1")
	if err != nil || n != DefaultAlertLimit+2 {
		t.Fatalf("MarkAllRead() = %d, %v", n, err)
	}
	if n, _ := h.alerts.MarkAllRead(ctx, "u1"); n != 0 {
		t.Fatalf("second MarkAllRead() = %d, want 0", n)
	}
	if n, _ := h.alerts.UnreadCount(ctx, "u2"); n != 1 {
		t.Fatalf("other owner's alerts touched, unread = %d", n)
	}
}
