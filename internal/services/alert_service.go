package services

import (
	"context"
	"fmt"
	"strings"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
)

// DefaultAlertLimit is the page size used when callers pass no limit.
const DefaultAlertLimit = 10

// AlertService exposes the alert feed to collaborators.
type AlertService struct {
	store ledger.Store
	runtime
}

func NewAlertService(store ledger.Store, opts ...Option) *AlertService {
	return &AlertService{store: store, runtime: newRuntime(log.ComponentAlerts, opts)}
}

// List returns the owner's newest alerts.
func (s *AlertService) List(ctx context.Context, owner string, limit int) ([]core.Alert, error) {
	if limit <= 0 {
		limit = DefaultAlertLimit
	}
	return s.store.ListAlerts(ctx, owner, limit)
}

func (s *AlertService) UnreadCount(ctx context.Context, owner string) (int, error) {
	return s.store.CountUnreadAlerts(ctx, owner)
}

// Create records an alert raised by a collaborator other than the
// threshold evaluator.
func (s *AlertService) Create(ctx context.Context, a core.Alert) (core.Alert, error) {
	if strings.TrimSpace(a.Title) == "" {
		return core.Alert{}, fmt.Errorf("%w: alert title is required", core.ErrValidation)
	}
	switch a.Priority {
	case core.PriorityInfo, core.PriorityMedium, core.PriorityHigh, core.PriorityCritical:
	case "":
		a.Priority = core.PriorityInfo
	default:
		return core.Alert{}, fmt.Errorf("%w: unknown priority %q", core.ErrValidation, a.Priority)
	}
	if a.Type == "" {
		a.Type = "general"
	}
	a.ID = s.newID()
	a.Read = false
	a.CreatedAt = s.now().UTC()

	if err := s.store.Atomic(ctx, func(tx ledger.Tx) error { return tx.InsertAlert(ctx, a) }); err != nil {
		return core.Alert{}, err
	}
	return a, nil
}

// MarkRead flags one of the owner's alerts as read.
func (s *AlertService) MarkRead(ctx context.Context, owner, id string) error {
	return s.store.Atomic(ctx, func(tx ledger.Tx) error {
		a, err := tx.GetAlert(ctx, id)
		if err != nil {
			return err
		}
		if a.Owner != owner {
			return fmt.Errorf("%w: %s", core.ErrAlertNotFound, id)
		}
		if a.Read {
			return nil
		}
		return tx.MarkAlertRead(ctx, id)
	})
}

// MarkAllRead flags every unread alert of owner and returns how many
// changed.
func (s *AlertService) MarkAllRead(ctx context.Context, owner string) (int, error) {
	var n int
	err := s.store.Atomic(ctx, func(tx ledger.Tx) error {
		var err error
		n, err = tx.MarkAllAlertsRead(ctx, owner)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "Alerts marked read", log.FieldOwner, owner, "count", n)
	}
	return n, nil
}
