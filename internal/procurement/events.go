package procurement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ChangeEvent describes a committed write that affects report figures.
type ChangeEvent struct {
	Entity     string
	Action     string
	ID         uuid.UUID
	OccurredAt time.Time
}

// ChangeNotifier receives committed writes, typically to invalidate cached reports.
type ChangeNotifier interface {
	NotifyChange(ctx context.Context, evt ChangeEvent) error
}

// ChangeNotifierFunc adapts a function to ChangeNotifier.
type ChangeNotifierFunc func(ctx context.Context, evt ChangeEvent) error

// NotifyChange implements ChangeNotifier.
func (f ChangeNotifierFunc) NotifyChange(ctx context.Context, evt ChangeEvent) error {
	return f(ctx, evt)
}

// Notifiers fans an event out to every notifier and joins their errors.
type Notifiers []ChangeNotifier

// NotifyChange implements ChangeNotifier.
func (n Notifiers) NotifyChange(ctx context.Context, evt ChangeEvent) error {
	var errs []error
	for _, notifier := range n {
		if notifier == nil {
			continue
		}
		if err := notifier.NotifyChange(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
