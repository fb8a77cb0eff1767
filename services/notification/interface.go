package notification

import (
	"context"
	"errors"

	"skylark/models"
)

// Notifier delivers an alert to one client.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, alert models.Alert) error

func (f NotifierFunc) Notify(ctx context.Context, alert models.Alert) error {
	return f(ctx, alert)
}

// MultiNotifier fans an alert out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, alert models.Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
