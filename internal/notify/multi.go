package notify

import (
	"context"

	"go.uber.org/multierr"

	"github.com/xenking/atelier/internal/domain/order"
)

// Multi fans an event out to every notifier. A failing notifier does not
// stop the others; all errors are combined.
type Multi []order.Notifier

// OrderPlaced implements order.Notifier.
func (m Multi) OrderPlaced(ctx context.Context, o *order.Order) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.OrderPlaced(ctx, o))
	}
	return err
}
