package alerts

import (
	"context"
	"errors"

	"treasury/internal/types"
)

// MultiSender delivers to every sink. It succeeds only if all sinks do.
type MultiSender []types.AlertSender

// Send calls every sender and joins their errors.
func (m MultiSender) Send(ctx context.Context, payload types.AlertPayload) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
