package mq

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/taskbridge/internal/domain"
	"github.com/shaiso/taskbridge/internal/redeem"
)

// Flagger — получатель сигналов погашения (redeem.Flagger).
type Flagger interface {
	Flag(ctx context.Context, sig redeem.Signal) (*domain.Anycard, error)
}

// FlaggedHandler обрабатывает сообщения anycard.flagged из
// очереди anycards.flagged. Некорректные сигналы уходят в DLQ.
func FlaggedHandler(f Flagger) Handler {
	return func(ctx context.Context, d *Delivery) error {
		if d.Message.Type != MessageTypeAnycardFlagged {
			return fmt.Errorf("%w: unexpected message type %q", ErrDiscard, d.Message.Type)
		}
		sig, err := ParsePayload[redeem.Signal](&d.Message)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDiscard, err)
		}
		if _, err := f.Flag(ctx, sig); err != nil {
			if errors.Is(err, domain.ErrValidation) {
				return fmt.Errorf("%w: %w", ErrDiscard, err)
			}
			return err
		}
		return nil
	}
}
