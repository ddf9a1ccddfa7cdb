package redeem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/taskbridge/internal/domain"
	"github.com/shaiso/taskbridge/internal/repo"
	"github.com/shaiso/taskbridge/internal/telemetry"
)

// Signal — сообщение "карта требует погашения" от внешнего источника
// (например, разбора почты).
type Signal struct {
	CardNumber   string `json:"card_number"`
	SerialNumber string `json:"serial_number,omitempty"`
	CardType     string `json:"card_type,omitempty"`
}

// Flagger помечает anycards для погашения.
type Flagger struct {
	store  repo.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewFlagger создаёт Flagger.
func NewFlagger(store repo.Store, cfg Config) *Flagger {
	return &Flagger{store: store, logger: cfg.logger(), now: cfg.clock()}
}

// Flag создаёт anycard или выставляет needsRedeem у существующей.
// Серийный номер записывается, только если у карты его ещё нет.
func (f *Flagger) Flag(ctx context.Context, sig Signal) (*domain.Anycard, error) {
	cardNumber := strings.TrimSpace(sig.CardNumber)
	if cardNumber == "" {
		return nil, fmt.Errorf("%w: card_number is required", domain.ErrValidation)
	}
	cardType := domain.DefaultAnycardType
	if strings.TrimSpace(sig.CardType) != "" {
		parsed, err := domain.ParseAnycardType(sig.CardType)
		if err != nil {
			return nil, err
		}
		cardType = parsed
	}
	serial := strings.TrimSpace(sig.SerialNumber)

	var card *domain.Anycard
	err := f.store.InTx(ctx, func(tx repo.Repositories) error {
		now := f.now()
		existing, err := tx.Anycards().FindByTypeAndCardNumber(ctx, cardType, cardNumber)
		if errors.Is(err, repo.ErrNotFound) {
			card = &domain.Anycard{
				ID:           uuid.New(),
				CardNumber:   cardNumber,
				SerialNumber: serial,
				Type:         cardType,
				NeedsRedeem:  true,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			return tx.Anycards().Create(ctx, card)
		}
		if err != nil {
			return fmt.Errorf("find anycard: %w", err)
		}

		card = existing
		card.NeedsRedeem = true
		if card.SerialNumber == "" {
			card.SerialNumber = serial
		}
		card.UpdatedAt = now
		return tx.Anycards().Update(ctx, card)
	})
	if err != nil {
		return nil, err
	}

	telemetry.WithAnycard(f.logger, card.ID, card.CardNumber).Info("anycard flagged for redeem")
	return card, nil
}
