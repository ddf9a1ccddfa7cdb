package redeem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/taskbridge/internal/domain"
	"github.com/shaiso/taskbridge/internal/repo"
)

// Enricher дополняет payload заявленной task серийным номером карты.
type Enricher struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewEnricher создаёт Enricher.
func NewEnricher(cfg Config) *Enricher {
	return &Enricher{logger: cfg.logger(), now: cfg.clock()}
}

// Enrich ищет anycard по anycardId, затем по cardNumber, и, если у неё
// есть серийный номер, записывает его (и anycardId, если не было) в payload.
// Payload, где серийный номер уже есть, не трогается.
// Возвращает true, если payload изменён.
func (e *Enricher) Enrich(ctx context.Context, repos repo.Repositories, task *domain.Task) (bool, error) {
	if task.Payload.Text(domain.SerialNumberKeys...) != "" {
		return false, nil
	}

	anycardID := task.Payload.Text(domain.KeyAnycardID)
	cardNumber := task.Payload.Text(domain.CardNumberKeys...)

	var card *domain.Anycard
	if anycardID != "" {
		found, err := findAnycardByID(ctx, repos, anycardID)
		if err != nil {
			return false, err
		}
		card = found
	}
	if card == nil && cardNumber != "" {
		found, err := repos.Anycards().FindByCardNumber(ctx, cardNumber)
		switch {
		case errors.Is(err, repo.ErrNotFound):
		case err != nil:
			return false, fmt.Errorf("find anycard by card number: %w", err)
		default:
			card = found
		}
	}
	if card == nil || card.SerialNumber == "" {
		return false, nil
	}

	now := e.now()
	task.PatchPayload(domain.KeySerialNumber, card.SerialNumber, now)
	if anycardID == "" {
		task.PatchPayload(domain.KeyAnycardID, card.ID.String(), now)
	}
	e.logger.Debug("task payload enriched", "task_id", task.ID, "anycard_id", card.ID)
	return true, nil
}

// findAnycardByID возвращает nil, если id не UUID или карта не найдена.
func findAnycardByID(ctx context.Context, repos repo.Repositories, id string) (*domain.Anycard, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}
	card, err := repos.Anycards().GetByID(ctx, parsed)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get anycard: %w", err)
	}
	return card, nil
}
