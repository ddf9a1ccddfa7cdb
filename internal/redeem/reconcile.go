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
	"github.com/shaiso/taskbridge/internal/telemetry"
)

// Reconciler применяет результат завершённой task к anycards.
type Reconciler struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler создаёт Reconciler.
func NewReconciler(cfg Config) *Reconciler {
	return &Reconciler{logger: cfg.logger(), now: cfg.clock()}
}

// Reconcile делает upsert anycard из result и сбрасывает needsRedeem
// у карты, от которой task была порождена.
//
// Карта ищется по anycardId из payload, иначе по серийному номеру из
// result, затем из payload. Если подсказка есть, а карты нет —
// domain.ErrConsistency: генератор иначе создаст для карты новую task.
// Без подсказок сброс не выполняется.
func (r *Reconciler) Reconcile(ctx context.Context, repos repo.Repositories, task *domain.Task, result domain.Document) error {
	now := r.now()

	upserted, err := UpsertFromResult(ctx, repos, result, task.Payload, now)
	if err != nil {
		return err
	}

	anycardID := task.Payload.Text(domain.KeyAnycardID)
	serial := result.Text(domain.SerialNumberKeys...)
	if serial == "" {
		serial = task.Payload.Text(domain.SerialNumberKeys...)
	}
	if anycardID == "" && serial == "" {
		r.logger.Debug("no redeem hint, needs-redeem flag left untouched",
			"task_id", task.ID, "anycard_id", upserted.ID)
		return nil
	}

	card, err := resolveRedeemed(ctx, repos, anycardID, serial)
	if err != nil {
		return err
	}
	if card == nil {
		return fmt.Errorf("%w: redeemed anycard not found to clear needs-redeem (anycardId=%q, serialNumber=%q)",
			domain.ErrConsistency, anycardID, serial)
	}

	card.NeedsRedeem = false
	card.UpdatedAt = now
	if err := repos.Anycards().Update(ctx, card); err != nil {
		return fmt.Errorf("clear needs-redeem: %w", err)
	}

	telemetry.AnycardsCleared.Inc()
	telemetry.WithAnycard(r.logger, card.ID, card.CardNumber).Info("anycard redeemed", "task_id", task.ID)
	return nil
}

func resolveRedeemed(ctx context.Context, repos repo.Repositories, anycardID, serial string) (*domain.Anycard, error) {
	if anycardID != "" {
		if id, err := uuid.Parse(anycardID); err == nil {
			card, err := repos.Anycards().GetByID(ctx, id)
			switch {
			case err == nil:
				return card, nil
			case !errors.Is(err, repo.ErrNotFound):
				return nil, fmt.Errorf("get anycard: %w", err)
			}
		}
	}
	if serial != "" {
		card, err := repos.Anycards().FindBySerialNumber(ctx, serial)
		switch {
		case err == nil:
			return card, nil
		case !errors.Is(err, repo.ErrNotFound):
			return nil, fmt.Errorf("find anycard by serial: %w", err)
		}
	}
	return nil, nil
}
