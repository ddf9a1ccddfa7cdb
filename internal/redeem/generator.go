package redeem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/taskbridge/internal/domain"
	"github.com/shaiso/taskbridge/internal/repo"
	"github.com/shaiso/taskbridge/internal/telemetry"
)

// Generator создаёт tasks погашения для anycards с needsRedeem=true.
type Generator struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewGenerator создаёт Generator.
func NewGenerator(cfg Config) *Generator {
	return &Generator{logger: cfg.logger(), now: cfg.clock()}
}

// Sync приводит очередь в соответствие с помеченными anycards.
//
// Карта пропускается, если для её номера есть SUCCEEDED task (номер из
// result) или живая task (номер из payload). Повторный вызов без
// изменений ничего не создаёт. Гонку двух конкурентных Sync закрывает
// уникальный индекс живых tasks: ErrAlreadyExists считается "уже в очереди".
func (g *Generator) Sync(ctx context.Context, repos repo.Repositories) ([]domain.Task, error) {
	flagged, err := repos.Anycards().ListNeedsRedeem(ctx)
	if err != nil {
		return nil, fmt.Errorf("list flagged anycards: %w", err)
	}
	if len(flagged) == 0 {
		return nil, nil
	}

	existing, err := repos.Tasks().ListByType(ctx, domain.TaskTypeGetMyBonusAnycard)
	if err != nil {
		return nil, fmt.Errorf("list redeem tasks: %w", err)
	}

	completed := make(map[string]struct{})
	pending := make(map[string]struct{})
	for i := range existing {
		t := &existing[i]
		switch {
		case t.Status == domain.TaskStatusSucceeded:
			if card := t.Result.Text(domain.CardNumberKeys...); card != "" {
				completed[card] = struct{}{}
			}
		case t.Status.IsLive():
			if card := t.LiveCardNumber(); card != "" {
				pending[card] = struct{}{}
			}
		}
	}

	var created []domain.Task
	for i := range flagged {
		card := &flagged[i]
		if card.CardNumber == "" {
			continue
		}
		if _, ok := completed[card.CardNumber]; ok {
			continue
		}
		if _, ok := pending[card.CardNumber]; ok {
			continue
		}

		task := domain.NewTask(domain.TaskTypeGetMyBonusAnycard, card.RedeemPayload(), g.now())
		err := repos.Tasks().Create(ctx, task)
		if errors.Is(err, repo.ErrAlreadyExists) {
			telemetry.WithAnycard(g.logger, card.ID, card.CardNumber).Debug("redeem task already pending")
			pending[card.CardNumber] = struct{}{}
			continue
		}
		if err != nil {
			return created, fmt.Errorf("create redeem task for anycard %s: %w", card.ID, err)
		}

		pending[card.CardNumber] = struct{}{}
		created = append(created, *task)
		telemetry.TasksCreated.WithLabelValues(string(task.Type), "generator").Inc()
	}

	if len(created) > 0 {
		g.logger.Info("redeem tasks generated", "count", len(created), "flagged", len(flagged))
	}
	return created, nil
}
