package redeem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/taskbridge/internal/domain"
	"github.com/shaiso/taskbridge/internal/repo"
)

// Ключи result, присылаемые воркером.
const (
	resultKeyCardNumber = "card_number"
	resultKeyPIN        = "PIN"
	resultKeyBalance    = "balance"
	resultKeyCardType   = "card_type"
)

// resolveAnycardType выбирает тип карты: из result, из payload task,
// иначе DefaultAnycardType. Нераспознанное значение — ошибка валидации.
func resolveAnycardType(result, payload domain.Document) (domain.AnycardType, error) {
	if v := result.Text(resultKeyCardType, "cardType"); v != "" {
		return domain.ParseAnycardType(v)
	}
	if v := payload.Text(domain.KeyAnycardType); v != "" {
		return domain.ParseAnycardType(v)
	}
	return domain.DefaultAnycardType, nil
}

// UpsertFromResult создаёт или обновляет anycard по (type, card_number) из result.
//
// card_number обязателен. PIN и balance перезаписываются значениями из
// result; серийный номер и needsRedeem существующей записи сохраняются.
// Серийный номер из result не записывается: по нему Reconciler ищет
// карту, которую нужно погасить.
func UpsertFromResult(ctx context.Context, repos repo.Repositories, result, payload domain.Document, now time.Time) (*domain.Anycard, error) {
	cardNumber := result.Text(resultKeyCardNumber, domain.KeyCardNumber)
	if cardNumber == "" {
		return nil, fmt.Errorf("%w: result.card_number is required", domain.ErrValidation)
	}
	cardType, err := resolveAnycardType(result, payload)
	if err != nil {
		return nil, err
	}

	card, err := repos.Anycards().FindByTypeAndCardNumber(ctx, cardType, cardNumber)
	isNew := false
	switch {
	case errors.Is(err, repo.ErrNotFound):
		isNew = true
		card = &domain.Anycard{
			ID:         uuid.New(),
			CardNumber: cardNumber,
			Type:       cardType,
			CreatedAt:  now,
		}
	case err != nil:
		return nil, fmt.Errorf("find anycard: %w", err)
	}

	card.PIN = result.Text(resultKeyPIN, "pin")
	card.Balance = result.Text(resultKeyBalance)
	card.UpdatedAt = now

	if isNew {
		if err := repos.Anycards().Create(ctx, card); err != nil {
			return nil, fmt.Errorf("create anycard: %w", err)
		}
		return card, nil
	}
	if err := repos.Anycards().Update(ctx, card); err != nil {
		return nil, fmt.Errorf("update anycard: %w", err)
	}
	return card, nil
}
