package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AnycardType — закрытое перечисление типов anycard.
type AnycardType string

const (
	// AnycardTypeCelebrate — карта "Celebrate".
	AnycardTypeCelebrate AnycardType = "Celebrate"
)

// DefaultAnycardType — тип, используемый, когда ни result, ни payload его не называют.
const DefaultAnycardType = AnycardTypeCelebrate

// ParseAnycardType парсит тип карты.
//
// Принимаются имя ("CELEBRATE"), code ("Celebrate") и подпись со страницы
// ("Celebrate Card"), без учёта регистра.
func ParseAnycardType(s string) (AnycardType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	switch normalized {
	case "":
		return "", fmt.Errorf("%w: anycard type is required", ErrValidation)
	case "CELEBRATE", "CELEBRATE CARD":
		return AnycardTypeCelebrate, nil
	default:
		return "", fmt.Errorf("%w: unknown anycard type: %s", ErrValidation, s)
	}
}

// Anycard — погашаемая карта (внешний агрегат).
//
// Ядро читает её, чтобы решить, нужна ли работа, и сбрасывает NeedsRedeem
// только после успешного, прослеживаемого завершения task.
type Anycard struct {
	ID           uuid.UUID   `json:"id"`
	CardNumber   string      `json:"card_number"`
	SerialNumber string      `json:"serial_number,omitempty"`
	PIN          string      `json:"pin,omitempty"`
	Balance      string      `json:"balance,omitempty"`
	Type         AnycardType `json:"anycard_type"`
	NeedsRedeem  bool        `json:"needs_redeem"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// RedeemPayload — снимок anycard для payload сгенерированной task.
func (a *Anycard) RedeemPayload() Document {
	doc := Document{
		KeyAnycardID:  a.ID.String(),
		KeyCardNumber: a.CardNumber,
	}
	if a.SerialNumber != "" {
		doc[KeySerialNumber] = a.SerialNumber
	}
	if a.Type != "" {
		doc[KeyAnycardType] = string(a.Type)
	}
	return doc
}
