package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shaiso/taskbridge/internal/domain"
)

// AnycardRepo — репозиторий anycards.
type AnycardRepo struct {
	db dbtx
}

// NewAnycardRepo создаёт новый AnycardRepo.
func NewAnycardRepo(db dbtx) *AnycardRepo {
	return &AnycardRepo{db: db}
}

const anycardColumns = `id, card_number, serial_number, pin, balance, anycard_type, needs_redeem, created_at, updated_at`

// Create сохраняет новую anycard. Пара (type, card_number) уникальна.
func (r *AnycardRepo) Create(ctx context.Context, c *domain.Anycard) error {
	query := `
		INSERT INTO anycards (` + anycardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		c.ID,
		c.CardNumber,
		nullString(c.SerialNumber),
		nullString(c.PIN),
		nullString(c.Balance),
		c.Type,
		c.NeedsRedeem,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert anycard: %w", err)
	}
	return nil
}

// GetByID возвращает anycard по ID.
func (r *AnycardRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Anycard, error) {
	query := `SELECT ` + anycardColumns + ` FROM anycards WHERE id = $1`
	return scanAnycard(r.db.QueryRow(ctx, query, id))
}

// FindByCardNumber возвращает самую старую anycard с этим номером.
func (r *AnycardRepo) FindByCardNumber(ctx context.Context, cardNumber string) (*domain.Anycard, error) {
	query := `
		SELECT ` + anycardColumns + `
		FROM anycards
		WHERE card_number = $1
		ORDER BY created_at ASC
		LIMIT 1
	`
	return scanAnycard(r.db.QueryRow(ctx, query, cardNumber))
}

// FindBySerialNumber возвращает самую старую anycard с этим серийным номером.
func (r *AnycardRepo) FindBySerialNumber(ctx context.Context, serialNumber string) (*domain.Anycard, error) {
	query := `
		SELECT ` + anycardColumns + `
		FROM anycards
		WHERE serial_number = $1
		ORDER BY created_at ASC
		LIMIT 1
	`
	return scanAnycard(r.db.QueryRow(ctx, query, serialNumber))
}

// FindByTypeAndCardNumber ищет anycard по естественному ключу.
func (r *AnycardRepo) FindByTypeAndCardNumber(ctx context.Context, cardType domain.AnycardType, cardNumber string) (*domain.Anycard, error) {
	query := `SELECT ` + anycardColumns + ` FROM anycards WHERE anycard_type = $1 AND card_number = $2`
	return scanAnycard(r.db.QueryRow(ctx, query, cardType, cardNumber))
}

// ListNeedsRedeem возвращает anycards, ожидающие погашения, в порядке создания.
func (r *AnycardRepo) ListNeedsRedeem(ctx context.Context) ([]domain.Anycard, error) {
	query := `
		SELECT ` + anycardColumns + `
		FROM anycards
		WHERE needs_redeem
		ORDER BY created_at ASC, id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list anycards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Anycard
	for rows.Next() {
		c, err := scanAnycard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

// Update сохраняет изменяемые поля anycard.
func (r *AnycardRepo) Update(ctx context.Context, c *domain.Anycard) error {
	query := `
		UPDATE anycards
		SET card_number = $2, serial_number = $3, pin = $4, balance = $5,
		    anycard_type = $6, needs_redeem = $7, updated_at = $8
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query,
		c.ID,
		c.CardNumber,
		nullString(c.SerialNumber),
		nullString(c.PIN),
		nullString(c.Balance),
		c.Type,
		c.NeedsRedeem,
		c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("update anycard: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAnycard(row pgx.Row) (*domain.Anycard, error) {
	var c domain.Anycard
	var serial, pin, balance *string

	err := row.Scan(
		&c.ID,
		&c.CardNumber,
		&serial,
		&pin,
		&balance,
		&c.Type,
		&c.NeedsRedeem,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan anycard: %w", err)
	}
	c.SerialNumber = derefString(serial)
	c.PIN = derefString(pin)
	c.Balance = derefString(balance)
	return &c, nil
}
