package redeem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/taskbridge/internal/domain"
	"github.com/shaiso/taskbridge/internal/repo"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{Now: func() time.Time { return testNow }}
}

func seedAnycard(t *testing.T, s *repo.MemoryStore, card, serial string, needsRedeem bool) *domain.Anycard {
	t.Helper()
	c := &domain.Anycard{
		ID:           uuid.New(),
		CardNumber:   card,
		SerialNumber: serial,
		Type:         domain.AnycardTypeCelebrate,
		NeedsRedeem:  needsRedeem,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	if err := s.Anycards().Create(context.Background(), c); err != nil {
		t.Fatalf("seed anycard: %v", err)
	}
	return c
}

func seedTask(t *testing.T, s *repo.MemoryStore, payload domain.Document) *domain.Task {
	t.Helper()
	task := domain.NewTask(domain.TaskTypeGetMyBonusAnycard, payload, testNow)
	if err := s.Tasks().Create(context.Background(), task); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return task
}

// --- Generator ---

func TestGenerator_CreatesTaskWithSnapshot(t *testing.T) {
	ctx := context.Background()
	s := repo.NewMemoryStore()
	card := seedAnycard(t, s, "222", "S-222", true)

	created, err := NewGenerator(testConfig()).Sync(ctx, s)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("ожидалась 1 task, создано %d", len(created))
	}

	p := created[0].Payload
	if p.Text(domain.KeyCardNumber) != "222" {
		t.Errorf("cardNumber = %q", p.Text(domain.KeyCardNumber))
	}
	if p.Text(domain.KeyAnycardID) != card.ID.String() {
		t.Errorf("anycardId = %q", p.Text(domain.KeyAnycardID))
	}
	if p.Text(domain.KeySerialNumber) != "S-222" {
		t.Errorf("serialNumber = %q", p.Text(domain.KeySerialNumber))
	}
	if p.Text(domain.KeyAnycardType) != "Celebrate" {
		t.Errorf("anycardType = %q", p.Text(domain.KeyAnycardType))
	}
	if created[0].Status != domain.TaskStatusReady {
		t.Errorf("status = %s", created[0].Status)
	}
}

func TestGenerator_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := repo.NewMemoryStore()
	seedAnycard(t, s, "1", "", true)
	seedAnycard(t, s, "2", "", true)

	g := NewGenerator(testConfig())
	first, err := g.Sync(ctx, s)
	if err != nil {
		t.Fatalf("Sync #1: %v", err)
	}
	second, err := g.Sync(ctx, s)
	if err != nil {
		t.Fatalf("Sync #2: %v", err)
	}
	if len(first) != 2 || len(second) != 0 {
		t.Fatalf("создано %d и %d, ожидалось 2 и 0", len(first), len(second))
	}

	all, _ := s.Tasks().List(ctx)
	if len(all) != 2 {
		t.Errorf("всего tasks %d, ожидалось 2", len(all))
	}
}

func TestGenerator_SkipsCompletedAndPending(t *testing.T) {
	ctx := context.Background()
	s := repo.NewMemoryStore()
	seedAnycard(t, s, "done", "", true)
	seedAnycard(t, s, "live", "", true)
	seedAnycard(t, s, "failed", "", true)
	seedAnycard(t, s, "idle", "", false)

	// Завершённая: номер берётся из result.
	done := seedTask(t, s, domain.Document{})
	done.MarkSucceeded(domain.Document{"card_number": "done"}, testNow.Add(time.Second))
	if err := s.Tasks().Update(ctx, done); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Живая: номер из payload (алиас card_number).
	seedTask(t, s, domain.Document{"card_number": "live"})

	// FAILED не блокирует новую task.
	failed := seedTask(t, s, domain.Document{domain.KeyCardNumber: "failed"})
	failed.MarkFailed("timeout", nil, testNow.Add(time.Second))
	if err := s.Tasks().Update(ctx, failed); err != nil {
		t.Fatalf("update: %v", err)
	}

	created, err := NewGenerator(testConfig()).Sync(ctx, s)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(created) != 1 || created[0].LiveCardNumber() != "failed" {
		t.Fatalf("ожидалась task только для карты failed, получено %+v", created)
	}
}

// conflictRepos имитирует конкурента, успевшего создать task между
// чтением и вставкой.
type conflictRepos struct {
	repo.Repositories
}

func (c conflictRepos) Tasks() repo.TaskRepository {
	return conflictTasks{TaskRepository: c.Repositories.Tasks()}
}

type conflictTasks struct {
	repo.TaskRepository
}

func (conflictTasks) Create(context.Context, *domain.Task) error {
	return repo.ErrAlreadyExists
}

func TestGenerator_ConflictMeansAlreadyPending(t *testing.T) {
	s := repo.NewMemoryStore()
	seedAnycard(t, s, "race", "", true)

	created, err := NewGenerator(testConfig()).Sync(context.Background(), conflictRepos{Repositories: s})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("ожидалось 0 созданных, получено %d", len(created))
	}
}

// --- Enricher ---

func TestEnricher_ByAnycardID(t *testing.T) {
	ctx := context.Background()
	s := repo.NewMemoryStore()
	card := seedAnycard(t, s, "111", "S-1", true)
	task := seedTask(t, s, domain.Document{domain.KeyAnycardID: card.ID.String()})

	changed, err := NewEnricher(testConfig()).Enrich(ctx, s, task)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if !changed || task.Payload.Text(domain.KeySerialNumber) != "S-1" {
		t.Fatalf("serial не добавлен: %+v", task.Payload)
	}
}

func TestEnricher_ByCardNumberAddsID(t *testing.T) {
	ctx := context.Background()
	s := repo.NewMemoryStore()
	card := seedAnycard(t, s, "111", "S-1", true)
	task := seedTask(t, s, domain.Document{domain.KeyCardNumber: "111"})
	before := task.UpdatedAt

	changed, err := NewEnricher(testConfig()).Enrich(ctx, s, task)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if !changed {
		t.Fatal("ожидалось изменение payload")
	}
	if task.Payload.Text(domain.KeyAnycardID) != card.ID.String() {
		t.Errorf("anycardId = %q", task.Payload.Text(domain.KeyAnycardID))
	}
	if !task.UpdatedAt.After(before) {
		t.Errorf("updatedAt не изменился")
	}
}

func TestEnricher_NoOp(t *testing.T) {
	ctx := context.Background()
	s := repo.NewMemoryStore()
	seedAnycard(t, s, "111", "S-1", true)
	seedAnycard(t, s, "333", "", true)

	tests := []struct {
		name    string
		payload domain.Document
	}{
		{"serial already present", domain.Document{domain.KeyCardNumber: "111", "serial_number": "OWN"}},
		{"card without serial", domain.Document{domain.KeyCardNumber: "333"}},
		{"unknown card", domain.Document{domain.KeyCardNumber: "999"}},
		{"empty payload", domain.Document{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := domain.NewTask(domain.TaskTypeGetMyBonusAnycard, tt.payload, testNow)
			changed, err := NewEnricher(testConfig()).Enrich(ctx, s, task)
			if err != nil {
				t.Fatalf("Enrich: %v", err)
			}
			if changed {
				t.Errorf("payload не должен меняться: %+v", task.Payload)
			}
		})
	}
}

// --- Reconciler ---

func TestReconciler_ClearsByAnycardID(t *testing.T) {
	ctx := context.Background()
	s := repo.NewMemoryStore()
	card := seedAnycard(t, s, "111", "S-1", true)
	task := seedTask(t, s, card.RedeemPayload())

	err := NewReconciler(testConfig()).Reconcile(ctx, s, task, domain.Document{
		"card_number": "111",
		"PIN":         "0000",
		"balance":     "25.00",
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	got, _ := s.Anycards().GetByID(ctx, card.ID)
	if got.NeedsRedeem {
		t.Error("needsRedeem не сброшен")
	}
	if got.PIN != "0000" || got.Balance != "25.00" {
		t.Errorf("upsert не обновил поля: %+v", got)
	}
	if got.SerialNumber != "S-1" {
		t.Errorf("serial потерян: %q", got.SerialNumber)
	}
}

func TestReconciler_ClearsBySerialFromResult(t *testing.T) {
	ctx := context.Background()
	s := repo.NewMemoryStore()
	card := seedAnycard(t, s, "444", "S-4", true)
	task := seedTask(t, s, domain.Document{})

	err := NewReconciler(testConfig()).Reconcile(ctx, s, task, domain.Document{
		"card_number":   "444",
		"serial_number": "S-4",
		"card_type":     "Celebrate",
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	got, _ := s.Anycards().GetByID(ctx, card.ID)
	if got.NeedsRedeem {
		t.Error("needsRedeem не сброшен")
	}
}

func TestReconciler_BrokenLinkIsConsistencyError(t *testing.T) {
	ctx := context.Background()
	s := repo.NewMemoryStore()
	task := seedTask(t, s, domain.Document{domain.KeyAnycardID: uuid.NewString()})

	err := NewReconciler(testConfig()).Reconcile(ctx, s, task, domain.Document{"card_number": "555"})
	if !errors.Is(err, domain.ErrConsistency) {
		t.Fatalf("ожидалась ErrConsistency, получено %v", err)
	}
}

func TestReconciler_UnknownSerialFromResultIsConsistencyError(t *testing.T) {
	ctx := context.Background()
	s := repo.NewMemoryStore()
	seedAnycard(t, s, "111", "S-111", true)
	task := seedTask(t, s, domain.Document{domain.KeyCardNumber: "999"})

	err := NewReconciler(testConfig()).Reconcile(ctx, s, task, domain.Document{
		"card_number":   "999",
		"serial_number": "S-UNKNOWN",
	})
	if !errors.Is(err, domain.ErrConsistency) {
		t.Fatalf("ожидалась ErrConsistency, получено %v", err)
	}
}

func TestUpsertFromResult_KeepsSerial(t *testing.T) {
	ctx := context.Background()
	s := repo.NewMemoryStore()
	seedAnycard(t, s, "121", "", false)

	card, err := UpsertFromResult(ctx, s, domain.Document{
		"card_number":   "121",
		"serial_number": "S-FROM-WORKER",
	}, nil, testNow)
	if err != nil {
		t.Fatalf("UpsertFromResult: %v", err)
	}
	if card.SerialNumber != "" {
		t.Errorf("serial из result не должен записываться, получено %q", card.SerialNumber)
	}
	if _, err := s.Anycards().FindBySerialNumber(ctx, "S-FROM-WORKER"); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("карта не должна находиться по serial из result: %v", err)
	}
}

func TestReconciler_NoHintIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := repo.NewMemoryStore()
	task := seedTask(t, s, domain.Document{domain.KeyCardNumber: "666"})

	err := NewReconciler(testConfig()).Reconcile(ctx, s, task, domain.Document{"card_number": "666", "PIN": "1"})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	// Upsert создал карту, флаг не выставлялся.
	got, err := s.Anycards().FindByTypeAndCardNumber(ctx, domain.AnycardTypeCelebrate, "666")
	if err != nil {
		t.Fatalf("карта не создана: %v", err)
	}
	if got.NeedsRedeem || got.PIN != "1" {
		t.Errorf("неожиданная карта: %+v", got)
	}
}

func TestReconciler_Validation(t *testing.T) {
	ctx := context.Background()
	s := repo.NewMemoryStore()
	task := seedTask(t, s, domain.Document{})

	tests := []struct {
		name   string
		result domain.Document
	}{
		{"missing card number", domain.Document{"PIN": "1"}},
		{"blank card number", domain.Document{"card_number": "  "}},
		{"unknown card type", domain.Document{"card_number": "1", "card_type": "Platinum"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewReconciler(testConfig()).Reconcile(ctx, s, task, tt.result)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("ожидалась ErrValidation, получено %v", err)
			}
		})
	}
}

func TestUpsertFromResult_TypeFromPayload(t *testing.T) {
	ctx := context.Background()
	s := repo.NewMemoryStore()

	card, err := UpsertFromResult(ctx, s,
		domain.Document{"card_number": "777"},
		domain.Document{domain.KeyAnycardType: "CELEBRATE CARD"},
		testNow,
	)
	if err != nil {
		t.Fatalf("UpsertFromResult: %v", err)
	}
	if card.Type != domain.AnycardTypeCelebrate {
		t.Errorf("type = %s", card.Type)
	}

	// Повторный upsert обновляет ту же запись.
	again, err := UpsertFromResult(ctx, s, domain.Document{"card_number": "777", "PIN": "9"}, nil, testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("UpsertFromResult #2: %v", err)
	}
	if again.ID != card.ID || again.PIN != "9" {
		t.Errorf("ожидалось обновление записи %s, получено %+v", card.ID, again)
	}
}

// --- Flagger ---

func TestFlagger_CreateAndReflag(t *testing.T) {
	ctx := context.Background()
	s := repo.NewMemoryStore()
	f := NewFlagger(s, testConfig())

	card, err := f.Flag(ctx, Signal{CardNumber: " 888 ", SerialNumber: "S-8"})
	if err != nil {
		t.Fatalf("Flag: %v", err)
	}
	if !card.NeedsRedeem || card.CardNumber != "888" || card.Type != domain.AnycardTypeCelebrate {
		t.Fatalf("неожиданная карта: %+v", card)
	}

	card.NeedsRedeem = false
	if err := s.Anycards().Update(ctx, card); err != nil {
		t.Fatalf("Update: %v", err)
	}

	again, err := f.Flag(ctx, Signal{CardNumber: "888", SerialNumber: "OTHER", CardType: "celebrate"})
	if err != nil {
		t.Fatalf("Flag #2: %v", err)
	}
	if again.ID != card.ID || !again.NeedsRedeem || again.SerialNumber != "S-8" {
		t.Fatalf("повторный сигнал должен обновить ту же карту: %+v", again)
	}

	if _, err := f.Flag(ctx, Signal{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("пустой номер: ожидалась ErrValidation, получено %v", err)
	}
}
