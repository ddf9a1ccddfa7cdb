package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/taskbridge/internal/domain"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newCardTask(card string, at time.Time) *domain.Task {
	return domain.NewTask(domain.TaskTypeGetMyBonusAnycard, domain.Document{domain.KeyCardNumber: card}, at)
}

func TestMemoryStore_NextReadyFIFO(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	second := newCardTask("222", t0.Add(time.Second))
	first := newCardTask("111", t0)
	for _, task := range []*domain.Task{second, first} {
		if err := s.Tasks().Create(ctx, task); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := s.Tasks().NextReady(ctx, domain.TaskTypeGetMyBonusAnycard)
	if err != nil {
		t.Fatalf("NextReady: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("NextReady вернул %s, ожидался самый старый %s", got.ID, first.ID)
	}
}

func TestMemoryStore_NextReadyEmpty(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Tasks().NextReady(context.Background(), domain.TaskTypeGetMyBonusAnycard)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound, получено %v", err)
	}
}

func TestMemoryStore_LiveCardUnique(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a := newCardTask("555", t0)
	if err := s.Tasks().Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Вторая живая task на ту же карту запрещена.
	if err := s.Tasks().Create(ctx, newCardTask("555", t0)); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("ожидалась ErrAlreadyExists, получено %v", err)
	}

	// Алиас card_number считается тем же ключом.
	alias := domain.NewTask(domain.TaskTypeGetMyBonusAnycard, domain.Document{"card_number": "555"}, t0)
	if err := s.Tasks().Create(ctx, alias); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("алиас: ожидалась ErrAlreadyExists, получено %v", err)
	}

	// После завершения карта освобождается.
	a.MarkSucceeded(domain.Document{}, t0.Add(time.Minute))
	if err := s.Tasks().Update(ctx, a); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Tasks().Create(ctx, newCardTask("555", t0)); err != nil {
		t.Fatalf("Create после завершения: %v", err)
	}
}

func TestMemoryStore_TasksWithoutCardDoNotConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 3; i++ {
		task := domain.NewTask(domain.TaskTypeGetMyBonusAnycard, nil, t0)
		if err := s.Tasks().Create(ctx, task); err != nil {
			t.Fatalf("Create #%d: %v", i, err)
		}
	}
}

func TestMemoryStore_ListOrderedByUpdatedDesc(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a := newCardTask("1", t0)
	b := newCardTask("2", t0.Add(time.Second))
	_ = s.Tasks().Create(ctx, a)
	_ = s.Tasks().Create(ctx, b)

	a.MarkClaimed(t0.Add(time.Hour))
	if err := s.Tasks().Update(ctx, a); err != nil {
		t.Fatalf("Update: %v", err)
	}

	list, err := s.Tasks().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("неверный порядок: %+v", list)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	task := newCardTask("1", t0)
	_ = s.Tasks().Create(ctx, task)
	task.Payload["cardNumber"] = "mutated"

	got, _ := s.Tasks().GetByID(ctx, task.ID)
	got.Payload["cardNumber"] = "mutated again"

	again, _ := s.Tasks().GetByID(ctx, task.ID)
	if v := again.Payload.Text(domain.KeyCardNumber); v != "1" {
		t.Errorf("payload изменён снаружи: %q", v)
	}
}

func TestMemoryStore_InTxRollback(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	task := newCardTask("1", t0)
	_ = s.Tasks().Create(ctx, task)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx Repositories) error {
		loaded, err := tx.Tasks().GetForUpdate(ctx, task.ID)
		if err != nil {
			return err
		}
		loaded.MarkClaimed(t0.Add(time.Second))
		if err := tx.Tasks().Update(ctx, loaded); err != nil {
			return err
		}
		if err := tx.Tasks().Create(ctx, newCardTask("2", t0)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("ожидалась boom, получено %v", err)
	}

	got, _ := s.Tasks().GetByID(ctx, task.ID)
	if got.Status != domain.TaskStatusReady {
		t.Errorf("status = %s, ожидался откат до READY", got.Status)
	}
	list, _ := s.Tasks().List(ctx)
	if len(list) != 1 {
		t.Errorf("ожидалась 1 task после отката, получено %d", len(list))
	}
}

func TestMemoryStore_InTxCommit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var id uuid.UUID
	err := s.InTx(ctx, func(tx Repositories) error {
		task := newCardTask("1", t0)
		id = task.ID
		return tx.Tasks().Create(ctx, task)
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if _, err := s.Tasks().GetByID(ctx, id); err != nil {
		t.Fatalf("task не сохранена: %v", err)
	}
}

func TestMemoryStore_Artifacts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	task := newCardTask("1", t0)
	_ = s.Tasks().Create(ctx, task)

	orphan := &domain.Artifact{ID: uuid.New(), TaskID: uuid.New(), CreatedAt: t0}
	if err := s.Artifacts().Create(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Fatalf("artifact без task: ожидалась ErrNotFound, получено %v", err)
	}

	a1 := &domain.Artifact{ID: uuid.New(), TaskID: task.ID, Filename: "a.png", CreatedAt: t0}
	a2 := &domain.Artifact{ID: uuid.New(), TaskID: task.ID, Filename: "b.png", CreatedAt: t0}
	_ = s.Artifacts().Create(ctx, a1)
	_ = s.Artifacts().Create(ctx, a2)

	list, err := s.Artifacts().ListByTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("ListByTask: %v", err)
	}
	if len(list) != 2 || list[0].ID != a1.ID || list[1].ID != a2.ID {
		t.Fatalf("неверный порядок artifacts: %+v", list)
	}

	if err := s.Artifacts().Delete(ctx, a1.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Artifacts().GetByID(ctx, a1.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

func TestMemoryStore_Anycards(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	card := &domain.Anycard{
		ID:           uuid.New(),
		CardNumber:   "111",
		SerialNumber: "S-1",
		Type:         domain.AnycardTypeCelebrate,
		NeedsRedeem:  true,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	if err := s.Anycards().Create(ctx, card); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dup := *card
	dup.ID = uuid.New()
	if err := s.Anycards().Create(ctx, &dup); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("дубликат (type, card): ожидалась ErrAlreadyExists, получено %v", err)
	}

	if got, err := s.Anycards().FindBySerialNumber(ctx, "S-1"); err != nil || got.ID != card.ID {
		t.Fatalf("FindBySerialNumber: %v, %+v", err, got)
	}
	if got, err := s.Anycards().FindByTypeAndCardNumber(ctx, domain.AnycardTypeCelebrate, "111"); err != nil || got.ID != card.ID {
		t.Fatalf("FindByTypeAndCardNumber: %v, %+v", err, got)
	}
	if _, err := s.Anycards().FindBySerialNumber(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("пустой serial не должен находиться: %v", err)
	}

	card.NeedsRedeem = false
	if err := s.Anycards().Update(ctx, card); err != nil {
		t.Fatalf("Update: %v", err)
	}
	pending, _ := s.Anycards().ListNeedsRedeem(ctx)
	if len(pending) != 0 {
		t.Errorf("ожидалось 0 карт к погашению, получено %d", len(pending))
	}
}
