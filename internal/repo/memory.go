package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/taskbridge/internal/domain"
)

// MemoryStore — Store в памяти процесса.
//
// Транзакции сериализуются одним мьютексом; ошибка fn восстанавливает
// снимок данных, сделанный перед InTx. Используется в тестах пакетов,
// которым нужен Store без PostgreSQL; правила уникальности те же, что
// у индексов миграций.
type MemoryStore struct {
	mu   sync.Mutex
	data memData
}

type memData struct {
	seq       uint64
	tasks     map[uuid.UUID]memTask
	artifacts map[uuid.UUID]memArtifact
	anycards  map[uuid.UUID]memAnycard
}

type memTask struct {
	task domain.Task
	seq  uint64
}

type memArtifact struct {
	artifact domain.Artifact
	seq      uint64
}

type memAnycard struct {
	card domain.Anycard
	seq  uint64
}

// NewMemoryStore создаёт пустой MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

func newMemData() memData {
	return memData{
		tasks:     make(map[uuid.UUID]memTask),
		artifacts: make(map[uuid.UUID]memArtifact),
		anycards:  make(map[uuid.UUID]memAnycard),
	}
}

func (d *memData) clone() memData {
	c := newMemData()
	c.seq = d.seq
	for id, t := range d.tasks {
		c.tasks[id] = memTask{task: *t.task.Clone(), seq: t.seq}
	}
	for id, a := range d.artifacts {
		c.artifacts[id] = a
	}
	for id, card := range d.anycards {
		c.anycards[id] = card
	}
	return c
}

func (d *memData) next() uint64 {
	d.seq++
	return d.seq
}

func (s *MemoryStore) Tasks() TaskRepository         { return &memTaskRepo{s: s} }
func (s *MemoryStore) Artifacts() ArtifactRepository { return &memArtifactRepo{s: s} }
func (s *MemoryStore) Anycards() AnycardRepository   { return &memAnycardRepo{s: s} }

// InTx выполняет fn под эксклюзивной блокировкой хранилища.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	committed := false
	defer func() {
		if !committed {
			s.data = snapshot
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(memTx{s: s}); err != nil {
		return err
	}
	committed = true
	return nil
}

// memTx — репозитории внутри InTx, мьютекс уже захвачен.
type memTx struct {
	s *MemoryStore
}

func (t memTx) Tasks() TaskRepository         { return &memTaskRepo{s: t.s, inTx: true} }
func (t memTx) Artifacts() ArtifactRepository { return &memArtifactRepo{s: t.s, inTx: true} }
func (t memTx) Anycards() AnycardRepository   { return &memAnycardRepo{s: t.s, inTx: true} }

// lock захватывает мьютекс, если вызов идёт не из транзакции.
func (s *MemoryStore) lock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// --- tasks ---

type memTaskRepo struct {
	s    *MemoryStore
	inTx bool
}

func (r *memTaskRepo) Create(ctx context.Context, task *domain.Task) error {
	defer r.s.lock(r.inTx)()
	d := &r.s.data

	if _, ok := d.tasks[task.ID]; ok {
		return ErrAlreadyExists
	}
	if d.liveConflict(task) {
		return ErrAlreadyExists
	}
	d.tasks[task.ID] = memTask{task: *task.Clone(), seq: d.next()}
	return nil
}

func (r *memTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	defer r.s.lock(r.inTx)()
	t, ok := r.s.data.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.task.Clone(), nil
}

func (r *memTaskRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return r.GetByID(ctx, id)
}

func (r *memTaskRepo) List(ctx context.Context) ([]domain.Task, error) {
	defer r.s.lock(r.inTx)()
	entries := r.s.data.taskEntries(func(domain.Task) bool { return true })
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.task.UpdatedAt.Equal(b.task.UpdatedAt) {
			return a.task.UpdatedAt.After(b.task.UpdatedAt)
		}
		return a.seq > b.seq
	})
	return unwrapTasks(entries), nil
}

func (r *memTaskRepo) ListByType(ctx context.Context, taskType domain.TaskType) ([]domain.Task, error) {
	defer r.s.lock(r.inTx)()
	entries := r.s.data.taskEntries(func(t domain.Task) bool { return t.Type == taskType })
	sortByCreation(entries)
	return unwrapTasks(entries), nil
}

func (r *memTaskRepo) NextReady(ctx context.Context, taskType domain.TaskType) (*domain.Task, error) {
	defer r.s.lock(r.inTx)()
	entries := r.s.data.taskEntries(func(t domain.Task) bool {
		return t.Type == taskType && t.Status == domain.TaskStatusReady
	})
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	sortByCreation(entries)
	return entries[0].task.Clone(), nil
}

func (r *memTaskRepo) Update(ctx context.Context, task *domain.Task) error {
	defer r.s.lock(r.inTx)()
	d := &r.s.data

	existing, ok := d.tasks[task.ID]
	if !ok {
		return ErrNotFound
	}
	if d.liveConflict(task) {
		return ErrAlreadyExists
	}
	d.tasks[task.ID] = memTask{task: *task.Clone(), seq: existing.seq}
	return nil
}

func (r *memTaskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.s.lock(r.inTx)()
	if _, ok := r.s.data.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(r.s.data.tasks, id)
	return nil
}

// liveConflict — аналог частичного уникального индекса по живым task.
func (d *memData) liveConflict(task *domain.Task) bool {
	if !task.Status.IsLive() {
		return false
	}
	card := task.LiveCardNumber()
	if card == "" {
		return false
	}
	for id, other := range d.tasks {
		if id == task.ID || other.task.Type != task.Type || !other.task.Status.IsLive() {
			continue
		}
		if other.task.LiveCardNumber() == card {
			return true
		}
	}
	return false
}

func (d *memData) taskEntries(match func(domain.Task) bool) []memTask {
	var entries []memTask
	for _, t := range d.tasks {
		if match(t.task) {
			entries = append(entries, t)
		}
	}
	return entries
}

func sortByCreation(entries []memTask) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.task.CreatedAt.Equal(b.task.CreatedAt) {
			return a.task.CreatedAt.Before(b.task.CreatedAt)
		}
		return a.seq < b.seq
	})
}

func unwrapTasks(entries []memTask) []domain.Task {
	tasks := make([]domain.Task, 0, len(entries))
	for _, e := range entries {
		tasks = append(tasks, *e.task.Clone())
	}
	return tasks
}

// --- artifacts ---

type memArtifactRepo struct {
	s    *MemoryStore
	inTx bool
}

func (r *memArtifactRepo) Create(ctx context.Context, a *domain.Artifact) error {
	defer r.s.lock(r.inTx)()
	d := &r.s.data
	if _, ok := d.artifacts[a.ID]; ok {
		return ErrAlreadyExists
	}
	if _, ok := d.tasks[a.TaskID]; !ok {
		return ErrNotFound
	}
	d.artifacts[a.ID] = memArtifact{artifact: *a, seq: d.next()}
	return nil
}

func (r *memArtifactRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Artifact, error) {
	defer r.s.lock(r.inTx)()
	a, ok := r.s.data.artifacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := a.artifact
	return &c, nil
}

func (r *memArtifactRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]domain.Artifact, error) {
	defer r.s.lock(r.inTx)()
	var entries []memArtifact
	for _, a := range r.s.data.artifacts {
		if a.artifact.TaskID == taskID {
			entries = append(entries, a)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.artifact.CreatedAt.Equal(b.artifact.CreatedAt) {
			return a.artifact.CreatedAt.Before(b.artifact.CreatedAt)
		}
		return a.seq < b.seq
	})
	artifacts := make([]domain.Artifact, 0, len(entries))
	for _, e := range entries {
		artifacts = append(artifacts, e.artifact)
	}
	return artifacts, nil
}

func (r *memArtifactRepo) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.s.lock(r.inTx)()
	if _, ok := r.s.data.artifacts[id]; !ok {
		return ErrNotFound
	}
	delete(r.s.data.artifacts, id)
	return nil
}

// --- anycards ---

type memAnycardRepo struct {
	s    *MemoryStore
	inTx bool
}

func (r *memAnycardRepo) Create(ctx context.Context, c *domain.Anycard) error {
	defer r.s.lock(r.inTx)()
	d := &r.s.data
	if _, ok := d.anycards[c.ID]; ok {
		return ErrAlreadyExists
	}
	if d.anycardConflict(c) {
		return ErrAlreadyExists
	}
	d.anycards[c.ID] = memAnycard{card: *c, seq: d.next()}
	return nil
}

func (r *memAnycardRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Anycard, error) {
	defer r.s.lock(r.inTx)()
	c, ok := r.s.data.anycards[id]
	if !ok {
		return nil, ErrNotFound
	}
	card := c.card
	return &card, nil
}

func (r *memAnycardRepo) FindByCardNumber(ctx context.Context, cardNumber string) (*domain.Anycard, error) {
	defer r.s.lock(r.inTx)()
	return r.s.data.firstAnycard(func(c domain.Anycard) bool { return c.CardNumber == cardNumber })
}

func (r *memAnycardRepo) FindBySerialNumber(ctx context.Context, serialNumber string) (*domain.Anycard, error) {
	defer r.s.lock(r.inTx)()
	return r.s.data.firstAnycard(func(c domain.Anycard) bool {
		return c.SerialNumber != "" && c.SerialNumber == serialNumber
	})
}

func (r *memAnycardRepo) FindByTypeAndCardNumber(ctx context.Context, cardType domain.AnycardType, cardNumber string) (*domain.Anycard, error) {
	defer r.s.lock(r.inTx)()
	return r.s.data.firstAnycard(func(c domain.Anycard) bool {
		return c.Type == cardType && c.CardNumber == cardNumber
	})
}

func (r *memAnycardRepo) ListNeedsRedeem(ctx context.Context) ([]domain.Anycard, error) {
	defer r.s.lock(r.inTx)()
	entries := r.s.data.anycardEntries(func(c domain.Anycard) bool { return c.NeedsRedeem })
	cards := make([]domain.Anycard, 0, len(entries))
	for _, e := range entries {
		cards = append(cards, e.card)
	}
	return cards, nil
}

func (r *memAnycardRepo) Update(ctx context.Context, c *domain.Anycard) error {
	defer r.s.lock(r.inTx)()
	d := &r.s.data
	existing, ok := d.anycards[c.ID]
	if !ok {
		return ErrNotFound
	}
	if d.anycardConflict(c) {
		return ErrAlreadyExists
	}
	d.anycards[c.ID] = memAnycard{card: *c, seq: existing.seq}
	return nil
}

func (d *memData) anycardConflict(c *domain.Anycard) bool {
	for id, other := range d.anycards {
		if id != c.ID && other.card.Type == c.Type && other.card.CardNumber == c.CardNumber {
			return true
		}
	}
	return false
}

func (d *memData) anycardEntries(match func(domain.Anycard) bool) []memAnycard {
	var entries []memAnycard
	for _, c := range d.anycards {
		if match(c.card) {
			entries = append(entries, c)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.card.CreatedAt.Equal(b.card.CreatedAt) {
			return a.card.CreatedAt.Before(b.card.CreatedAt)
		}
		return a.seq < b.seq
	})
	return entries
}

func (d *memData) firstAnycard(match func(domain.Anycard) bool) (*domain.Anycard, error) {
	entries := d.anycardEntries(match)
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	card := entries[0].card
	return &card, nil
}
