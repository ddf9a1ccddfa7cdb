package dispatch

import (
	"context"
	"sort"

	"github.com/shaiso/taskbridge/internal/domain"
	"github.com/shaiso/taskbridge/internal/redeem"
	"github.com/shaiso/taskbridge/internal/repo"
)

// Generator создаёт tasks из состояния домена. Вызывается вне транзакции.
type Generator interface {
	Sync(ctx context.Context, repos repo.Repositories) ([]domain.Task, error)
}

// Enricher дополняет payload заявленной task. Изменения сохраняются
// вместе с переходом в IN_PROGRESS.
type Enricher interface {
	Enrich(ctx context.Context, repos repo.Repositories, task *domain.Task) (bool, error)
}

// Reconciler применяет result завершённой task к домену.
// Ошибка откатывает complete целиком.
type Reconciler interface {
	Reconcile(ctx context.Context, repos repo.Repositories, task *domain.Task, result domain.Document) error
}

// Handler — правила одного типа task. nil-поле означает "нет правила".
type Handler struct {
	Generator  Generator
	Enricher   Enricher
	Reconciler Reconciler
}

// Registry — таблица TaskType → Handler.
type Registry map[domain.TaskType]Handler

// NewRegistry возвращает таблицу для всех известных типов.
func NewRegistry(cfg redeem.Config) Registry {
	return Registry{
		domain.TaskTypeGetMyBonusAnycard: {
			Generator:  redeem.NewGenerator(cfg),
			Enricher:   redeem.NewEnricher(cfg),
			Reconciler: redeem.NewReconciler(cfg),
		},
	}
}

// Handler возвращает правила типа; для типа без записи — пустой Handler.
func (r Registry) Handler(t domain.TaskType) Handler {
	return r[t]
}

// GeneratorTypes возвращает типы с генератором в стабильном порядке.
func (r Registry) GeneratorTypes() []domain.TaskType {
	var types []domain.TaskType
	for t, h := range r {
		if h.Generator != nil {
			types = append(types, t)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
