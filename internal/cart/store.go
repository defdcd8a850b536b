// Package cart реализует корзину сессии с учётом остатков товара.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/ishop/internal/model"
	"github.com/mmeshcher/ishop/internal/stock"
)

var (
	// ErrLocked возвращается при попытке изменить корзину во время отправки заказа.
	ErrLocked = errors.New("cart is locked while an order is being submitted")
	// ErrVariantRequired возвращается, если у товара есть модификаторы, а модификатор не выбран.
	ErrVariantRequired = errors.New("product requires a variant")
	// ErrUnknownVariant возвращается, если модификатор не принадлежит товару.
	ErrUnknownVariant = errors.New("unknown product variant")
)

// Persister сохраняет снимок корзины.
type Persister interface {
	SaveCart(ctx context.Context, lines []model.CartLine)
	RemoveCart(ctx context.Context)
}

// Store хранит строки корзины в порядке добавления.
type Store struct {
	mu        sync.Mutex
	lines     []model.CartLine
	frozen    bool
	persister Persister
	logger    *zap.Logger
}

// NewStore создаёт корзину с начальными строками, восстановленными из хранилища.
func NewStore(lines []model.CartLine, persister Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		persister: persister,
		logger:    logger,
	}
	for _, l := range lines {
		if l.Quantity > 0 && l.ID.ProductID > 0 {
			s.lines = append(s.lines, l)
		}
	}
	return s
}

// LineFromProduct собирает строку корзины из товара каталога.
// Товар с модификаторами можно купить только через модификатор.
func LineFromProduct(p model.Product, variantID int64, quantity int) (model.CartLine, error) {
	line := model.CartLine{
		ID:       model.LineID{ProductID: p.ID},
		Name:     p.Name,
		Price:    p.Price,
		Photo:    p.Photo,
		Category: p.Category,
		Quantity: quantity,
	}

	available := max(0, p.Quantity)
	line.AvailableQuantity = &available

	switch {
	case p.HasVariants() && variantID == 0:
		return model.CartLine{}, fmt.Errorf("%w: product %d", ErrVariantRequired, p.ID)
	case variantID != 0:
		v, ok := p.Variant(variantID)
		if !ok {
			return model.CartLine{}, fmt.Errorf("%w: product %d variant %d", ErrUnknownVariant, p.ID, variantID)
		}
		line.ID.VariantID = v.ID
		line.Variant = &v
	}

	return line, nil
}

// Add добавляет строку в корзину, ограничивая количество остатком товара.
// Quantity строки трактуется как запрошенное количество.
func (s *Store) Add(ctx context.Context, line model.CartLine) (stock.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return stock.Result{}, ErrLocked
	}

	res := stock.Admit(s.lines, stock.Request{
		ProductID: line.ID.ProductID,
		Requested: line.Quantity,
		Available: line.AvailableQuantity,
	})
	if res.Clamped {
		s.logger.Debug("stock limit reached",
			zap.String("line", line.ID.String()),
			zap.Int("requested", res.Requested),
			zap.Int("admitted", res.Admitted),
		)
	}
	if res.Admitted == 0 {
		return res, nil
	}

	if i := s.indexOf(line.ID); i >= 0 {
		s.lines[i].Quantity += res.Admitted
		if res.Available != nil {
			s.lines[i].AvailableQuantity = res.Available
		}
	} else {
		line.Quantity = res.Admitted
		line.AvailableQuantity = res.Available
		s.lines = append(s.lines, line)
	}

	s.persist(ctx)

	return res, nil
}

// DecrementOrRemove уменьшает количество строки на единицу и удаляет её, если осталась одна штука.
// Неизвестный идентификатор игнорируется.
func (s *Store) DecrementOrRemove(ctx context.Context, id model.LineID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrLocked
	}

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}

	if s.lines[i].Quantity > 1 {
		s.lines[i].Quantity--
	} else {
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
	}

	s.persist(ctx)

	return nil
}

// Clear очищает корзину и удаляет её сохранённую копию.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrLocked
	}

	s.lines = nil
	if s.persister != nil {
		s.persister.RemoveCart(ctx)
	}

	return nil
}

// Freeze запрещает изменения корзины и возвращает её снимок.
func (s *Store) Freeze() []model.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frozen = true
	return s.snapshot()
}

// Thaw снова разрешает изменения корзины.
func (s *Store) Thaw() {
	s.mu.Lock()
	s.frozen = false
	s.mu.Unlock()
}

// Frozen сообщает, заблокирована ли корзина.
func (s *Store) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen
}

// Lines возвращает копию строк корзины.
func (s *Store) Lines() []model.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Subtotal возвращает сумму строк корзины без сборов.
func (s *Store) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.Amount())
	}
	return total
}

// Quantity возвращает общее количество единиц в корзине.
func (s *Store) Quantity() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

func (s *Store) indexOf(id model.LineID) int {
	for i, l := range s.lines {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshot() []model.CartLine {
	out := make([]model.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Store) persist(ctx context.Context) {
	if s.persister == nil {
		return
	}
	s.persister.SaveCart(ctx, s.snapshot())
}
