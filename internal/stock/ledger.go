// Package stock ведёт учёт остатков товара при добавлении в корзину.
package stock

import "github.com/mmeshcher/ishop/internal/model"

// Request описывает запрос на добавление товара в корзину.
// Available содержит остаток товара из каталога или nil, если он неизвестен.
type Request struct {
	ProductID int64
	Requested int
	Available *int
}

// Result описывает, какое количество допущено к добавлению.
// Remaining равен -1, если остаток товара не ограничен.
type Result struct {
	Requested int  `json:"requested"`
	Admitted  int  `json:"admitted"`
	Remaining int  `json:"remaining"`
	Available *int `json:"available,omitempty"`
	Clamped   bool `json:"clamped"`
}

// Exceeded сообщает, что остаток исчерпан и ничего не добавлено.
func (r Result) Exceeded() bool {
	return r.Requested > 0 && r.Admitted == 0
}

// Admit рассчитывает допустимое количество с учётом всех модификаторов одного товара.
// Превышение остатка не является ошибкой: количество молча ограничивается.
func Admit(lines []model.CartLine, req Request) Result {
	res := Result{Requested: req.Requested}

	current := 0
	var cached *int
	for _, l := range lines {
		if l.ID.ProductID != req.ProductID {
			continue
		}
		current += l.Quantity
		if cached == nil && l.AvailableQuantity != nil {
			cached = l.AvailableQuantity
		}
	}

	available := req.Available
	if available == nil {
		available = cached
	}

	if available == nil {
		res.Remaining = -1
		if req.Requested > 0 {
			res.Admitted = req.Requested
		}
		return res
	}

	v := *available
	res.Available = &v
	res.Remaining = max(0, v-current)

	if req.Requested <= 0 {
		return res
	}

	res.Admitted = min(req.Requested, res.Remaining)
	res.Clamped = res.Admitted < req.Requested

	return res
}
