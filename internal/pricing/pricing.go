// Package pricing рассчитывает итоговую стоимость корзины.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/ishop/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Input содержит всё, от чего зависит расчёт стоимости.
type Input struct {
	Lines             []model.CartLine
	ServiceFeePercent decimal.Decimal
	DeliveryFixedFee  decimal.Decimal
	DeliveryFreeFrom  decimal.NullDecimal
	Mode              model.ServiceMode
	AvailablePoints   int64
	UsePoints         bool
	SelectedPoints    int64
}

// FromVenue заполняет параметры сборов из настроек заведения.
func FromVenue(lines []model.CartLine, venue model.Venue, mode model.ServiceMode) Input {
	return Input{
		Lines:             lines,
		ServiceFeePercent: venue.ServiceFeePercent,
		DeliveryFixedFee:  venue.DeliveryFixedFee,
		DeliveryFreeFrom:  venue.DeliveryFreeFrom,
		Mode:              mode,
	}
}

// Summary содержит результат расчёта.
type Summary struct {
	Subtotal              decimal.Decimal `json:"subtotal"`
	ServiceFee            decimal.Decimal `json:"serviceFee"`
	DeliveryFee           decimal.Decimal `json:"deliveryFee"`
	Total                 decimal.Decimal `json:"total"`
	FreeDeliveryHint      bool            `json:"freeDeliveryHint"`
	FreeDeliveryRemaining decimal.Decimal `json:"freeDeliveryRemaining"`
	MaxUsablePoints       int64           `json:"maxUsablePoints"`
	AppliedBonus          int64           `json:"appliedBonus"`
	DisplayTotal          decimal.Decimal `json:"displayTotal"`
}

// Compute рассчитывает подытог, сервисный сбор, стоимость доставки и списание баллов.
// Округление до копеек выполняется только для итога и суммы к оплате.
func Compute(in Input) Summary {
	subtotal := decimal.Zero
	for _, l := range in.Lines {
		subtotal = subtotal.Add(l.Amount())
	}

	serviceFee := subtotal.Mul(in.ServiceFeePercent).Div(hundred)

	deliveryFee := decimal.Zero
	hint := false
	remaining := decimal.Zero
	if in.Mode == model.ServiceModeDelivery {
		freeFrom := in.DeliveryFreeFrom
		switch {
		case freeFrom.Valid && subtotal.GreaterThanOrEqual(freeFrom.Decimal):
		case freeFrom.Valid:
			deliveryFee = in.DeliveryFixedFee
			hint = true
			remaining = freeFrom.Decimal.Sub(subtotal)
		default:
			deliveryFee = in.DeliveryFixedFee
		}
	}

	total := subtotal.Add(serviceFee).Add(deliveryFee).Round(2)

	balance := max(0, in.AvailablePoints)
	maxUsable := min(balance, total.Floor().IntPart())

	var applied int64
	if in.UsePoints {
		applied = max(0, min(in.SelectedPoints, maxUsable))
	}

	display := total.Sub(decimal.NewFromInt(applied)).Round(2)
	if display.IsNegative() {
		display = decimal.Zero
	}

	return Summary{
		Subtotal:              subtotal,
		ServiceFee:            serviceFee,
		DeliveryFee:           deliveryFee,
		Total:                 total,
		FreeDeliveryHint:      hint,
		FreeDeliveryRemaining: remaining,
		MaxUsablePoints:       maxUsable,
		AppliedBonus:          applied,
		DisplayTotal:          display,
	}
}
