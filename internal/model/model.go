// Package model содержит доменные сущности витрины ishop.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ServiceMode описывает канал выдачи заказа.
type ServiceMode int

const (
	ServiceModeDineIn   ServiceMode = 1
	ServiceModePickup   ServiceMode = 2
	ServiceModeDelivery ServiceMode = 3
)

// Valid сообщает, является ли значение известным каналом выдачи.
func (m ServiceMode) Valid() bool {
	return m == ServiceModeDineIn || m == ServiceModePickup || m == ServiceModeDelivery
}

// Category описывает категорию каталога.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"categoryName"`
}

// Variant описывает модификатор товара со своей ценой.
type Variant struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Product описывает товар каталога заведения.
type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"productName"`
	Description   *string         `json:"productDescription"`
	Price         decimal.Decimal `json:"productPrice"`
	Weight        float64         `json:"weight"`
	Photo         string          `json:"productPhoto"`
	PhotoSmall    string          `json:"productPhotoSmall,omitempty"`
	PhotoLarge    string          `json:"productPhotoLarge,omitempty"`
	Category      *Category       `json:"category,omitempty"`
	Categories    []Category      `json:"categories,omitempty"`
	Variants      []Variant       `json:"modificators"`
	IsRecommended bool            `json:"isRecommended"`
	Quantity      int             `json:"quantity"`
}

// HasVariants сообщает, продаётся ли товар только через модификаторы.
func (p Product) HasVariants() bool {
	return len(p.Variants) > 0
}

// Variant ищет модификатор товара по идентификатору.
func (p Product) Variant(id int64) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// LineID идентифицирует строку корзины: товар и необязательный модификатор.
// Нулевой VariantID означает строку без модификатора.
type LineID struct {
	ProductID int64
	VariantID int64
}

// ErrInvalidLineID возвращается при разборе некорректного идентификатора строки.
var ErrInvalidLineID = errors.New("invalid cart line id")

// HasVariant сообщает, указан ли модификатор.
func (id LineID) HasVariant() bool {
	return id.VariantID != 0
}

// String возвращает строковую форму "productId" или "productId,variantId".
func (id LineID) String() string {
	if !id.HasVariant() {
		return strconv.FormatInt(id.ProductID, 10)
	}
	return strconv.FormatInt(id.ProductID, 10) + "," + strconv.FormatInt(id.VariantID, 10)
}

// ParseLineID разбирает строковую форму идентификатора строки корзины.
func ParseLineID(s string) (LineID, error) {
	base, variant, hasVariant := strings.Cut(strings.TrimSpace(s), ",")

	productID, err := strconv.ParseInt(base, 10, 64)
	if err != nil || productID <= 0 {
		return LineID{}, fmt.Errorf("%w: %q", ErrInvalidLineID, s)
	}

	id := LineID{ProductID: productID}
	if hasVariant {
		variantID, err := strconv.ParseInt(variant, 10, 64)
		if err != nil || variantID < 0 {
			return LineID{}, fmt.Errorf("%w: %q", ErrInvalidLineID, s)
		}
		id.VariantID = variantID
	}

	return id, nil
}

// MarshalText реализует encoding.TextMarshaler.
func (id LineID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler.
func (id *LineID) UnmarshalText(text []byte) error {
	parsed, err := ParseLineID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// CartLine описывает строку корзины.
type CartLine struct {
	ID                LineID          `json:"id"`
	Name              string          `json:"productName"`
	Price             decimal.Decimal `json:"productPrice"`
	Photo             string          `json:"productPhoto,omitempty"`
	Category          *Category       `json:"category,omitempty"`
	Variant           *Variant        `json:"modificators,omitempty"`
	Quantity          int             `json:"quantity"`
	AvailableQuantity *int            `json:"availableQuantity,omitempty"`
}

// UnitPrice возвращает цену единицы: цену модификатора, если она задана, иначе цену товара.
func (l CartLine) UnitPrice() decimal.Decimal {
	if l.Variant != nil && l.Variant.Price.IsPositive() {
		return l.Variant.Price
	}
	return l.Price
}

// Amount возвращает стоимость строки без округления.
func (l CartLine) Amount() decimal.Decimal {
	return l.UnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// UserData содержит контактные данные и выбранный способ получения заказа.
type UserData struct {
	PhoneNumber string      `json:"phoneNumber"`
	Address     string      `json:"address,omitempty"`
	Comment     string      `json:"comment,omitempty"`
	Name        string      `json:"name,omitempty"`
	Type        ServiceMode `json:"type,omitempty"`
	ActiveSpot  int64       `json:"activeSpot"`
}

// ClientBonus описывает бонусный баланс клиента в заведении.
type ClientBonus struct {
	PhoneNumber string          `json:"phoneNumber"`
	Bonus       decimal.Decimal `json:"bonus"`
}

// Points возвращает доступные для списания баллы: целая часть баланса, не меньше нуля.
func (b ClientBonus) Points() int64 {
	if !b.Bonus.IsPositive() {
		return 0
	}
	return b.Bonus.Floor().IntPart()
}
