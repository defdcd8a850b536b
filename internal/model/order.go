package model

import (
	"fmt"
	"time"
)

// OrderLine описывает позицию заказа в формате API.
type OrderLine struct {
	Product     int64  `json:"product"`
	Count       int    `json:"count"`
	Modificator *int64 `json:"modificator,omitempty"`
}

// OrderDraft описывает тело запроса на создание заказа.
type OrderDraft struct {
	Phone            string      `json:"phone"`
	Comment          string      `json:"comment,omitempty"`
	ServiceMode      ServiceMode `json:"serviceMode"`
	Address          string      `json:"address,omitempty"`
	Spot             int64       `json:"spot"`
	OrganizationSlug string      `json:"organizationSlug,omitempty"`
	RefAgent         *int64      `json:"refAgent,omitempty"`
	UseBonus         bool        `json:"useBonus,omitempty"`
	Bonus            *int64      `json:"bonus,omitempty"`
	Code             string      `json:"code,omitempty"`
	Hash             string      `json:"hash,omitempty"`
	OrderProducts    []OrderLine `json:"orderProducts"`
}

// Clone возвращает копию черновика, не разделяющую срезы и указатели с исходным.
func (d OrderDraft) Clone() OrderDraft {
	c := d
	c.OrderProducts = append([]OrderLine(nil), d.OrderProducts...)
	if d.RefAgent != nil {
		v := *d.RefAgent
		c.RefAgent = &v
	}
	if d.Bonus != nil {
		v := *d.Bonus
		c.Bonus = &v
	}
	return c
}

// OrderResponse описывает ответ API на создание заказа.
type OrderResponse struct {
	ID                    int64  `json:"id"`
	PaymentURL            string `json:"paymentUrl"`
	PhoneVerificationHash string `json:"phoneVerificationHash,omitempty"`
}

// OrderStatus описывает статус заказа на стороне заведения.
type OrderStatus int

const (
	OrderStatusPending   OrderStatus = 0
	OrderStatusAccepted  OrderStatus = 1
	OrderStatusCancelled OrderStatus = 7
)

// OrderedProduct описывает позицию в истории заказов.
type OrderedProduct struct {
	Product struct {
		ID     int64   `json:"id"`
		Name   string  `json:"productName"`
		Photo  string  `json:"productPhoto"`
		Weight float64 `json:"weight"`
	} `json:"product"`
	Count       int     `json:"count"`
	Modificator *int64  `json:"modificator,omitempty"`
	Price       float64 `json:"price"`
}

// Order описывает заказ из истории клиента.
type Order struct {
	ID            int64            `json:"id"`
	Phone         string           `json:"phone"`
	Comment       string           `json:"comment,omitempty"`
	Address       string           `json:"address,omitempty"`
	ServiceMode   ServiceMode      `json:"serviceMode"`
	ServicePrice  string           `json:"servicePrice,omitempty"`
	TipsPrice     string           `json:"tipsPrice,omitempty"`
	OrderProducts []OrderedProduct `json:"orderProducts"`
	Status        OrderStatus      `json:"status"`
	StatusText    string           `json:"statusText"`
	TableNum      string           `json:"tableNum,omitempty"`
	CreatedAt     *time.Time       `json:"createdAt,omitempty"`
}

// StatusKey возвращает ключ локализации статуса заказа с учётом канала выдачи.
func StatusKey(mode ServiceMode, status OrderStatus) string {
	switch status {
	case OrderStatusCancelled:
		return "orderStatus.cancelled"
	case OrderStatusAccepted:
		if mode == ServiceModeDelivery {
			return "orderStatus.delivery"
		}
		return "orderStatus.waiting"
	case OrderStatusPending:
		if mode == ServiceModeDineIn {
			return "orderStatus.accepted"
		}
		return "orderStatus.processing"
	default:
		return fmt.Sprintf("orderStatus.%d", status)
	}
}
