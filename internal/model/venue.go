package model

import "github.com/shopspring/decimal"

// DefaultColorTheme используется, пока данные заведения не загружены.
const DefaultColorTheme = "#854C9D"

// Spot описывает точку выдачи заведения.
type Spot struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Address *string `json:"address"`
}

// WorkSchedule описывает расписание работы на один день недели (1 понедельник, 7 воскресенье).
type WorkSchedule struct {
	DayOfWeek int     `json:"dayOfWeek"`
	DayName   string  `json:"dayName,omitempty"`
	WorkStart *string `json:"workStart"`
	WorkEnd   *string `json:"workEnd"`
	IsDayOff  bool    `json:"isDayOff,omitempty"`
	Is24h     bool    `json:"is24h,omitempty"`
}

// Table описывает стол, за которым оформляется заказ в зале.
type Table struct {
	ID       int64  `json:"id"`
	TableNum string `json:"tableNum"`
}

// Venue содержит настройки заведения (организации).
type Venue struct {
	ColorTheme          string              `json:"colorTheme"`
	CompanyName         string              `json:"companyName"`
	Slug                string              `json:"slug"`
	Logo                string              `json:"logo"`
	Description         *string             `json:"description"`
	Schedule            string              `json:"schedule"`
	ServiceFeePercent   decimal.Decimal     `json:"serviceFeePercent"`
	DeliveryFixedFee    decimal.Decimal     `json:"deliveryFixedFee"`
	DeliveryFreeFrom    decimal.NullDecimal `json:"deliveryFreeFrom"`
	Schedules           []WorkSchedule      `json:"schedules"`
	DefaultDeliverySpot *int64              `json:"defaultDeliverySpot"`
	Table               Table               `json:"table"`
	Spots               []Spot              `json:"spots"`
	ActiveSpot          int64               `json:"activeSpot"`
	IsDeliveryAvailable bool                `json:"isDeliveryAvailable"`
	IsTakeoutAvailable  bool                `json:"isTakeoutAvailable"`
	IsDineinAvailable   bool                `json:"isDineinAvailable"`
}

// DefaultVenue возвращает пустое заведение со значениями по умолчанию.
func DefaultVenue() Venue {
	return Venue{
		ColorTheme: DefaultColorTheme,
		Schedules:  []WorkSchedule{},
		Spots:      []Spot{},
	}
}

// HasTable сообщает, оформляется ли заказ за столом в зале.
func (v Venue) HasTable() bool {
	return v.Table.TableNum != ""
}

// DefaultSpot возвращает точку по умолчанию: точку доставки, затем первую точку, иначе 0.
func (v Venue) DefaultSpot() int64 {
	if v.DefaultDeliverySpot != nil {
		return *v.DefaultDeliverySpot
	}
	if len(v.Spots) > 0 {
		return v.Spots[0].ID
	}
	return 0
}
