// Package validation содержит функции валидации контактных данных заказа.
package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mmeshcher/ishop/internal/model"
)

const (
	// MinPhoneDigits задаёт минимальное количество цифр в номере телефона с кодом страны.
	MinPhoneDigits = 12
	// MinAddressLength задаёт минимальную длину адреса доставки.
	MinAddressLength = 4

	MsgRequired      = "Это обязательное поле"
	MsgPhoneTooShort = "Тут нужно минимум 12 символов"
	MsgAddressShort  = "Тут нужно минимум 4 символа"
)

// Поля формы заказа.
const (
	FieldPhone   = "phoneNumber"
	FieldAddress = "address"
)

// FieldErrors сопоставляет полю формы сообщение об ошибке.
type FieldErrors map[string]string

// NormalizePhone оставляет в номере телефона только цифры.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if unicode.IsDigit(r) && r < utf8.RuneSelf {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CheckPhone возвращает сообщение об ошибке номера телефона или пустую строку.
func CheckPhone(phone string) string {
	digits := NormalizePhone(phone)
	switch {
	case digits == "":
		return MsgRequired
	case len(digits) < MinPhoneDigits:
		return MsgPhoneTooShort
	}
	return ""
}

// CheckAddress возвращает сообщение об ошибке адреса доставки или пустую строку.
func CheckAddress(address string) string {
	trimmed := strings.TrimSpace(address)
	switch {
	case trimmed == "":
		return MsgRequired
	case utf8.RuneCountInString(trimmed) < MinAddressLength:
		return MsgAddressShort
	}
	return ""
}

// Check проверяет форму заказа. Адрес обязателен только для доставки.
func Check(phone, address string, mode model.ServiceMode) FieldErrors {
	errs := FieldErrors{}

	if msg := CheckPhone(phone); msg != "" {
		errs[FieldPhone] = msg
	}

	if mode == model.ServiceModeDelivery {
		if msg := CheckAddress(address); msg != "" {
			errs[FieldAddress] = msg
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
