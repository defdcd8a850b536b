// Package state хранит состояние сессии витрины поверх key-value хранилища.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/ishop/internal/model"
	"github.com/mmeshcher/ishop/internal/storage"
)

// Ключи совместимы с хранилищем браузерной витрины.
const (
	KeyCart             = "cartItems"
	KeyUser             = "users"
	KeyVenue            = "venue"
	KeyVerificationHash = "phoneVerificationHash"
	KeyLegacyHash       = "hash"
	KeyReferral         = "refId"
	KeyLegacyReferral   = "ref"
	KeyPromo            = "promoCode"
	KeyLegacyPromo      = "promo"
)

// Store предоставляет типизированный доступ к состоянию одной сессии.
// Ошибки чтения и записи не прерывают работу: вместо отсутствующего или
// повреждённого значения возвращается значение по умолчанию.
type Store struct {
	kv     storage.KV
	logger *zap.Logger
}

// New создаёт Store поверх kv.
func New(kv storage.KV, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kv, logger: logger}
}

// Cart возвращает сохранённые строки корзины; по умолчанию корзина пуста.
func (s *Store) Cart(ctx context.Context) []model.CartLine {
	var lines []model.CartLine
	if !s.readJSON(ctx, KeyCart, &lines) {
		return []model.CartLine{}
	}
	return lines
}

// SaveCart сохраняет строки корзины.
func (s *Store) SaveCart(ctx context.Context, lines []model.CartLine) {
	if lines == nil {
		lines = []model.CartLine{}
	}
	s.writeJSON(ctx, KeyCart, lines)
}

// RemoveCart удаляет сохранённую корзину.
func (s *Store) RemoveCart(ctx context.Context) {
	s.remove(ctx, KeyCart)
}

// UserData возвращает контактные данные клиента; по умолчанию это самовывоз без данных.
func (s *Store) UserData(ctx context.Context) model.UserData {
	user := model.UserData{Type: model.ServiceModePickup}
	if !s.readJSON(ctx, KeyUser, &user) {
		return model.UserData{Type: model.ServiceModePickup}
	}
	return user
}

// SaveUserData сохраняет контактные данные клиента.
func (s *Store) SaveUserData(ctx context.Context, user model.UserData) {
	s.writeJSON(ctx, KeyUser, user)
}

// Venue возвращает закешированное заведение или заведение по умолчанию.
func (s *Store) Venue(ctx context.Context) model.Venue {
	venue := model.DefaultVenue()
	if !s.readJSON(ctx, KeyVenue, &venue) {
		return model.DefaultVenue()
	}
	if venue.ColorTheme == "" {
		venue.ColorTheme = model.DefaultColorTheme
	}
	return venue
}

// SaveVenue кеширует данные заведения.
func (s *Store) SaveVenue(ctx context.Context, venue model.Venue) {
	s.writeJSON(ctx, KeyVenue, venue)
}

// VerificationHash возвращает последний хеш подтверждения телефона.
func (s *Store) VerificationHash(ctx context.Context) string {
	return s.readString(ctx, KeyVerificationHash, KeyLegacyHash)
}

// SaveVerificationHash сохраняет хеш подтверждения под основным и устаревшим ключами.
func (s *Store) SaveVerificationHash(ctx context.Context, hash string) {
	s.writeString(ctx, KeyVerificationHash, hash)
	s.writeString(ctx, KeyLegacyHash, hash)
}

// RefAgent возвращает идентификатор реферального агента, если он сохранён и положителен.
func (s *Store) RefAgent(ctx context.Context) *int64 {
	raw := s.readString(ctx, KeyReferral, KeyLegacyReferral)
	if raw == "" {
		return nil
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.logger.Debug("ignoring invalid referral id", zap.String("value", raw))
		return nil
	}
	return &id
}

// SaveReferral сохраняет реферальный код.
func (s *Store) SaveReferral(ctx context.Context, ref string) {
	s.writeString(ctx, KeyReferral, ref)
}

// Promo возвращает сохранённый промокод.
func (s *Store) Promo(ctx context.Context) string {
	return s.readString(ctx, KeyPromo, KeyLegacyPromo)
}

// SavePromo сохраняет промокод.
func (s *Store) SavePromo(ctx context.Context, code string) {
	s.writeString(ctx, KeyPromo, code)
}

func (s *Store) readJSON(ctx context.Context, key string, dst any) bool {
	raw, ok := s.read(ctx, key)
	if !ok {
		return false
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn("malformed session value, using default",
			zap.String("key", key),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *Store) writeJSON(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode session value", zap.String("key", key), zap.Error(err))
		return
	}
	s.write(ctx, key, raw)
}

func (s *Store) readString(ctx context.Context, keys ...string) string {
	for _, key := range keys {
		raw, ok := s.read(ctx, key)
		if !ok {
			continue
		}
		if v := strings.TrimSpace(string(raw)); v != "" {
			return v
		}
	}
	return ""
}

func (s *Store) writeString(ctx context.Context, key, v string) {
	s.write(ctx, key, []byte(v))
}

func (s *Store) read(ctx context.Context, key string) ([]byte, bool) {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error("failed to read session value", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return raw, true
}

func (s *Store) write(ctx context.Context, key string, raw []byte) {
	if err := s.kv.Set(ctx, key, raw); err != nil {
		s.logger.Error("failed to write session value", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) remove(ctx context.Context, key string) {
	if err := s.kv.Delete(ctx, key); err != nil {
		s.logger.Error("failed to delete session value", zap.String("key", key), zap.Error(err))
	}
}
