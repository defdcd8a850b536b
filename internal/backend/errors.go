package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError описывает ответ API с кодом, отличным от 2xx.
type APIError struct {
	StatusCode int
	ErrorText  string
	Detail     string
	Body       string
}

func (e *APIError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("backend responded %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("backend responded %d", e.StatusCode)
}

// Message возвращает текст ошибки для клиента: поле error, затем detail,
// затем тело ответа, если оно не является JSON.
func (e *APIError) Message() string {
	switch {
	case e.ErrorText != "":
		return e.ErrorText
	case e.Detail != "":
		return e.Detail
	}

	body := strings.TrimSpace(e.Body)
	if body == "" || json.Valid([]byte(body)) || strings.HasPrefix(body, "<") {
		return ""
	}
	return body
}

func newAPIError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Body:       string(raw),
	}

	var payload struct {
		Error  json.RawMessage `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		apiErr.ErrorText = text(payload.Error)
		apiErr.Detail = text(payload.Detail)
	}

	return apiErr
}

// text извлекает строку из значения, которое API возвращает строкой или списком строк.
func text(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, " ")
	}

	return ""
}

type languageKey struct{}

// WithLanguage сохраняет язык клиента в контексте запроса.
func WithLanguage(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, languageKey{}, lang)
}

// LanguageFrom возвращает язык из контекста или пустую строку.
func LanguageFrom(ctx context.Context) string {
	lang, _ := ctx.Value(languageKey{}).(string)
	return lang
}
