package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmeshcher/ishop/internal/backend"
)

func languageOf(t *testing.T, fallback, header string) string {
	t.Helper()

	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = backend.LanguageFrom(r.Context())
	})

	r := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	if header != "" {
		r.Header.Set("Accept-Language", header)
	}

	Language(fallback)(next).ServeHTTP(httptest.NewRecorder(), r)
	return got
}

func TestLanguage(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "region is dropped", header: "ky-KG,ru;q=0.8", want: "ky"},
		{name: "upper case", header: "EN", want: "en"},
		{name: "single weighted", header: "ru;q=0.9", want: "ru"},
		{name: "weights win over order", header: "ru;q=0.1, ky;q=0.9", want: "ky"},
		{name: "unsupported first", header: "de-DE, en;q=0.5", want: "en"},
		{name: "nothing supported", header: "de, fr;q=0.8", want: "ru"},
		{name: "wildcard", header: "*", want: "ru"},
		{name: "malformed", header: ";;;", want: "ru"},
		{name: "empty", header: "", want: "ru"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := languageOf(t, "ru", tt.header); got != tt.want {
				t.Fatalf("language(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestLanguage_Fallback(t *testing.T) {
	if got := languageOf(t, "ky", "de"); got != "ky" {
		t.Fatalf("language = %q, want ky", got)
	}
	if got := languageOf(t, "ky", "en-US,en;q=0.9"); got != "en" {
		t.Fatalf("language = %q, want en", got)
	}
	if got := languageOf(t, "", ""); got != "" {
		t.Fatalf("language = %q, want empty", got)
	}
}
