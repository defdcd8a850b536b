package middleware

import (
	"net/http"

	"golang.org/x/text/language"

	"github.com/mmeshcher/ishop/internal/backend"
)

// SupportedLanguages перечисляет языки, на которых отвечает API витрины.
var SupportedLanguages = []language.Tag{
	language.Russian,
	language.Make("ky"),
	language.English,
}

// Language передаёт язык клиента из Accept-Language в запросы к API витрины.
// Язык выбирается с учётом весов q среди поддерживаемых; если совпадений нет, берётся fallback.
func Language(fallback string) func(http.Handler) http.Handler {
	supported := supportedWith(fallback)
	matcher := language.NewMatcher(supported)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := matchLanguage(matcher, supported, r.Header.Get("Accept-Language"))
			if lang == "" {
				lang = fallback
			}
			if lang != "" {
				r = r.WithContext(backend.WithLanguage(r.Context(), lang))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// supportedWith ставит язык по умолчанию первым, чтобы сопоставитель возвращал его при отсутствии совпадений.
func supportedWith(fallback string) []language.Tag {
	tags := make([]language.Tag, 0, len(SupportedLanguages)+1)

	if def, err := language.Parse(fallback); err == nil && def != language.Und {
		tags = append(tags, def)
	}
	for _, t := range SupportedLanguages {
		if len(tags) > 0 && base(t) == base(tags[0]) {
			continue
		}
		tags = append(tags, t)
	}
	return tags
}

func matchLanguage(matcher language.Matcher, supported []language.Tag, header string) string {
	if header == "" {
		return ""
	}

	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return ""
	}

	desired := tags[:0]
	for _, t := range tags {
		if t != language.Und {
			desired = append(desired, t)
		}
	}
	if len(desired) == 0 {
		return ""
	}

	_, idx, conf := matcher.Match(desired...)
	if conf == language.No {
		return ""
	}
	return base(supported[idx])
}

func base(t language.Tag) string {
	b, _ := t.Base()
	return b.String()
}
