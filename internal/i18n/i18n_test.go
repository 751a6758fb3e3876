package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "ErrNotFound")
	if got != "Not found." {
		t.Errorf("T(ErrNotFound) = %q", got)
	}
	got = Td(ctx, "ErrModelStatus", map[string]any{"Status": 500})
	if got != "The language model provider returned an error (status 500)." {
		t.Errorf("Td(ErrModelStatus) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "ErrNotFound")
	if got != "Не найдено." {
		t.Errorf("T(ErrNotFound) = %q, want 'Не найдено.'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	tests := []struct {
		lang  string
		count int
		want  string
	}{
		{"en", 1, "1 question added."},
		{"en", 5, "5 questions added."},
		{"ru", 1, "Добавлен 1 вопрос."},
		{"ru", 3, "Добавлено 3 вопроса."},
		{"ru", 5, "Добавлено 5 вопросов."},
	}
	for _, tt := range tests {
		ctx := initLang(t, tt.lang)
		if got := Tp(ctx, "QuestionsAdded", tt.count); got != tt.want {
			t.Errorf("%s Tp(QuestionsAdded, %d) = %q, want %q", tt.lang, tt.count, got, tt.want)
		}
	}
}

func TestMissingMessageReturnsID(t *testing.T) {
	ctx := initLang(t, "en")
	if got := T(ctx, "NoSuchMessage"); got != "NoSuchMessage" {
		t.Errorf("T(NoSuchMessage) = %q", got)
	}
}

func TestUnknownLanguageFallsBack(t *testing.T) {
	ctx := initLang(t, "de")
	if got := T(ctx, "ErrNotFound"); got != "Not found." {
		t.Errorf("fallback = %q", got)
	}
}

func TestMiddlewareNegotiates(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatal(err)
	}
	var got string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "ErrNotFound")
	}))

	tests := []struct {
		name, url, accept, want string
	}{
		{"header", "/", "ru-RU,ru;q=0.9,en;q=0.5", "Не найдено."},
		{"query wins", "/?lang=en", "ru", "Not found."},
		{"default", "/", "", "Not found."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInitRejectsBadTag(t *testing.T) {
	if err := Init("not a language"); err == nil {
		t.Error("expected error for invalid tag")
	}
}
