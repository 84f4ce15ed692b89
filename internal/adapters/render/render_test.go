package render

import (
	"strings"
	"testing"

	"news-autopost-bot/internal/domain"
)

func TestRenderFormal(t *testing.T) {
	r := NewHTMLRenderer()
	item := domain.NewsItem{Title: "Заголовок", Description: "Описание", URL: "https://example.com"}

	out, err := r.Render(item, "formal", "tech")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	for _, want := range []string{"<b>Заголовок</b>", "Описание", "https://example.com", "#tech"} {
		if !strings.Contains(out, want) {
			t.Fatalf("в посте нет %q:\n%s", want, out)
		}
	}
}

func TestRenderEscapesHTML(t *testing.T) {
	r := NewHTMLRenderer()
	item := domain.NewsItem{Title: "A <script> & B", Description: "x < y"}

	out, err := r.Render(item, "formal", "tech")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if strings.Contains(out, "<script>") {
		t.Fatal("разметка из новости должна экранироваться")
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Fatalf("ожидалось экранирование: %s", out)
	}
}

func TestRenderTruncatesLongDescription(t *testing.T) {
	r := NewHTMLRenderer()
	item := domain.NewsItem{Title: "Т", Description: strings.Repeat("д", 2000)}

	out, err := r.Render(item, "formal", "tech")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !strings.Contains(out, "…") {
		t.Fatal("длинное описание должно обрезаться с многоточием")
	}
	if n := len([]rune(out)); n > 4000 {
		t.Fatalf("пост превышает лимит: %d", n)
	}
}

func TestRenderBudgetTrimKeepsTitleIntact(t *testing.T) {
	r := NewHTMLRenderer()
	// Заголовок начинается с того же текста, в который обрезается описание.
	title := strings.Repeat("а", 799) + "…" + strings.Repeat("б", 2500)
	item := domain.NewsItem{Title: title, Description: strings.Repeat("а", 900), URL: "https://example.com"}

	out, err := r.Render(item, "formal", "tech")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if n := len([]rune(out)); n > 4000 {
		t.Fatalf("пост превышает лимит: %d", n)
	}
	if !strings.Contains(out, "<b>"+title+"</b>") {
		t.Fatal("усечение бюджета должно укорачивать описание, не трогая заголовок")
	}
}

func TestRenderStylesDiffer(t *testing.T) {
	r := NewHTMLRenderer()
	item := domain.NewsItem{Title: "Заголовок", Description: "Описание", URL: "https://example.com"}

	seen := map[string]bool{}
	for _, style := range Styles() {
		out, err := r.Render(item, style, "tech")
		if err != nil {
			t.Fatalf("стиль %s: %v", style, err)
		}
		if seen[out] {
			t.Fatalf("стили должны давать разный текст: %s", style)
		}
		seen[out] = true
	}
}

func TestRenderEmptyTitle(t *testing.T) {
	r := NewHTMLRenderer()

	if _, err := r.Render(domain.NewsItem{}, "formal", "tech"); err == nil {
		t.Fatal("новость без заголовка должна отклоняться")
	}
}

func TestDisplayNames(t *testing.T) {
	if got := CategoryName("tech"); got != "💻 Технологии" {
		t.Fatalf("неверное имя категории: %s", got)
	}
	if got := StyleName("meme"); got != "😂 Мемный" {
		t.Fatalf("неверное имя стиля: %s", got)
	}
	if got := CategoryName("custom"); got != "custom" {
		t.Fatalf("неизвестная категория возвращается как есть: %s", got)
	}
}
