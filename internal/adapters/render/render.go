package render

import (
	"fmt"
	"html"
	"strings"

	"news-autopost-bot/internal/domain"
)

// Лимиты Telegram на длину сообщения с запасом под разметку.
const (
	maxDescriptionRunes = 800
	maxPostRunes        = 4000
)

var categoryNames = map[string]string{
	"tech":          "💻 Технологии",
	"business":      "💼 Бизнес",
	"science":       "🔬 Наука",
	"sport":         "⚽ Спорт",
	"world":         "🌍 Мир",
	"entertainment": "🎬 Развлечения",
}

var styleNames = map[string]string{
	"formal": "📰 Формальный",
	"casual": "😊 Лёгкий",
	"meme":   "😂 Мемный",
}

// CategoryName возвращает отображаемое имя категории с эмодзи.
func CategoryName(category string) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return category
}

// StyleName возвращает отображаемое имя стиля с эмодзи.
func StyleName(style string) string {
	if name, ok := styleNames[style]; ok {
		return name
	}
	return style
}

// Categories возвращает список известных категорий.
func Categories() []string {
	return []string{"tech", "business", "science", "sport", "world", "entertainment"}
}

// Styles возвращает список известных стилей.
func Styles() []string {
	return []string{"formal", "casual", "meme"}
}

// HTMLRenderer собирает HTML-текст поста в одном из трёх стилей.
type HTMLRenderer struct{}

var _ domain.ContentRenderer = HTMLRenderer{}

// NewHTMLRenderer создаёт рендерер.
func NewHTMLRenderer() HTMLRenderer {
	return HTMLRenderer{}
}

// Render возвращает готовый текст поста. Описание обрезается до лимита,
// итоговый текст всегда укладывается в лимит сообщения Telegram.
func (HTMLRenderer) Render(item domain.NewsItem, style, category string) (string, error) {
	if item.Title == "" {
		return "", fmt.Errorf("новость без заголовка")
	}
	title := html.EscapeString(item.Title)
	desc := truncateRunes(html.EscapeString(item.Description), maxDescriptionRunes)
	hashtag := "#" + strings.ReplaceAll(category, " ", "_")

	out := buildPost(style, title, desc, item.URL, hashtag)
	if over := len([]rune(out)) - maxPostRunes; over > 0 {
		// Текст описания может встречаться и в других блоках поста,
		// поэтому пост пересобирается целиком.
		desc = truncateRunes(desc, len([]rune(desc))-over-1)
		out = buildPost(style, title, desc, item.URL, hashtag)
	}
	return out, nil
}

func buildPost(style, title, desc, url, hashtag string) string {
	var b strings.Builder
	switch style {
	case "casual":
		b.WriteString("✨ <b>" + title + "</b>\n\n")
		if desc != "" {
			b.WriteString(desc + "\n\n")
		}
		if url != "" {
			b.WriteString("👉 <a href=\"" + url + "\">Почитать подробнее</a>\n\n")
		}
	case "meme":
		b.WriteString("😎 <b>" + title + "</b>\n\n")
		if desc != "" {
			b.WriteString(desc + "\n\n")
		}
		b.WriteString("Такие дела 🤷\n\n")
		if url != "" {
			b.WriteString("🔗 <a href=\"" + url + "\">Пруф</a>\n\n")
		}
	default:
		b.WriteString("📰 <b>" + title + "</b>\n\n")
		if desc != "" {
			b.WriteString(desc + "\n\n")
		}
		if url != "" {
			b.WriteString("<a href=\"" + url + "\">Читать полностью</a>\n\n")
		}
	}
	b.WriteString(hashtag)
	return b.String()
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
