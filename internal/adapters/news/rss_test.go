package news

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"news-autopost-bot/internal/domain"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Тестовая лента</title>
<item>
<title>Свежая &amp;laquo;новость&amp;raquo;</title>
<description>&lt;p&gt;Описание с &lt;b&gt;тегами&lt;/b&gt;&lt;/p&gt;</description>
<link>https://example.com/fresh</link>
<pubDate>Mon, 07 Sep 2026 09:00:00 +0000</pubDate>
</item>
<item>
<title>Старая новость</title>
<description>Просто текст</description>
<link>https://example.com/old</link>
<pubDate>Sun, 06 Sep 2026 09:00:00 +0000</pubDate>
</item>
</channel>
</rss>`

func newTestSource(t *testing.T, handlers ...http.HandlerFunc) (*RSSSource, []string) {
	t.Helper()
	urls := make([]string, 0, len(handlers))
	for _, h := range handlers {
		srv := httptest.NewServer(h)
		t.Cleanup(srv.Close)
		urls = append(urls, srv.URL)
	}
	src := NewRSSSource(zerolog.Nop())
	src.sources = map[string][]string{"tech": urls, "world": urls}
	src.pick = func(n int) int { return 0 }
	return src, urls
}

func serveFeed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/rss+xml")
	_, _ = w.Write([]byte(feedXML))
}

func serveError(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "внутренняя ошибка", http.StatusInternalServerError)
}

func TestFetchOneReturnsFreshest(t *testing.T) {
	src, _ := newTestSource(t, serveFeed)

	item, err := src.FetchOne(context.Background(), "tech")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if item.URL != "https://example.com/fresh" {
		t.Fatalf("ожидалась самая свежая новость, получили %s", item.URL)
	}
	if item.Title != "Свежая «новость»" {
		t.Fatalf("HTML-сущности должны раскрываться: %q", item.Title)
	}
	if item.Description != "Описание с тегами" {
		t.Fatalf("теги должны вычищаться: %q", item.Description)
	}
}

func TestFetchOneFailsOver(t *testing.T) {
	src, _ := newTestSource(t, serveError, serveFeed)

	item, err := src.FetchOne(context.Background(), "tech")
	if err != nil {
		t.Fatalf("второй источник должен был ответить: %v", err)
	}
	if item.URL == "" {
		t.Fatal("новость не получена")
	}
}

func TestFetchOneAllSourcesDown(t *testing.T) {
	src, _ := newTestSource(t, serveError, serveError)

	_, err := src.FetchOne(context.Background(), "tech")
	if !errors.Is(err, domain.ErrNoNews) {
		t.Fatalf("ожидалась ошибка отсутствия новостей, получили %v", err)
	}
}

func TestFetchOneUnknownCategoryFallsBack(t *testing.T) {
	src, _ := newTestSource(t, serveFeed)

	if _, err := src.FetchOne(context.Background(), "unknown"); err != nil {
		t.Fatalf("неизвестная категория должна падать на общий источник: %v", err)
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("<p>Текст &mdash; с <a href=\"x\">ссылкой</a></p>")
	if got != "Текст — с ссылкой" {
		t.Fatalf("неверная очистка: %q", got)
	}
}
