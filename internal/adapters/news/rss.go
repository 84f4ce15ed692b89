package news

import (
	"context"
	"fmt"
	"html"
	"math/rand"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"news-autopost-bot/internal/domain"
	"news-autopost-bot/internal/infra/metrics"
)

// Источники по категориям. Порядок задаёт приоритет: при отказе первого
// источника берётся следующий.
var defaultSources = map[string][]string{
	"tech": {
		"https://habr.com/ru/rss/news/",
		"https://www.cnews.ru/inc/rss/news.xml",
	},
	"business": {
		"https://www.rbc.ru/rss/economics.rss",
		"https://www.vedomosti.ru/rss/news",
	},
	"science": {
		"https://naked-science.ru/feed",
		"https://nplus1.ru/rss",
	},
	"sport": {
		"https://www.sports.ru/rss/main.xml",
		"https://www.championat.com/rss/news/",
	},
	"world": {
		"https://lenta.ru/rss/news",
		"https://www.interfax.ru/rss.asp",
	},
	"entertainment": {
		"https://www.kinopoisk.ru/media/rss/news/",
		"https://lenta.ru/rss/culture",
	},
}

const freshestPoolSize = 10

var tagRe = regexp.MustCompile(`<[^>]+>`)

// RSSSource получает новости из RSS-лент.
type RSSSource struct {
	parser  *gofeed.Parser
	sources map[string][]string
	log     zerolog.Logger
	pick    func(n int) int
}

// NewRSSSource создаёт источник с лентами по умолчанию.
func NewRSSSource(logger zerolog.Logger) *RSSSource {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: 15 * time.Second}
	parser.UserAgent = "news-autopost-bot/1.0"
	return &RSSSource{
		parser:  parser,
		sources: defaultSources,
		log:     logger,
		pick:    rand.Intn,
	}
}

var _ domain.NewsSource = (*RSSSource)(nil)

// FetchOne возвращает случайную новость из десятки самых свежих по категории.
// Источники перебираются по порядку, пока один не ответит.
func (r *RSSSource) FetchOne(ctx context.Context, category string) (domain.NewsItem, error) {
	urls, ok := r.sources[category]
	if !ok || len(urls) == 0 {
		urls = r.sources["world"]
	}

	var lastErr error
	for _, url := range urls {
		start := time.Now()
		feed, err := r.parser.ParseURLWithContext(url, ctx)
		metrics.ObserveNetworkRequest("rss", "fetch", url, start, err)
		if err != nil {
			r.log.Warn().Err(err).Str("url", url).Msg("news: источник недоступен")
			lastErr = err
			continue
		}
		if len(feed.Items) == 0 {
			r.log.Warn().Str("url", url).Msg("news: источник пуст")
			continue
		}
		item := r.pickFreshest(feed.Items)
		return r.toNewsItem(item), nil
	}
	if lastErr != nil {
		return domain.NewsItem{}, fmt.Errorf("%w: %v", domain.ErrNoNews, lastErr)
	}
	return domain.NewsItem{}, domain.ErrNoNews
}

// pickFreshest берёт случайный элемент из десятки самых свежих.
func (r *RSSSource) pickFreshest(items []*gofeed.Item) *gofeed.Item {
	sorted := make([]*gofeed.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := sorted[i].PublishedParsed, sorted[j].PublishedParsed
		if ti == nil || tj == nil {
			return tj == nil && ti != nil
		}
		return ti.After(*tj)
	})
	pool := sorted
	if len(pool) > freshestPoolSize {
		pool = pool[:freshestPoolSize]
	}
	return pool[r.pick(len(pool))]
}

func (r *RSSSource) toNewsItem(item *gofeed.Item) domain.NewsItem {
	out := domain.NewsItem{
		Title:       StripHTML(item.Title),
		Description: StripHTML(item.Description),
		URL:         item.Link,
		PublishedAt: item.PublishedParsed,
	}
	if item.Image != nil {
		out.ImageURL = item.Image.URL
	} else {
		for _, enc := range item.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") {
				out.ImageURL = enc.URL
				break
			}
		}
	}
	return out
}

// StripHTML убирает теги и HTML-сущности из текста ленты.
func StripHTML(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagRe.ReplaceAllString(s, "")))
}
