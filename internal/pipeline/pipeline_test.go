package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xepelin-blog-scraper/internal/browser"
	"xepelin-blog-scraper/internal/browser/browsertest"
	"xepelin-blog-scraper/internal/catalog"
	"xepelin-blog-scraper/internal/loader"
	"xepelin-blog-scraper/internal/models"
	"xepelin-blog-scraper/pkg/logger"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func post(title string) string {
	return fmt.Sprintf(`<html><head><meta property="article:published_time" content="2024-01-01"></head>
<body><h1>%s</h1>
<div class="flex gap-2"><div class="text-sm dark:text-text-disabled">Ana</div></div>
<div>4 min de lectura</div></body></html>`, title)
}

func fixture(t *testing.T, n int) (*browsertest.Site, []string) {
	t.Helper()
	site := browsertest.NewSite()
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://xepelin.com/blog/pymes/articulo-numero-%d", i)
		site.Docs[urls[i]] = post(fmt.Sprintf("Artículo %d", i))
	}
	site.Listings["https://xepelin.com/blog/pymes"] = &browsertest.Listing{
		Items:       urls,
		Initial:     min(2, n),
		ButtonBatch: 2,
		ButtonText:  "Cargar más",
		Extra:       `<a href="https://xepelin.com/blog/pymes">Pymes</a><a href="/blog/educacion-financiera">EF</a>`,
	}
	return site, urls
}

func newPipeline(cfg Config) *Pipeline {
	return New(cfg, Deps{Catalog: catalog.Default(), Log: logger.Nop(), Sleep: noSleep})
}

func TestScrapeCategory(t *testing.T) {
	site, urls := fixture(t, 5)

	records, err := newPipeline(DefaultConfig()).ScrapeCategory(context.Background(), site, "Pymes")
	require.NoError(t, err)
	require.Len(t, records, len(urls))
	for i, rec := range records {
		require.Equal(t, urls[i], rec.URL)
		require.Equal(t, "Pymes", rec.Category)
		require.Equal(t, fmt.Sprintf("Artículo %d", i), rec.Title)
		require.Equal(t, "Ana", rec.Author)
		require.Equal(t, "4 min de lectura", rec.ReadingTime)
		require.Equal(t, "2024-01-01", rec.PublishedDate)
	}
	require.Zero(t, site.OpenPages())
}

func TestScrapeCategoryRecyclesPages(t *testing.T) {
	site, _ := fixture(t, 5)
	cfg := DefaultConfig()
	cfg.RecycleEvery = 2

	records, err := newPipeline(cfg).ScrapeCategory(context.Background(), site, "Pymes")
	require.NoError(t, err)
	require.Len(t, records, 5)
	// one page for the listing, renewed after the 2nd and 4th post
	require.Equal(t, 3, site.Opened)
	require.Zero(t, site.OpenPages())
}

// crashingBrowser fails the NewPage calls whose 1-based number is listed.
type crashingBrowser struct {
	*browsertest.Site
	fail  map[int]bool
	calls int
}

func (b *crashingBrowser) NewPage(ctx context.Context) (browser.Page, error) {
	b.calls++
	if b.fail[b.calls] {
		return nil, errors.New("target crashed")
	}
	return b.Site.NewPage(ctx)
}

func TestScrapeCategorySurvivesRecycleFailure(t *testing.T) {
	site, urls := fixture(t, 5)
	cfg := DefaultConfig()
	cfg.RecycleEvery = 2
	// call 1 is the listing; 2 is the renew after post 2 and 3 its retry on post 3
	b := &crashingBrowser{Site: site, fail: map[int]bool{2: true, 3: true}}

	records, err := newPipeline(cfg).ScrapeCategory(context.Background(), b, "Pymes")
	require.NoError(t, err)
	require.Len(t, records, 5)
	require.Equal(t, "Artículo 1", records[1].Title)
	require.Equal(t, "Articulo Numero 2", records[2].Title)
	require.Equal(t, models.Unavailable, records[2].Author)
	require.Equal(t, "Pymes", records[2].Category)
	require.Equal(t, urls[2], records[2].URL)
	require.Equal(t, "Artículo 3", records[3].Title)
	require.Equal(t, "Artículo 4", records[4].Title)
	require.Zero(t, site.OpenPages())
}

func TestScrapeAllKeepsPostsAfterRecycleFailure(t *testing.T) {
	cat, err := catalog.New("https://xepelin.com/blog", []catalog.Category{{Name: "Pymes", Slug: "pymes"}})
	require.NoError(t, err)
	site, _ := fixture(t, 5)
	cfg := DefaultConfig()
	cfg.RecycleEvery = 2
	b := &crashingBrowser{Site: site, fail: map[int]bool{2: true}}

	p := New(cfg, Deps{Catalog: cat, Sleep: noSleep, Loader: loader.New(loader.DefaultConfig(), nil, loader.WithSleep(noSleep))})
	result, total := p.ScrapeAll(context.Background(), b)

	require.Equal(t, 5, total)
	for i, rec := range result.Posts("Pymes") {
		require.Equal(t, fmt.Sprintf("Artículo %d", i), rec.Title)
	}
}

func TestScrapeCategoryItemFailureDegrades(t *testing.T) {
	site, urls := fixture(t, 3)
	site.NavErrors[urls[1]] = errors.New("net::ERR_CONNECTION_RESET")

	records, err := newPipeline(DefaultConfig()).ScrapeCategory(context.Background(), site, "Pymes")
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "Articulo Numero 1", records[1].Title)
	require.Equal(t, models.Unavailable, records[1].Author)
	require.Equal(t, "Pymes", records[1].Category)
	require.Equal(t, "Artículo 2", records[2].Title)
}

func TestScrapeCategoryToleratesIdleTimeout(t *testing.T) {
	site, _ := fixture(t, 2)
	site.NavErrors["https://xepelin.com/blog/pymes"] = fmt.Errorf("wait networkidle: %w", context.DeadlineExceeded)

	records, err := newPipeline(DefaultConfig()).ScrapeCategory(context.Background(), site, "Pymes")
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestScrapeCategoryEmpty(t *testing.T) {
	site := browsertest.NewSite()
	site.Listings["https://xepelin.com/blog/pymes"] = &browsertest.Listing{}

	records, err := newPipeline(DefaultConfig()).ScrapeCategory(context.Background(), site, "Pymes")
	require.NoError(t, err)
	require.NotNil(t, records)
	require.Empty(t, records)
}

func TestScrapeCategoryNavigationFailure(t *testing.T) {
	site := browsertest.NewSite()
	site.NavErrors["https://xepelin.com/blog/pymes"] = errors.New("net::ERR_NAME_NOT_RESOLVED")

	_, err := newPipeline(DefaultConfig()).ScrapeCategory(context.Background(), site, "Pymes")
	require.Error(t, err)
	require.Zero(t, site.OpenPages())
}

func TestScrapeCategoryUnknown(t *testing.T) {
	_, err := newPipeline(DefaultConfig()).ScrapeCategory(context.Background(), browsertest.NewSite(), "Cripto")
	require.ErrorIs(t, err, catalog.ErrUnknownCategory)
}

func TestScrapeAllIsolatesFailures(t *testing.T) {
	cat, err := catalog.New("https://xepelin.com/blog", []catalog.Category{
		{Name: "Pymes", Slug: "pymes"},
		{Name: "Noticias", Slug: "noticias"},
		{Name: "Corporativos", Slug: "corporativos"},
	})
	require.NoError(t, err)

	site, _ := fixture(t, 3)
	site.NavErrors["https://xepelin.com/blog/noticias"] = errors.New("target crashed")
	site.Listings["https://xepelin.com/blog/corporativos"] = &browsertest.Listing{
		Items:   []string{"https://xepelin.com/blog/corporativos/gran-empresa"},
		Initial: 1,
	}
	site.Docs["https://xepelin.com/blog/corporativos/gran-empresa"] = post("Gran empresa")

	p := New(DefaultConfig(), Deps{Catalog: cat, Sleep: noSleep, Loader: loader.New(loader.DefaultConfig(), nil, loader.WithSleep(noSleep))})
	result, total := p.ScrapeAll(context.Background(), site)

	require.Equal(t, []string{"Pymes", "Noticias", "Corporativos"}, result.Categories())
	require.Len(t, result.Posts("Pymes"), 3)
	require.Empty(t, result.Posts("Noticias"))
	require.Len(t, result.Posts("Corporativos"), 1)
	require.Equal(t, 4, total)
}
