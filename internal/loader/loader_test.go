package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xepelin-blog-scraper/internal/browser"
	"xepelin-blog-scraper/internal/browser/browsertest"
	"xepelin-blog-scraper/internal/catalog"
	"xepelin-blog-scraper/internal/classifier"
	"xepelin-blog-scraper/internal/collector"
	"xepelin-blog-scraper/pkg/logger"
)

const listingURL = "https://xepelin.com/blog/pymes"

type sleeps struct {
	calls []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return ctx.Err()
}

func posts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://xepelin.com/blog/pymes/post-numero-%d", i)
	}
	return out
}

func open(t *testing.T, site *browsertest.Site) browser.Page {
	t.Helper()
	page, err := site.NewPage(context.Background())
	require.NoError(t, err)
	require.NoError(t, page.Navigate(context.Background(), listingURL, browser.NetworkIdle, time.Second))
	return page
}

func TestLoadRevealsEverythingBehindButton(t *testing.T) {
	const total = 23
	site := browsertest.NewSite()
	site.Listings[listingURL] = &browsertest.Listing{
		Items:       posts(total),
		Initial:     5,
		ButtonBatch: 6,
		ButtonText:  "Cargar más",
		Extra:       `<a href="https://xepelin.com/blog/pymes">Pymes</a>`,
	}
	page := open(t, site)

	s := &sleeps{}
	res := New(DefaultConfig(), logger.Nop(), WithSleep(s.sleep)).Load(context.Background(), page)

	require.Equal(t, StopStalled, res.Reason)
	require.Equal(t, 5, res.Start)
	require.Equal(t, total, res.Final)
	require.LessOrEqual(t, res.Iterations, DefaultConfig().MaxIterations)
	require.Equal(t, 2*time.Second, s.calls[len(s.calls)-1])

	html, err := page.HTML(context.Background())
	require.NoError(t, err)
	urls, err := collector.New(classifier.New(catalog.Default())).CollectHTML(html)
	require.NoError(t, err)
	require.Len(t, urls, total)
}

func TestLoadRevealsOnScroll(t *testing.T) {
	site := browsertest.NewSite()
	site.Listings[listingURL] = &browsertest.Listing{Items: posts(10), Initial: 2, ScrollBatch: 4}
	page := open(t, site)

	s := &sleeps{}
	res := New(DefaultConfig(), nil, WithSleep(s.sleep)).Load(context.Background(), page)

	require.Equal(t, StopStalled, res.Reason)
	require.Equal(t, 10, res.Final)
	// two productive scrolls, then three stalls
	require.Equal(t, 5, res.Iterations)
	// no button was ever found, so only settle waits plus the final one
	for _, d := range s.calls[:len(s.calls)-1] {
		require.Equal(t, 5*time.Second, d)
	}
}

func TestLoadStopsWhenNothingIsRevealed(t *testing.T) {
	site := browsertest.NewSite()
	site.Listings[listingURL] = &browsertest.Listing{Items: posts(4), Initial: 4, ButtonText: "Cargar más"}
	page := open(t, site)

	res := New(DefaultConfig(), nil, WithSleep((&sleeps{}).sleep)).Load(context.Background(), page)
	require.Equal(t, StopStalled, res.Reason)
	require.Equal(t, 3, res.Iterations)
	require.Equal(t, 4, res.Final)
}

func TestLoadHonoursIterationCap(t *testing.T) {
	site := browsertest.NewSite()
	site.Listings[listingURL] = &browsertest.Listing{Items: posts(1000), Initial: 1, ScrollBatch: 1}
	page := open(t, site)

	cfg := DefaultConfig()
	cfg.MaxIterations = 7
	res := New(cfg, nil, WithSleep((&sleeps{}).sleep)).Load(context.Background(), page)
	require.Equal(t, StopCap, res.Reason)
	require.Equal(t, 7, res.Iterations)
}

func TestLoadCustomStallLimit(t *testing.T) {
	site := browsertest.NewSite()
	site.Listings[listingURL] = &browsertest.Listing{Items: posts(3), Initial: 3}
	page := open(t, site)

	cfg := DefaultConfig()
	cfg.StallLimit = 5
	res := New(cfg, nil, WithSleep((&sleeps{}).sleep)).Load(context.Background(), page)
	require.Equal(t, 5, res.Iterations)
}

func TestLoadExitsQuietlyOnDriverError(t *testing.T) {
	site := browsertest.NewSite()
	site.Listings[listingURL] = &browsertest.Listing{Items: posts(3), Initial: 3}
	page := open(t, site)
	site.CountErr = errors.New("target closed")

	res := New(DefaultConfig(), nil, WithSleep((&sleeps{}).sleep)).Load(context.Background(), page)
	require.Equal(t, StopDriver, res.Reason)
	require.Equal(t, 1, res.Iterations)
}

func TestLoadStopsOnCancel(t *testing.T) {
	site := browsertest.NewSite()
	site.Listings[listingURL] = &browsertest.Listing{Items: posts(50), Initial: 1, ScrollBatch: 1}
	page := open(t, site)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := New(DefaultConfig(), nil, WithSleep((&sleeps{}).sleep)).Load(ctx, page)
	require.Equal(t, StopCanceled, res.Reason)
	require.Equal(t, 1, res.Iterations)
}

type oneDoc string

func (d oneDoc) Fetch(context.Context, string) (io.ReadCloser, string, error) {
	return io.NopCloser(strings.NewReader(string(d))), "text/html", nil
}

func TestLoadUnclickableControlCountsAsStall(t *testing.T) {
	ctx := context.Background()
	page, err := browser.NewStatic(oneDoc(`<a href="/blog/pymes/a-b">x</a><button>Cargar más</button>`)).NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, page.Navigate(ctx, listingURL, browser.NetworkIdle, time.Second))

	res := New(DefaultConfig(), nil, WithSleep((&sleeps{}).sleep)).Load(ctx, page)
	require.Equal(t, StopStalled, res.Reason)
	require.Equal(t, 3, res.Iterations)
	require.Equal(t, 1, res.Final)
}

func TestSleepRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	require.NoError(t, Sleep(context.Background(), 0))
}
