package browser

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, url string) (io.ReadCloser, string, error) {
	body, ok := m[url]
	if !ok {
		return nil, "", errors.New("404")
	}
	return io.NopCloser(strings.NewReader(body)), "text/html; charset=utf-8", nil
}

func TestStaticPage(t *testing.T) {
	ctx := context.Background()
	b := NewStatic(mapFetcher{
		"https://example.com/blog": `<html><head><title> Blog </title></head><body>
<a href="/blog/a-b">1</a><a href="/blog/c-d">2</a>
<button>Cargar más</button></body></html>`,
	})
	defer b.Close()

	page, err := b.NewPage(ctx)
	require.NoError(t, err)
	defer page.Close()

	require.NoError(t, page.Navigate(ctx, "https://example.com/blog", NetworkIdle, time.Second))

	n, err := page.Count(ctx, `a[href*="/blog/"]`)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	title, err := page.Title(ctx)
	require.NoError(t, err)
	require.Equal(t, "Blog", title)

	require.NoError(t, page.WaitElement(ctx, "button", time.Second))
	require.ErrorIs(t, page.WaitElement(ctx, "article", time.Second), ErrNotFound)

	el, err := page.FindByText(ctx, "button", "Cargar más")
	require.NoError(t, err)
	require.ErrorIs(t, el.Click(ctx), ErrNotInteractive)

	_, err = page.FindByText(ctx, "button", "Ver todo")
	require.ErrorIs(t, err, ErrNotFound)

	html, err := page.HTML(ctx)
	require.NoError(t, err)
	require.Contains(t, html, "/blog/c-d")
}

func TestStaticNavigateError(t *testing.T) {
	ctx := context.Background()
	page, err := NewStatic(mapFetcher{}).NewPage(ctx)
	require.NoError(t, err)

	require.Error(t, page.Navigate(ctx, "https://example.com/missing", DOMContentLoaded, time.Second))
	_, err = page.Count(ctx, "a")
	require.Error(t, err)
}

func TestNewFactory(t *testing.T) {
	f, err := NewFactory(Options{Driver: "static"}, mapFetcher{})
	require.NoError(t, err)
	b, err := f(context.Background())
	require.NoError(t, err)
	require.IsType(t, &Static{}, b)

	_, err = NewFactory(Options{Driver: "webkit"}, nil)
	require.ErrorIs(t, err, ErrUnknownDriver)
}
