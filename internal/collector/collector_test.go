package collector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"xepelin-blog-scraper/internal/catalog"
	"xepelin-blog-scraper/internal/classifier"
)

const listingHTML = `<html><body>
<nav>
  <a href="https://xepelin.com/blog">Blog</a>
  <a href="https://xepelin.com/blog/pymes">Pymes</a>
  <a href="/blog/educacion-financiera/">Educación</a>
</nav>
<main>
  <a href="/blog/pymes/why-pymes-matter"><img src="x.png"></a>
  <a href="/blog/pymes/why-pymes-matter">Why pymes matter</a>
  <a href="https://xepelin.com/blog/pymes/factoring-para-pymes">Factoring</a>
  <a href="/blog/pymes/why-pymes-matter/">trailing slash is a different url</a>
  <a href="/precios-y-planes">Planes</a>
  <a>no href</a>
</main>
</body></html>`

func TestCollect(t *testing.T) {
	c := New(classifier.New(catalog.Default()))

	urls, err := c.CollectHTML(listingHTML)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://xepelin.com/blog/pymes/why-pymes-matter",
		"https://xepelin.com/blog/pymes/factoring-para-pymes",
		"https://xepelin.com/blog/pymes/why-pymes-matter/",
	}, urls)
}

func TestCollectExcludesCategoryPages(t *testing.T) {
	c := New(classifier.New(catalog.Default()))

	urls, err := c.CollectHTML(`<a href="https://xepelin.com/blog/pymes">x</a>
<a href="https://xepelin.com/blog/pymes/why-pymes-matter">y</a>
<a href="https://xepelin.com/blog/pymes/why-pymes-matter">z</a>`)
	require.NoError(t, err)
	require.Equal(t, []string{"https://xepelin.com/blog/pymes/why-pymes-matter"}, urls)
}

func TestCollectEmpty(t *testing.T) {
	c := New(classifier.New(catalog.Default()))

	urls, err := c.CollectHTML(`<html><body><p>Pronto habrá artículos</p></body></html>`)
	require.NoError(t, err)
	require.NotNil(t, urls)
	require.Empty(t, urls)
}
