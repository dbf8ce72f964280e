package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"xepelin-blog-scraper/internal/models"
)

// Options describe where each field lives in a post page.
type Options struct {
	TitleTags       []string `json:"title_tags"`
	AuthorContainer string   `json:"author_container"`
	AuthorPart      string   `json:"author_part"`
	ReadingBlock    string   `json:"reading_block"`
	MinutesToken    string   `json:"minutes_token"`
	ReadingToken    string   `json:"reading_token"`
	ReadingMaxLen   int      `json:"reading_max_len"`
	PublishedMeta   string   `json:"published_meta"`
}

func DefaultOptions() Options {
	return Options{
		TitleTags:       []string{"h1", "h2"},
		AuthorContainer: `div[class="flex gap-2"]`,
		AuthorPart:      `div[class="text-sm dark:text-text-disabled"]`,
		ReadingBlock:    "div",
		MinutesToken:    "min",
		ReadingToken:    "lectura",
		ReadingMaxLen:   30,
		PublishedMeta:   `meta[property="article:published_time"]`,
	}
}

// Fetcher returns the rendered HTML of a post page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (io.ReadCloser, string, error)
}

type Parser struct {
	opts      Options
	readingRe *regexp.Regexp
	caser     cases.Caser
}

func New(opts Options) *Parser {
	d := DefaultOptions()
	if len(opts.TitleTags) == 0 {
		opts.TitleTags = d.TitleTags
	}
	if opts.AuthorContainer == "" {
		opts.AuthorContainer = d.AuthorContainer
	}
	if opts.AuthorPart == "" {
		opts.AuthorPart = d.AuthorPart
	}
	if opts.ReadingBlock == "" {
		opts.ReadingBlock = d.ReadingBlock
	}
	if opts.MinutesToken == "" {
		opts.MinutesToken = d.MinutesToken
	}
	if opts.ReadingToken == "" {
		opts.ReadingToken = d.ReadingToken
	}
	if opts.ReadingMaxLen <= 0 {
		opts.ReadingMaxLen = d.ReadingMaxLen
	}
	if opts.PublishedMeta == "" {
		opts.PublishedMeta = d.PublishedMeta
	}

	re := regexp.MustCompile(`(?i)(\d+)\s*(` + regexp.QuoteMeta(opts.MinutesToken) + `(?:utos?|s)?)\.?\s*(?:de\s+)?` + regexp.QuoteMeta(opts.ReadingToken))
	return &Parser{
		opts:      opts,
		readingRe: re,
		caser:     cases.Title(language.Spanish),
	}
}

// ExtractFrom fetches a post and extracts it. The returned record is always
// usable: when the fetch or parse fails it is derived from the URL alone and
// the error says why.
func (p *Parser) ExtractFrom(ctx context.Context, f Fetcher, rawURL string) (models.PostRecord, error) {
	body, contentType, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return p.Fallback(rawURL), fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer body.Close()

	rec, err := p.Extract(body, contentType, rawURL)
	if err != nil {
		return p.Fallback(rawURL), err
	}
	return rec, nil
}

// Extract reads one post document. Missing fields become sentinels; only an
// unreadable document is an error.
func (p *Parser) Extract(r io.Reader, contentType, rawURL string) (models.PostRecord, error) {
	doc, err := decode(r, contentType)
	if err != nil {
		return models.PostRecord{}, fmt.Errorf("parse %s: %w", rawURL, err)
	}

	return models.PostRecord{
		Title:         orSentinel(doc, p.title, models.Untitled),
		Author:        orSentinel(doc, p.author, models.Unavailable),
		ReadingTime:   orSentinel(doc, p.readingTime, models.Unavailable),
		PublishedDate: orSentinel(doc, p.publishedDate, models.Unavailable),
		URL:           rawURL,
	}, nil
}

func decode(r io.Reader, contentType string) (*goquery.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	enc, _, _ := charset.DetermineEncoding(data, contentType)
	utf8data, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		if !utf8.Valid(data) {
			return nil, err
		}
		utf8data = data
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(utf8data))
}

// Fallback builds a record from the URL slug when the page itself is unusable.
func (p *Parser) Fallback(rawURL string) models.PostRecord {
	return models.PostRecord{
		Title:         p.titleFromURL(rawURL),
		Author:        models.Unavailable,
		ReadingTime:   models.Unavailable,
		PublishedDate: models.Unavailable,
		URL:           rawURL,
	}
}

func (p *Parser) titleFromURL(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	path = strings.TrimRight(path, "/")
	slug := path[strings.LastIndex(path, "/")+1:]
	words := strings.Fields(strings.ReplaceAll(slug, "-", " "))
	if len(words) == 0 {
		return models.Untitled
	}
	return p.caser.String(strings.Join(words, " "))
}
