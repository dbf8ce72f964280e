package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xepelin-blog-scraper/internal/browser"
	"xepelin-blog-scraper/internal/browser/browsertest"
	"xepelin-blog-scraper/internal/catalog"
	"xepelin-blog-scraper/internal/models"
	"xepelin-blog-scraper/internal/notify"
	"xepelin-blog-scraper/internal/pipeline"
	"xepelin-blog-scraper/internal/store"
	"xepelin-blog-scraper/pkg/logger"
)

type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recorder) Notify(_ context.Context, m notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) all() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.msgs...)
}

type failingStore struct{}

func (failingStore) Write(context.Context, *models.CategoryResult, string) (string, error) {
	return "", errors.New("quota exceeded")
}
func (failingStore) Close() error { return nil }

type panickingScraper struct{}

func (panickingScraper) ScrapeCategory(context.Context, browser.Browser, string) ([]models.PostRecord, error) {
	panic("boom")
}
func (panickingScraper) ScrapeAll(context.Context, browser.Browser) (*models.CategoryResult, int) {
	panic("boom")
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func site(posts int) *browsertest.Site {
	s := browsertest.NewSite()
	urls := make([]string, posts)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://xepelin.com/blog/pymes/nota-%d", i)
		s.Docs[urls[i]] = fmt.Sprintf(`<html><body><h1>Nota %d</h1><div>3 min de lectura</div></body></html>`, i)
	}
	s.Listings["https://xepelin.com/blog/pymes"] = &browsertest.Listing{Items: urls, Initial: posts}
	return s
}

// fresh hands every job a new copy of the fixture, like a real launcher.
func fresh(posts int) browser.Factory {
	return func(context.Context) (browser.Browser, error) { return site(posts), nil }
}

func newRunner(t *testing.T, d Deps) *Runner {
	t.Helper()
	d.Catalog = catalog.Default()
	d.Log = logger.Nop()
	if d.Scraper == nil {
		d.Scraper = pipeline.New(pipeline.DefaultConfig(), pipeline.Deps{Catalog: d.Catalog, Log: d.Log, Sleep: noSleep})
	}
	if d.Store == nil {
		d.Store = store.NewSQLite(t.TempDir())
	}
	return NewRunner(DefaultConfig(), d)
}

func TestRequestValidate(t *testing.T) {
	cat := catalog.Default()
	cases := []struct {
		req  Request
		want error
	}{
		{Request{Category: "Pymes", CallbackURL: "http://hook"}, nil},
		{Request{All: true, CallbackURL: "http://hook"}, nil},
		{Request{Category: "Pymes"}, ErrMissingCallback},
		{Request{CallbackURL: "http://hook"}, ErrMissingCategory},
		{Request{Category: "Deportes", CallbackURL: "http://hook"}, catalog.ErrUnknownCategory},
	}
	for _, tc := range cases {
		if err := tc.req.Validate(cat); !errors.Is(err, tc.want) {
			t.Fatalf("%+v: want %v, got %v", tc.req, tc.want, err)
		}
	}
}

func TestRunCategoryDeliversWebhook(t *testing.T) {
	var got notify.Payload
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	r := newRunner(t, Deps{Browsers: fresh(3), Notifier: notify.NewWebhook(time.Second)})
	out := r.Run(context.Background(), "job-1", Request{Category: "Pymes", CallbackURL: hook.URL, ReplyTo: "ops@xepelin.com"})

	require.NoError(t, out.Err)
	require.Equal(t, "job-1", out.JobID)
	require.Equal(t, notify.StatusSuccess, out.Status)
	require.Equal(t, 3, out.Total)
	require.True(t, strings.HasPrefix(out.StoreID, "sqlite:"))
	require.Equal(t, notify.Payload{Email: "ops@xepelin.com", Link: out.StoreID, Status: notify.StatusSuccess}, got)
}

func TestRunEmptyCategoryFails(t *testing.T) {
	rec := &recorder{}
	r := newRunner(t, Deps{Browsers: fresh(0), Notifier: rec})

	out := r.Run(context.Background(), "", Request{Category: "Pymes", CallbackURL: "http://hook"})
	require.ErrorIs(t, out.Err, ErrNoPosts)
	require.Equal(t, notify.StatusFailed, out.Status)
	require.Empty(t, out.StoreID)
	require.NotEmpty(t, out.JobID)

	msgs := rec.all()
	require.Len(t, msgs, 1)
	p := msgs[0].Payload()
	require.Equal(t, "No se encontraron posts en la categoría 'Pymes'", p.Error)
	require.Equal(t, notify.NoDataLink, p.Link)
}

func TestRunAllWithoutDataFails(t *testing.T) {
	rec := &recorder{}
	r := newRunner(t, Deps{Browsers: fresh(0), Notifier: rec})

	out := r.Run(context.Background(), "", Request{All: true, CallbackURL: "http://hook"})
	require.ErrorIs(t, out.Err, ErrNoPosts)
	require.Equal(t, "No se pudieron extraer datos del blog", rec.all()[0].Error)
}

func TestRunAllWritesEveryCategory(t *testing.T) {
	rec := &recorder{}
	st := store.NewSQLite(t.TempDir())
	r := newRunner(t, Deps{Browsers: fresh(2), Notifier: rec, Store: st})

	out := r.Run(context.Background(), "", Request{All: true, CallbackURL: "http://hook"})
	require.NoError(t, out.Err)
	require.Equal(t, 2, out.Total)

	tabs, err := st.Tabs(context.Background(), out.StoreID)
	require.NoError(t, err)
	require.Equal(t, []string{"Pymes"}, tabs)
}

func TestRunStoreFailureNotifies(t *testing.T) {
	rec := &recorder{}
	r := newRunner(t, Deps{Browsers: fresh(1), Notifier: rec, Store: failingStore{}})

	out := r.Run(context.Background(), "", Request{Category: "Pymes", CallbackURL: "http://hook"})
	require.Error(t, out.Err)
	require.Equal(t, notify.StatusFailed, rec.all()[0].Status)
	require.Contains(t, rec.all()[0].Error, "quota exceeded")
}

func TestRunBrowserFailureNotifies(t *testing.T) {
	rec := &recorder{}
	r := newRunner(t, Deps{
		Browsers: func(context.Context) (browser.Browser, error) { return nil, errors.New("chromium missing") },
		Notifier: rec,
	})

	out := r.Run(context.Background(), "", Request{Category: "Pymes", CallbackURL: "http://hook"})
	require.ErrorContains(t, out.Err, "chromium missing")
	require.Len(t, rec.all(), 1)
}

func TestRunRecoversPanic(t *testing.T) {
	rec := &recorder{}
	r := newRunner(t, Deps{Browsers: fresh(1), Notifier: rec, Scraper: panickingScraper{}})

	out := r.Run(context.Background(), "", Request{Category: "Pymes", CallbackURL: "http://hook"})
	require.ErrorContains(t, out.Err, "boom")
	require.Equal(t, notify.StatusFailed, out.Status)
	require.Len(t, rec.all(), 1)
}

func TestRunnerProcessesQueue(t *testing.T) {
	rec := &recorder{}
	r := newRunner(t, Deps{Browsers: fresh(1), Notifier: rec})
	r.Start()

	for i := 0; i < 3; i++ {
		id, err := r.Submit(Request{Category: "Pymes", CallbackURL: "http://hook"})
		require.NoError(t, err)
		require.NotEmpty(t, id)
	}
	require.NoError(t, r.Close(context.Background()))

	msgs := rec.all()
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		require.Equal(t, notify.StatusSuccess, m.Status)
	}

	_, err := r.Submit(Request{Category: "Pymes", CallbackURL: "http://hook"})
	require.ErrorIs(t, err, ErrClosed)
}

func TestSubmitRejects(t *testing.T) {
	d := Deps{Catalog: catalog.Default(), Browsers: fresh(1), Notifier: &recorder{}}
	r := NewRunner(Config{Workers: 1, QueueSize: 1}, d)

	_, err := r.Submit(Request{Category: "Pymes"})
	require.ErrorIs(t, err, ErrMissingCallback)

	_, err = r.Submit(Request{Category: "Pymes", CallbackURL: "http://hook"})
	require.NoError(t, err)
	_, err = r.Submit(Request{Category: "Pymes", CallbackURL: "http://hook"})
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestScheduleValidates(t *testing.T) {
	r := newRunner(t, Deps{Browsers: fresh(1), Notifier: &recorder{}})

	_, err := r.Schedule("@daily", Request{All: true})
	require.ErrorIs(t, err, ErrMissingCallback)

	_, err = r.Schedule("not a spec", Request{All: true, CallbackURL: "http://hook"})
	require.Error(t, err)

	c, err := r.Schedule("@every 1h", Request{All: true, CallbackURL: "http://hook"})
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)
	<-c.Stop().Done()
}
