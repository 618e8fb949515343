package sra

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/scqc/internal/fetcher/colly"
	"github.com/JakeFAU/scqc/internal/metrics"
)

func init() {
	metrics.Init()
}

func newCatalog(t *testing.T, fixture []byte, failFirst int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var fetches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("db") != "sra" || q.Get("retmode") != "json" || q.Get("retmax") != "2" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"header":{},"esearchresult":{"count":"2","retmax":"2","idlist":["901","902"]}}`)
	})
	mux.HandleFunc("/efetch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		n := fetches.Add(1)
		if n <= failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		switch form.Get("id") {
		case "901":
			_, _ = w.Write(fixture)
		case "404":
			w.WriteHeader(http.StatusNotFound)
		default:
			_, _ = io.WriteString(w, "")
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &fetches
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(
		Config{
			ESearchURL: srv.URL + "/esearch.fcgi",
			EFetchURL:  srv.URL + "/efetch.fcgi",
			Tool:       "scqc",
		},
		collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}),
		nil,
		NewRetryPolicy(3, time.Millisecond, 5*time.Millisecond),
		zap.NewNop(),
	)
}

func TestClientSearch(t *testing.T) {
	t.Parallel()

	srv, _ := newCatalog(t, nil, 0)
	ids, err := newTestClient(srv).Search(context.Background(), "single cell", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"901", "902"}, ids)
}

func TestClientFetchRecords(t *testing.T) {
	t.Parallel()

	srv, _ := newCatalog(t, loadFixture(t), 0)
	records, doc, err := newTestClient(srv).FetchRecords(context.Background(), "901")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.NotEmpty(t, doc)
	assert.Equal(t, "901", records[0].SourceUID)
	assert.Equal(t, "901", records[1].SourceUID)
}

func TestClientFetchRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	srv, fetches := newCatalog(t, loadFixture(t), 2)
	_, err := newTestClient(srv).Fetch(context.Background(), "901")
	require.NoError(t, err)
	assert.EqualValues(t, 3, fetches.Load())
}

func TestClientFetchDoesNotRetryNotFound(t *testing.T) {
	t.Parallel()

	srv, fetches := newCatalog(t, nil, 0)
	_, err := newTestClient(srv).Fetch(context.Background(), "404")
	var statusErr *collyfetcher.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.EqualValues(t, 1, fetches.Load())
}

func TestClientFetchEmptyDocument(t *testing.T) {
	t.Parallel()

	srv, _ := newCatalog(t, nil, 0)
	_, _, err := newTestClient(srv).FetchRecords(context.Background(), "777")
	require.ErrorIs(t, err, ErrEmptyDocument)
}

type recordingWaiter struct{ calls atomic.Int32 }

func (w *recordingWaiter) Wait(context.Context, string) error {
	w.calls.Add(1)
	return nil
}

type stubDoer struct {
	requests []collyfetcher.Request
	resp     collyfetcher.Response
}

func (d *stubDoer) Do(_ context.Context, r collyfetcher.Request) (collyfetcher.Response, error) {
	d.requests = append(d.requests, r)
	return d.resp, nil
}

func TestClientAppendsIdentificationParams(t *testing.T) {
	t.Parallel()

	doer := &stubDoer{resp: collyfetcher.Response{Body: []byte("<x/>")}}
	waiter := &recordingWaiter{}
	c := NewClient(Config{APIKey: "k", Tool: "scqc", Email: "ops@example.org"}, doer, waiter, nil, nil)

	_, err := c.Fetch(context.Background(), "123")
	require.NoError(t, err)
	require.Len(t, doer.requests, 1)

	req := doer.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, DefaultEFetchURL, req.URL)
	form, err := url.ParseQuery(req.Body)
	require.NoError(t, err)
	assert.Equal(t, "123", form.Get("id"))
	assert.Equal(t, "sra", form.Get("db"))
	assert.Equal(t, "k", form.Get("api_key"))
	assert.Equal(t, "scqc", form.Get("tool"))
	assert.Equal(t, "ops@example.org", form.Get("email"))
	assert.EqualValues(t, 1, waiter.calls.Load())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(3, time.Millisecond, time.Second)
	assert.False(t, p.ShouldRetry(nil, 1))
	assert.True(t, p.ShouldRetry(errors.New("reset"), 1))
	assert.False(t, p.ShouldRetry(errors.New("reset"), 3))
	assert.False(t, p.ShouldRetry(context.Canceled, 1))
	assert.True(t, p.ShouldRetry(timeoutErr{}, 1))
	assert.True(t, p.ShouldRetry(&collyfetcher.StatusError{StatusCode: http.StatusTooManyRequests, Err: errors.New("x")}, 1))
	assert.False(t, p.ShouldRetry(&collyfetcher.StatusError{StatusCode: http.StatusBadRequest, Err: errors.New("x")}, 1))
}

func TestRetryPolicyBackoffBounded(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(5, 100*time.Millisecond, 400*time.Millisecond)
	for attempt := 0; attempt < 6; attempt++ {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 400*time.Millisecond)
	}
}
