package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T, r *mux.Router) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func fastHTTP(creds Credentials, retries int) *HTTP {
	return NewHTTP(HTTPOptions{
		RetryMax:     retries,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Credentials:  creds,
		UserAgent:    "jmap-test",
		Logger:       discardLogger(),
	})
}

func TestHTTPExchange(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
		assert.Equal(t, ContentTypeJSON, req.Header.Get("Content-Type"))
		assert.Equal(t, "jmap-test", req.Header.Get("User-Agent"))
		body, _ := io.ReadAll(req.Body)
		assert.JSONEq(t, `{"using":[]}`, string(body))
		w.Header().Set("Content-Type", ContentTypeJSON)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}).Methods(http.MethodPost)
	srv := newServer(t, r)

	resp, err := fastHTTP(Bearer("tok"), 0).Exchange(context.Background(), &Request{
		URL:  srv.URL + "/api/",
		Body: []byte(`{"using":[]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
	assert.NoError(t, CheckStatus(srv.URL, resp))
}

func TestHTTPGetHasNoContentType(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/session", func(w http.ResponseWriter, req *http.Request) {
		assert.Empty(t, req.Header.Get("Content-Type"))
		user, pass, ok := req.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "secret", pass)
		_, _ = w.Write([]byte(`{}`))
	}).Methods(http.MethodGet)
	srv := newServer(t, r)

	resp, err := fastHTTP(Basic{Username: "alice", Password: "secret"}, 0).Exchange(context.Background(), &Request{
		Method: http.MethodGet,
		URL:    srv.URL + "/session",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPRetriesOnlyUnavailable(t *testing.T) {
	var unavailable, failing atomic.Int32
	r := mux.NewRouter()
	r.HandleFunc("/busy", func(w http.ResponseWriter, _ *http.Request) {
		if unavailable.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	r.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		failing.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`oops`))
	})
	srv := newServer(t, r)
	tr := fastHTTP(nil, 3)

	resp, err := tr.Exchange(context.Background(), &Request{URL: srv.URL + "/busy", Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), unavailable.Load())

	resp, err = tr.Exchange(context.Background(), &Request{URL: srv.URL + "/broken", Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, int32(1), failing.Load())

	err = CheckStatus(srv.URL+"/broken", resp)
	require.Error(t, err)
	assert.True(t, IsStatusError(err))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "oops", string(se.Body))
}

func TestHTTPExhaustedRetriesReturnLastResponse(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/limited", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	srv := newServer(t, r)

	resp, err := fastHTTP(nil, 1).Exchange(context.Background(), &Request{URL: srv.URL + "/limited", Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestHTTPCancelledContext(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/slow", func(w http.ResponseWriter, req *http.Request) {
		<-req.Context().Done()
	})
	srv := newServer(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := fastHTTP(nil, 2).Exchange(ctx, &Request{URL: srv.URL + "/slow", Body: []byte(`{}`)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCredentials(t *testing.T) {
	assert.Equal(t, "Bearer abc", Bearer("abc").Authorization())
	assert.Equal(t, "Basic YWxpY2U6c2VjcmV0", Basic{Username: "alice", Password: "secret"}.Authorization())

	h := authHeader(nil, Bearer("abc"))
	assert.Equal(t, "Bearer abc", h.Get("Authorization"))

	h = http.Header{"Authorization": []string{"Custom x"}}
	assert.Equal(t, "Custom x", authHeader(h, Bearer("abc")).Get("Authorization"))
}

func TestFuncTransport(t *testing.T) {
	var got string
	tr := Func(func(_ context.Context, req *Request) (*Response, error) {
		got = req.URL
		return &Response{StatusCode: http.StatusAccepted}, nil
	})

	resp, err := tr.Exchange(context.Background(), &Request{URL: "https://x/api"})
	require.NoError(t, err)
	assert.Equal(t, "https://x/api", got)
	assert.NoError(t, CheckStatus("https://x/api", resp))
}
