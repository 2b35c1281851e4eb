package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	fieldplan "github.com/hanpama/fieldplan"
	eventbus "github.com/hanpama/fieldplan/internal/eventbus"
	events "github.com/hanpama/fieldplan/internal/events"
	graph "github.com/hanpama/fieldplan/internal/graph"
	record "github.com/hanpama/fieldplan/internal/record"
	reqid "github.com/hanpama/fieldplan/internal/reqid"
	selector "github.com/hanpama/fieldplan/internal/selector"
)

// seen captures what the enumerator received on the last call.
type seen struct {
	ctx     context.Context
	options map[string]any
}

func newTestHandler(t *testing.T, opts ...Option) (*Handler, *seen) {
	t.Helper()
	s := &seen{}
	g := graph.New("test")
	require.NoError(t, g.AddPrimary("id", func(ctx context.Context, _ []selector.Token, options map[string]any) ([]any, error) {
		s.ctx, s.options = ctx, options
		return []any{1, 2}, nil
	}))
	require.NoError(t, g.AddComputed("hello", func(ctx context.Context, r *record.Record) (any, error) {
		return "world", nil
	}, "id"))
	require.NoError(t, g.AddLoaded("nothing", func(ctx context.Context, r *record.Record) (any, error) {
		return r.Get("id")
	}, func(ctx context.Context, keys []any, _ []selector.Token, _ map[string]any) (map[any]any, error) {
		return map[any]any{}, nil
	}, "id"))
	require.NoError(t, g.AddComputed("broken", func(ctx context.Context, r *record.Record) (any, error) {
		return nil, context.Canceled
	}, "id"))
	m, err := fieldplan.NewModel([]*fieldplan.Graph{g})
	require.NoError(t, err)
	return New(m, opts...), s
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/resolve", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestResolve(t *testing.T) {
	h, _ := newTestHandler(t)
	w := post(t, h, `{"fields":"{ hello id nothing }"}`)
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[map[string]any](t, w)
	want := map[string]any{"data": []any{
		map[string]any{"hello": "world", "id": float64(1), "nothing": nil},
		map[string]any{"hello": "world", "id": float64(2), "nothing": nil},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveGET(t *testing.T) {
	h, s := newTestHandler(t)
	q := url.Values{"fields": {"hello"}, "options": {`{"tenant":"acme"}`}}
	req := httptest.NewRequest("GET", "/resolve?"+q.Encode(), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "acme", s.options["tenant"])

	req = httptest.NewRequest("GET", "/resolve", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatch(t *testing.T) {
	h, _ := newTestHandler(t)
	w := post(t, h, `[{"fields":"hello"},{"fields":"unknown"},{"fields":"broken"}]`)
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[[]result](t, w)
	require.Len(t, got, 3)
	require.Len(t, got[0].Data, 2)
	require.Empty(t, got[0].Errors)
	require.Nil(t, got[1].Data)
	require.Equal(t, codeInvalidRequest, got[1].Errors[0].Extensions["code"])
	require.Equal(t, codeResolveFailed, got[2].Errors[0].Extensions["code"])
}

func TestRequestErrors(t *testing.T) {
	h, _ := newTestHandler(t)

	w := post(t, h, `{"fields":"{ hello("}`)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[result](t, w)
	require.Equal(t, codeInvalidRequest, got.Errors[0].Extensions["code"])

	w = post(t, h, `{"fields":""}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, h, `not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, h, `[]`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest("PUT", "/resolve", nil)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	require.Equal(t, http.StatusMethodNotAllowed, rw.Code)

	req = httptest.NewRequest("POST", "/resolve", bytes.NewBufferString(`fields=hello`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	require.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestOptionHeaders(t *testing.T) {
	h, s := newTestHandler(t, WithOptionHeaders("X-Tenant"))

	req := httptest.NewRequest("POST", "/resolve", bytes.NewBufferString(`{"fields":"hello","options":{"tenant":"body","x-tenant":"spoofed"}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant", "abc")
	req.Header.Set("X-Other", "nope")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, map[string]any{"tenant": "body", "x-tenant": "abc"}, s.options)
}

func TestOptionHeadersDefaultEmpty(t *testing.T) {
	h, s := newTestHandler(t)

	req := httptest.NewRequest("POST", "/resolve", bytes.NewBufferString(`{"fields":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant", "abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, s.options)
}

func TestCORSAndPreflight(t *testing.T) {
	h, _ := newTestHandler(t, WithCORS("*"))

	// simple request
	req := httptest.NewRequest("POST", "/resolve", bytes.NewBufferString(`{"fields":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	// preflight
	pre := httptest.NewRequest("OPTIONS", "/resolve", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	require.Equal(t, http.StatusNoContent, pw.Code)
	require.Equal(t, "*", pw.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "X-Test", pw.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORSSpecificOrigin(t *testing.T) {
	h, _ := newTestHandler(t, WithCORS("http://ok.example"))

	req := httptest.NewRequest("POST", "/resolve", bytes.NewBufferString(`{"fields":"hello"}`))
	req.Header.Set("Origin", "http://ok.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, "http://ok.example", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Origin", w.Header().Get("Vary"))

	req = httptest.NewRequest("POST", "/resolve", bytes.NewBufferString(`{"fields":"hello"}`))
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMaxBodyBytes(t *testing.T) {
	h, _ := newTestHandler(t, WithMaxBodyBytes(10))
	w := post(t, h, `{"fields":"1234567890"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestPretty(t *testing.T) {
	h, _ := newTestHandler(t, WithPretty())
	w := post(t, h, `{"fields":"hello"}`)
	require.Contains(t, w.Body.String(), "\n  \"data\"")
}

func TestRequestID(t *testing.T) {
	h, s := newTestHandler(t)

	w := post(t, h, `{"fields":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	id, ok := reqid.FromContext(s.ctx)
	require.True(t, ok)
	require.Equal(t, id, w.Header().Get(reqid.Header))
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	given := uuid.NewString()
	req := httptest.NewRequest("POST", "/resolve", bytes.NewBufferString(`{"fields":"hello"}`))
	req.Header.Set(reqid.Header, given)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	require.Equal(t, given, rw.Header().Get(reqid.Header))
	id, _ = reqid.FromContext(s.ctx)
	require.Equal(t, given, id)
}

func TestHTTPEvents(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)

	var start events.HTTPStart
	var finish events.HTTPFinish
	eventbus.On(bus, func(ctx context.Context, e events.HTTPStart) { start = e })
	eventbus.On(bus, func(ctx context.Context, e events.HTTPFinish) { finish = e })

	h, _ := newTestHandler(t)
	w := post(t, h, `{"fields":"hello"}`)

	require.Equal(t, "POST", start.Method)
	require.Equal(t, "/resolve", start.Path)
	require.Equal(t, w.Header().Get(reqid.Header), start.RequestID)
	require.Equal(t, start.RequestID, finish.RequestID)
	require.Equal(t, http.StatusOK, finish.Status)
}
