package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/require"

	"sleepoutside/internal/cart"
	"sleepoutside/internal/checkout"
	"sleepoutside/internal/datasource"
	"sleepoutside/internal/http/handlers"
	"sleepoutside/internal/remote"
	"sleepoutside/internal/repos"
)

var fixedNow = time.Date(2026, time.October, 19, 15, 4, 5, 0, time.UTC)

type testEnv struct {
	app    *fiber.App
	carts  *cart.Manager
	orders *orderService
}

// orderService stands in for the remote checkout endpoint.
type orderService struct {
	mu       sync.Mutex
	status   int
	response string
	received []map[string]any
}

func (o *orderService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	o.mu.Lock()
	o.received = append(o.received, body)
	status, resp := o.status, o.response
	o.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp)
}

func (o *orderService) reply(status int, body string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status, o.response = status, body
}

func (o *orderService) orders() []map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]map[string]any(nil), o.received...)
}

// newTestApp wires the real handlers over the bundled catalog, an in-memory
// cart, a fake order service and an in-memory sqlite attempt history.
func newTestApp(t *testing.T) *testEnv {
	t.Helper()
	return buildTestApp(t, true)
}

func buildTestApp(t *testing.T, recordAttempts bool) *testEnv {
	t.Helper()
	orders := &orderService{status: http.StatusOK, response: `{"orderId":"ord-1","message":"Order placed"}`}
	srv := httptest.NewServer(orders)
	t.Cleanup(srv.Close)

	api, err := remote.New(remote.Options{Name: "orders", BaseURL: srv.URL, Timeout: 2 * time.Second, FailureThreshold: 100})
	require.NoError(t, err)

	local := datasource.NewLocalProvider(datasource.Bundled())
	products := datasource.New(local)
	carts := cart.NewManager(cart.NewMemoryPersister(), "")
	opts := []checkout.Option{checkout.WithClock(func() time.Time { return fixedNow })}
	var history handlers.AttemptHistory
	if recordAttempts {
		db, err := repos.OpenDB(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		attempts := repos.NewCheckoutAttemptRepo(db)
		opts = append(opts, checkout.WithObserver(checkout.RecordAttempts(attempts)))
		history = attempts
	}
	wf := checkout.NewWorkflow(carts, checkout.NewRemoteSubmitter(api), opts...)

	app := fiber.New(fiber.Config{Views: handlers.NewViews("../../web/templates"), ErrorHandler: handlers.ErrorHandler})
	app.Server().MaxRequestBodySize = 1 << 20
	app.Use(requestid.New())
	app.Use(handlers.NewCSRF(false))
	app.Use(handlers.CartBadge(carts))
	handlers.Routes(app, handlers.NewDeps(products, local.Categories(), carts, wf, history))

	return &testEnv{app: app, carts: carts, orders: orders}
}

// shopper carries the sid and csrf_ cookies between requests the way a
// browser would.
type shopper struct {
	t    *testing.T
	env  *testEnv
	sid  string
	csrf string
}

func (e *testEnv) shopper(t *testing.T) *shopper {
	t.Helper()
	s := &shopper{t: t, env: e}
	resp := s.do(http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, s.csrf, "csrf cookie not issued")
	return s
}

func (s *shopper) do(method, path, contentType string, body io.Reader) *http.Response {
	s.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.sid != "" {
		req.AddCookie(&http.Cookie{Name: "sid", Value: s.sid})
	}
	if s.csrf != "" {
		req.AddCookie(&http.Cookie{Name: "csrf_", Value: s.csrf})
		req.Header.Set("X-Csrf-Token", s.csrf)
	}
	resp, err := s.env.app.Test(req, -1)
	require.NoError(s.t, err)
	for _, c := range resp.Cookies() {
		switch c.Name {
		case "sid":
			s.sid = c.Value
		case "csrf_":
			s.csrf = c.Value
		}
	}
	return resp
}

func (s *shopper) json(method, path string, in any) (*http.Response, map[string]any) {
	s.t.Helper()
	var body io.Reader
	ct := ""
	if in != nil {
		b, err := json.Marshal(in)
		require.NoError(s.t, err)
		body, ct = bytes.NewReader(b), fiber.MIMEApplicationJSON
	}
	resp := s.do(method, path, ct, body)
	var out map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		require.NoError(s.t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp, out
}

// form posts url-encoded fields the way a page form does, csrf included.
func (s *shopper) form(path string, fields map[string]string) (*http.Response, string) {
	s.t.Helper()
	vals := url.Values{"csrf": {s.csrf}}
	for k, v := range fields {
		vals.Set(k, v)
	}
	resp := s.do(http.MethodPost, path, fiber.MIMEApplicationForm, strings.NewReader(vals.Encode()))
	raw, _ := io.ReadAll(resp.Body)
	return resp, string(raw)
}

func (s *shopper) page(path string) (*http.Response, string) {
	s.t.Helper()
	resp := s.do(http.MethodGet, path, "", nil)
	raw, _ := io.ReadAll(resp.Body)
	return resp, string(raw)
}

type logLine struct {
	Level  string         `json:"level"`
	Action string         `json:"action"`
	SID    string         `json:"sid"`
	Fields map[string]any `json:"fields"`
}

type lockedBuf struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuf) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func captureLogs(t *testing.T, fn func()) []logLine {
	t.Helper()
	buf := &lockedBuf{}
	oldW, oldFlags := log.Writer(), log.Flags()
	log.SetOutput(buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(oldW)
		log.SetFlags(oldFlags)
	}()

	fn()

	var out []logLine
	for _, line := range strings.Split(strings.TrimSpace(buf.b.String()), "\n") {
		var e logLine
		if err := json.Unmarshal([]byte(line), &e); err == nil {
			out = append(out, e)
		}
	}
	return out
}

func hasAction(lines []logLine, action string) bool {
	for _, l := range lines {
		if l.Action == action {
			return true
		}
	}
	return false
}
