package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pennylogs/internal/backend"
	"pennylogs/internal/core"
	"pennylogs/internal/events"
	"pennylogs/internal/services"
)

var fixedNow = time.Date(2024, time.April, 15, 10, 0, 0, 0, time.UTC)

type ServerSuite struct {
	suite.Suite
	rates   *httptest.Server
	backend *backend.Backend
	srv     *Server
	ts      *httptest.Server
	token   string
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.rates = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v6/latest/EUR":
			_, _ = io.WriteString(w, `{"result":"success","base_code":"EUR","rates":{"USD":1.10,"GBP":0.85}}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	b, err := backend.NewFactory(nil).
		WithClock(func() time.Time { return fixedNow }).
		CreateBackend(context.Background(), backend.Config{Type: backend.MemoryBackend, ExchangeRateURL: s.rates.URL})
	s.Require().NoError(err)
	s.backend = b

	s.srv, err = NewServer(":0", b, Options{RateLimitPerMinute: 1000, Heartbeat: 50 * time.Millisecond})
	s.Require().NoError(err)
	s.ts = httptest.NewServer(s.srv.Handler)

	s.do(http.MethodPost, "/api/register", "", `{"email":"ada@example.com","password":"correct horse"}`, http.StatusCreated, nil)
	var sess struct {
		Token string `json:"token"`
	}
	s.do(http.MethodPost, "/api/login", "", `{"email":"ada@example.com","password":"correct horse"}`, http.StatusOK, &sess)
	s.Require().NotEmpty(sess.Token)
	s.token = sess.Token
}

func (s *ServerSuite) TearDownTest() {
	s.ts.Close()
	_ = s.srv.Shutdown(context.Background())
	_ = s.backend.Close()
	s.rates.Close()
}

// do sends a request and asserts its status, decoding the body into out.
func (s *ServerSuite) do(method, path, token, body string, wantStatus int, out any) *http.Response {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.ts.URL+path, rd)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.ts.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Require().Equal(wantStatus, resp.StatusCode, "%s %s: %s", method, path, raw)
	if out != nil {
		s.Require().NoError(json.Unmarshal(raw, out), string(raw))
	}
	return resp
}

func (s *ServerSuite) addExpense(body string) core.Expense {
	var e core.Expense
	s.do(http.MethodPost, "/api/expenses", s.token, body, http.StatusCreated, &e)
	return e
}

func (s *ServerSuite) TestHealth() {
	s.do(http.MethodGet, "/healthz", "", "", http.StatusOK, nil)
	s.do(http.MethodGet, "/readyz", "", "", http.StatusOK, nil)
}

func (s *ServerSuite) TestSecurityAndTraceHeaders() {
	resp := s.do(http.MethodGet, "/healthz", "", "", http.StatusOK, nil)
	s.Equal("nosniff", resp.Header.Get("X-Content-Type-Options"))
	s.Equal("DENY", resp.Header.Get("X-Frame-Options"))
	s.NotEmpty(resp.Header.Get("X-Request-ID"))
}

func (s *ServerSuite) TestRequiresAuthentication() {
	resp := s.do(http.MethodGet, "/api/expenses", "", "", http.StatusUnauthorized, nil)
	s.Contains(resp.Header.Get("WWW-Authenticate"), "Bearer")
	s.do(http.MethodGet, "/api/expenses", "not-a-token", "", http.StatusUnauthorized, nil)
}

func (s *ServerSuite) TestRegisterErrors() {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"taken", `{"email":"ada@example.com","password":"correct horse"}`, http.StatusConflict},
		{"bad email", `{"email":"ada","password":"correct horse"}`, http.StatusUnprocessableEntity},
		{"weak password", `{"email":"bob@example.com","password":"short"}`, http.StatusUnprocessableEntity},
		{"malformed", `{"email":`, http.StatusBadRequest},
		{"unknown field", `{"email":"bob@example.com","password":"correct horse","admin":true}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			var body errorBody
			s.do(http.MethodPost, "/api/register", "", tt.body, tt.want, &body)
			s.NotEmpty(body.Error)
		})
	}
}

func (s *ServerSuite) TestLoginWrongPassword() {
	s.do(http.MethodPost, "/api/login", "", `{"email":"ada@example.com","password":"wrong password"}`, http.StatusUnauthorized, nil)
}

func (s *ServerSuite) TestExpenseCRUD() {
	created := s.addExpense(`{"name":"Coffee","amount":"3.50","category":"1","date":"2024-04-10"}`)
	s.NotEmpty(created.ID)
	s.Equal(int64(350), created.Amount.Cents)
	s.Equal("2024-04-10", created.Date.String())

	var got core.Expense
	s.do(http.MethodGet, "/api/expenses/"+created.ID, s.token, "", http.StatusOK, &got)
	s.Equal(created.ID, got.ID)

	var updated core.Expense
	s.do(http.MethodPatch, "/api/expenses/"+created.ID, s.token, `{"amount":4.25}`, http.StatusOK, &updated)
	s.Equal(int64(425), updated.Amount.Cents)
	s.Equal("Coffee", updated.Name)

	var list []core.Expense
	s.do(http.MethodGet, "/api/expenses", s.token, "", http.StatusOK, &list)
	s.Len(list, 1)

	s.do(http.MethodDelete, "/api/expenses/"+created.ID, s.token, "", http.StatusNoContent, nil)
	s.do(http.MethodGet, "/api/expenses/"+created.ID, s.token, "", http.StatusNotFound, nil)
	s.do(http.MethodDelete, "/api/expenses/"+created.ID, s.token, "", http.StatusNotFound, nil)
}

func (s *ServerSuite) TestCreateExpenseKeepsStartDate() {
	e := s.addExpense(`{"name":"Gym","amount":30,"category":"10","date":"2024-04-01","monthly":true,"startDate":"2024-01-01"}`)
	s.Equal("2024-01-01", e.StartDate.String())

	var got core.Expense
	s.do(http.MethodGet, "/api/expenses/"+e.ID, s.token, "", http.StatusOK, &got)
	s.Equal("2024-01-01", got.StartDate.String())
}

func (s *ServerSuite) TestCreateExpenseErrors() {
	s.addExpense(`{"name":"Rent","amount":900,"category":"2","date":"2024-04-01"}`)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty name", `{"name":" ","amount":1,"category":"2"}`, http.StatusUnprocessableEntity},
		{"negative amount", `{"name":"X","amount":-1,"category":"2"}`, http.StatusUnprocessableEntity},
		{"bad date", `{"name":"X","amount":1,"category":"2","date":"04/01/2024"}`, http.StatusUnprocessableEntity},
		{"bad currency", `{"name":"X","amount":1,"category":"2","currency":"EURO"}`, http.StatusUnprocessableEntity},
		{"duplicate this month", `{"name":"Rent","amount":900,"category":"2"}`, http.StatusConflict},
		{"rates unavailable", `{"name":"X","amount":1,"category":"2","currency":"JPY"}`, http.StatusBadGateway},
		{"malformed", `[1,2]`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.do(http.MethodPost, "/api/expenses", s.token, tt.body, tt.want, nil)
		})
	}
}

func (s *ServerSuite) TestCreateExpenseConvertsCurrency() {
	e := s.addExpense(`{"name":"Museum","amount":"10.00","category":"3","currency":"eur"}`)
	s.Equal(int64(1100), e.Amount.Cents)
	s.Equal("2024-04-15", e.Date.String(), "date defaults to today")
}

func (s *ServerSuite) TestRecurringLifecycle() {
	tmpl := s.addExpense(`{"name":"Gym","amount":30,"category":"5","date":"2024-04-01","monthly":true}`)
	oneOff := s.addExpense(`{"name":"Shoes","amount":80,"category":"5","date":"2024-04-02"}`)

	var list []services.RecurringStatus
	s.do(http.MethodGet, "/api/recurring", s.token, "", http.StatusOK, &list)
	s.Require().Len(list, 1)
	s.Equal(tmpl.ID, list[0].ID)
	s.Equal(core.StatusAddedThisMonth, list[0].Status)

	var paused core.Expense
	s.do(http.MethodPost, "/api/recurring/"+tmpl.ID+"/pause", s.token, "", http.StatusOK, &paused)
	s.True(paused.IsPaused)

	// Added this month outranks paused.
	s.do(http.MethodGet, "/api/recurring", s.token, "", http.StatusOK, &list)
	s.Equal(core.StatusAddedThisMonth, list[0].Status)

	var resumed core.Expense
	s.do(http.MethodPost, "/api/recurring/"+tmpl.ID+"/resume", s.token, "", http.StatusOK, &resumed)
	s.False(resumed.IsPaused)

	s.do(http.MethodPost, "/api/recurring/"+oneOff.ID+"/pause", s.token, "", http.StatusConflict, nil)
	s.do(http.MethodPost, "/api/recurring/missing/pause", s.token, "", http.StatusNotFound, nil)

	var res services.RollForwardResult
	s.do(http.MethodPost, "/api/recurring/roll-forward", s.token, "", http.StatusOK, &res)
	s.Equal(1, res.Checked)
	s.Zero(res.Created, "template was added this month")
}

func (s *ServerSuite) TestDedupe() {
	ctx := context.Background()
	user, _, err := s.backend.Store.GetUserByEmail(ctx, "ada@example.com")
	s.Require().NoError(err)

	// Write two templates of the same group straight to the store.
	for _, d := range []string{"2024-01-05", "2024-02-05"} {
		date, err := core.ParseDate(d)
		s.Require().NoError(err)
		_, err = s.backend.Store.CreateExpense(ctx, user.ID, core.Expense{
			Name: "Netflix", Amount: core.Money{Cents: 1599}, Category: "4", Date: date, Monthly: true,
		})
		s.Require().NoError(err)
	}

	var out struct {
		Templates []core.Expense `json:"templates"`
	}
	s.do(http.MethodPost, "/api/recurring/dedupe", s.token, "", http.StatusOK, &out)
	s.Len(out.Templates, 1)
}

func (s *ServerSuite) TestOverview() {
	s.addExpense(`{"name":"Rent","amount":900,"category":"2","date":"2024-04-01","monthly":true}`)
	s.addExpense(`{"name":"Coffee","amount":"3.50","category":"1","date":"2024-04-03"}`)

	var ov core.MonthOverview
	s.do(http.MethodGet, "/api/overview", s.token, "", http.StatusOK, &ov)
	s.Equal(2024, ov.Year)
	s.Equal(4, ov.Month)
	s.Equal(int64(90350), ov.Total.Cents)
	s.Equal(int64(90000), ov.Recurring.Cents)
	s.Equal(2, ov.Count)

	s.do(http.MethodGet, "/api/overview?year=2024&month=3", s.token, "", http.StatusOK, &ov)
	s.Zero(ov.Count)

	s.do(http.MethodGet, "/api/overview?month=13", s.token, "", http.StatusBadRequest, nil)
	s.do(http.MethodGet, "/api/overview?year=abc", s.token, "", http.StatusBadRequest, nil)
}

func (s *ServerSuite) TestCategories() {
	var defaults []core.Category
	s.do(http.MethodGet, "/api/categories", s.token, "", http.StatusOK, &defaults)
	s.Require().NotEmpty(defaults)

	var c core.Category
	s.do(http.MethodPost, "/api/categories", s.token, `{"name":"Pets","icon":"paw"}`, http.StatusCreated, &c)
	s.True(c.Custom)
	s.NotEmpty(c.ID)

	s.do(http.MethodPost, "/api/categories", s.token, `{"name":"Boats","icon":"anchor-emoji"}`, http.StatusUnprocessableEntity, nil)

	var all []core.Category
	s.do(http.MethodGet, "/api/categories", s.token, "", http.StatusOK, &all)
	s.Len(all, len(defaults)+1)

	s.do(http.MethodDelete, "/api/categories/"+c.ID, s.token, "", http.StatusNoContent, nil)
	s.do(http.MethodGet, "/api/categories", s.token, "", http.StatusOK, &all)
	s.Len(all, len(defaults))
}

func (s *ServerSuite) TestPreferences() {
	var p core.Preferences
	s.do(http.MethodPut, "/api/preferences", s.token, `{"displayCurrency":"eur","rollForwardReminder":true}`, http.StatusOK, &p)
	s.Equal("EUR", p.DisplayCurrency)

	var got core.Preferences
	s.do(http.MethodGet, "/api/preferences", s.token, "", http.StatusOK, &got)
	s.Equal(p, got)

	s.do(http.MethodPut, "/api/preferences", s.token, `{"displayCurrency":"euros"}`, http.StatusUnprocessableEntity, nil)
}

func (s *ServerSuite) TestConvert() {
	var out struct {
		From      string `json:"from"`
		To        string `json:"to"`
		Converted string `json:"converted"`
	}
	s.do(http.MethodGet, "/api/convert?from=EUR&amount=12.50", s.token, "", http.StatusOK, &out)
	s.Equal("EUR", out.From)
	s.Equal("USD", out.To)
	s.Equal("13.75", out.Converted)

	s.do(http.MethodGet, "/api/convert?from=EUR&to=GBP&amount=100", s.token, "", http.StatusOK, &out)
	s.Equal("85", out.Converted)

	s.do(http.MethodGet, "/api/convert?from=EUR&amount=ten", s.token, "", http.StatusBadRequest, nil)
	s.do(http.MethodGet, "/api/convert?from=E&amount=1", s.token, "", http.StatusUnprocessableEntity, nil)
	s.do(http.MethodGet, "/api/convert?from=JPY&amount=1", s.token, "", http.StatusBadGateway, nil)
}

func (s *ServerSuite) TestLogout() {
	s.do(http.MethodPost, "/api/logout", s.token, "", http.StatusNoContent, nil)
	s.do(http.MethodGet, "/api/expenses", s.token, "", http.StatusUnauthorized, nil)
	s.do(http.MethodPost, "/api/logout", s.token, "", http.StatusUnauthorized, nil)
	s.do(http.MethodPost, "/api/logout", "", "", http.StatusUnauthorized, nil)
}

func (s *ServerSuite) TestEventStream() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ts.URL+"/api/events", nil)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := s.ts.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("text/event-stream", resp.Header.Get("Content-Type"))

	snapshots := make(chan events.Snapshot, 8)
	go readSnapshots(resp.Body, snapshots)

	first := nextSnapshot(s.T(), snapshots)
	s.Empty(first.Expenses)

	s.addExpense(`{"name":"Coffee","amount":"3.50","category":"1"}`)

	next := nextSnapshot(s.T(), snapshots)
	s.Require().Len(next.Expenses, 1)
	s.Equal("Coffee", next.Expenses[0].Name)
}

func readSnapshots(r io.Reader, out chan<- events.Snapshot) {
	defer close(out)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	event := ""
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && event == "snapshot":
			var snap events.Snapshot
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap); err == nil {
				out <- snap
			}
		case line == "":
			event = ""
		}
	}
}

func nextSnapshot(t *testing.T, ch <-chan events.Snapshot) events.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "stream closed")
		return snap
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no snapshot within 2s")
		return events.Snapshot{}
	}
}

func TestRateLimitedRoutes(t *testing.T) {
	b, err := backend.NewFactory(nil).CreateBackend(context.Background(), backend.Config{Type: backend.MemoryBackend})
	require.NoError(t, err)
	defer b.Close()

	srv, err := NewServer(":0", b, Options{RateLimitPerMinute: 2})
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	login := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString(`{"email":"x@example.com","password":"whatever1"}`))
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, req)
		return rec
	}
	assert.Equal(t, http.StatusUnauthorized, login().Code)
	assert.Equal(t, http.StatusUnauthorized, login().Code)

	rec := login()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrEmptyName, http.StatusUnprocessableEntity},
		{core.ErrDuplicateExpense, http.StatusConflict},
		{core.ErrNotRecurring, http.StatusConflict},
		{core.ErrNotFound, http.StatusNotFound},
		{errBadQuery, http.StatusBadRequest},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestParseMonthParams(t *testing.T) {
	now := time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)
	r := httptest.NewRequest(http.MethodGet, "/api/overview", nil)
	p, err := parseMonthParams(r, now)
	require.NoError(t, err)
	assert.Equal(t, MonthParams{Year: 2024, Month: 2}, p)

	r = httptest.NewRequest(http.MethodGet, "/api/overview?year=2023&month=12", nil)
	p, err = parseMonthParams(r, now)
	require.NoError(t, err)
	assert.Equal(t, MonthParams{Year: 2023, Month: 12}, p)
}
