package router

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/deppfellow/erp-crud/internal/config"
	"github.com/deppfellow/erp-crud/internal/crud"
	"github.com/deppfellow/erp-crud/internal/database"
	"github.com/deppfellow/erp-crud/internal/errs"
	"github.com/deppfellow/erp-crud/internal/handler"
	"github.com/deppfellow/erp-crud/internal/lib/hub"
	"github.com/deppfellow/erp-crud/internal/repository"
	"github.com/deppfellow/erp-crud/internal/server"
	"github.com/deppfellow/erp-crud/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const courseSchema = `CREATE TABLE course (
	course_id   INTEGER PRIMARY KEY AUTOINCREMENT,
	course_name TEXT NOT NULL,
	course_code TEXT UNIQUE,
	credits     INTEGER
)`

func newTestRouter(t *testing.T, opts ...func(*config.Config)) (*echo.Echo, *server.Server) {
	t.Helper()

	db, err := database.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(courseSchema); err != nil {
		t.Fatalf("schema: %v", err)
	}

	logger := zerolog.Nop()
	s := &server.Server{
		Config: &config.Config{
			Primary: config.Primary{Env: "test"},
			Server:  config.ServerConfig{Port: "0", CORSAllowedOrigins: []string{"*"}},
			Crud: &config.CrudConfig{
				AllowedTables: []string{"course:course_id"},
				DefaultLimit:  crud.DefaultLimit,
				MaxLimit:      crud.MaxLimit,
			},
		},
		Logger: &logger,
		DB: &database.Database{
			Driver: "sqlite",
			SQL:    db,
			Source: database.NewSQLSource(db, crud.SQLite(true)),
		},
		Hub: hub.New(nil, &logger),
	}
	for _, opt := range opts {
		opt(s.Config)
	}

	repos, err := repository.NewRepositories(s)
	if err != nil {
		t.Fatalf("NewRepositories: %v", err)
	}
	services, err := service.NewService(s, repos)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	return NewRouter(s, handler.NewHandlers(s, services), services), s
}

func do(t *testing.T, e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestCrudRoutesLifecycle(t *testing.T) {
	t.Parallel()

	e, _ := newTestRouter(t)

	rec := do(t, e, http.MethodPost, "/api/v1/crud/course", `{"course_name":"Logic","course_code":"MA101","credits":4}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	created := decode[map[string]any](t, rec)
	if created["course_id"] != float64(1) || created["course_name"] != "Logic" {
		t.Fatalf("created = %v", created)
	}

	rec = do(t, e, http.MethodGet, "/api/v1/crud/course/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d %s", rec.Code, rec.Body)
	}
	if got := decode[map[string]any](t, rec); got["course_code"] != "MA101" {
		t.Fatalf("get = %v", got)
	}

	rec = do(t, e, http.MethodPatch, "/api/v1/crud/course/1", `{"course_name":"Formal Logic"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", rec.Code, rec.Body)
	}
	if got := decode[map[string]any](t, rec); got["course_name"] != "Formal Logic" || got["credits"] != float64(4) {
		t.Fatalf("patch = %v", got)
	}

	rec = do(t, e, http.MethodPut, "/api/v1/crud/course/MA101?pk=course_code", `{"credits":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put by course_code: %d %s", rec.Code, rec.Body)
	}
	if got := decode[map[string]any](t, rec); got["credits"] != float64(3) {
		t.Fatalf("put = %v", got)
	}

	rec = do(t, e, http.MethodGet, "/api/v1/crud/course", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body)
	}
	if rows := decode[[]map[string]any](t, rec); len(rows) != 1 {
		t.Fatalf("list = %v", rows)
	}

	rec = do(t, e, http.MethodDelete, "/api/v1/crud/course/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body)
	}
	if got := decode[map[string]any](t, rec); got["course_name"] != "Formal Logic" {
		t.Fatalf("deleted row = %v", got)
	}

	rec = do(t, e, http.MethodGet, "/api/v1/crud/course/1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d %s", rec.Code, rec.Body)
	}
	if body := decode[errs.HTTPError](t, rec); body.Code != "ROW_NOT_FOUND" {
		t.Fatalf("not found body = %+v", body)
	}
}

func TestCrudRoutesListLimit(t *testing.T) {
	t.Parallel()

	e, _ := newTestRouter(t)

	for _, name := range []string{"Logic", "Algebra", "Topology"} {
		rec := do(t, e, http.MethodPost, "/api/v1/crud/course", `{"course_name":"`+name+`"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %s: %d %s", name, rec.Code, rec.Body)
		}
	}

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"omitted", "/api/v1/crud/course", 3},
		{"zero", "/api/v1/crud/course?limit=0", 0},
		{"two", "/api/v1/crud/course?limit=2", 2},
		{"zero with offset", "/api/v1/crud/course?limit=0&offset=1", 0},
		{"offset past end", "/api/v1/crud/course?limit=2&offset=5", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, e, http.MethodGet, tt.target, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("list: %d %s", rec.Code, rec.Body)
			}
			if body := strings.TrimSpace(rec.Body.String()); tt.want == 0 && body != "[]" {
				t.Fatalf("body = %s, want []", body)
			}
			if rows := decode[[]map[string]any](t, rec); len(rows) != tt.want {
				t.Fatalf("got %d rows, want %d", len(rows), tt.want)
			}
		})
	}
}

func TestCrudRoutesTables(t *testing.T) {
	t.Parallel()

	e, _ := newTestRouter(t)

	rec := do(t, e, http.MethodGet, "/api/v1/crud", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("tables: %d %s", rec.Code, rec.Body)
	}
	got := decode[handler.TablesResponse](t, rec)
	if !slices.Equal(got.Tables, []string{"course"}) {
		t.Fatalf("tables = %v", got.Tables)
	}
}

func TestCrudRoutesRejections(t *testing.T) {
	t.Parallel()

	e, _ := newTestRouter(t)

	if rec := do(t, e, http.MethodPost, "/api/v1/crud/course", `{"course_name":"Logic","course_code":"MA101"}`); rec.Code != http.StatusCreated {
		t.Fatalf("seed: %d %s", rec.Code, rec.Body)
	}

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{"table not allowed", http.MethodGet, "/api/v1/crud/pg_shadow", "", http.StatusBadRequest, "TABLE_NOT_ALLOWED"},
		{"write to table not allowed", http.MethodPost, "/api/v1/crud/usr", `{"name":"x"}`, http.StatusBadRequest, "TABLE_NOT_ALLOWED"},
		{"bad column in body", http.MethodPost, "/api/v1/crud/course", `{"course_name; DROP TABLE course":"x"}`, http.StatusBadRequest, "INVALID_IDENTIFIER"},
		{"bad order_by", http.MethodGet, "/api/v1/crud/course?order_by=1x", "", http.StatusBadRequest, ""},
		{"negative limit", http.MethodGet, "/api/v1/crud/course?limit=-1", "", http.StatusBadRequest, ""},
		{"bad pk", http.MethodGet, "/api/v1/crud/course/1?pk=course-id", "", http.StatusBadRequest, ""},
		{"duplicate", http.MethodPost, "/api/v1/crud/course", `{"course_name":"Logic","course_code":"MA101"}`, http.StatusBadRequest, "COURSE_ALREADY_EXISTS"},
		{"missing not null", http.MethodPost, "/api/v1/crud/course", `{"course_code":"MA102"}`, http.StatusBadRequest, "COURSE_REQUIRED"},
		{"empty update", http.MethodPut, "/api/v1/crud/course/1", `{}`, http.StatusBadRequest, "EMPTY_ROW"},
		{"malformed body", http.MethodPost, "/api/v1/crud/course", `[1,2]`, http.StatusBadRequest, ""},
		{"update missing row", http.MethodPatch, "/api/v1/crud/course/99", `{"credits":1}`, http.StatusNotFound, "ROW_NOT_FOUND"},
		{"delete missing row", http.MethodDelete, "/api/v1/crud/course/99", "", http.StatusNotFound, "ROW_NOT_FOUND"},
		{"unknown route", http.MethodGet, "/api/v2/nothing", "", http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, e, tc.method, tc.target, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.status, rec.Body)
			}
			if tc.code == "" {
				return
			}
			if body := decode[errs.HTTPError](t, rec); body.Code != tc.code {
				t.Fatalf("code = %s, want %s", body.Code, tc.code)
			}
		})
	}

	// Nothing above may have changed the table.
	rows := decode[[]map[string]any](t, do(t, e, http.MethodGet, "/api/v1/crud/course", ""))
	if len(rows) != 1 {
		t.Fatalf("rows after rejections = %v", rows)
	}
}

func TestStatusRoute(t *testing.T) {
	t.Parallel()

	e, _ := newTestRouter(t)

	rec := do(t, e, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d %s", rec.Code, rec.Body)
	}
	got := decode[handler.HealthResponse](t, rec)
	if got.Status != "healthy" || got.Driver != "sqlite" || got.Checks["database"].Status != "healthy" {
		t.Fatalf("health = %+v", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}

func TestStatusRouteReportsDatabaseDown(t *testing.T) {
	t.Parallel()

	e, s := newTestRouter(t)
	_ = s.DB.SQL.Close()

	rec := do(t, e, http.MethodGet, "/status", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: %d %s", rec.Code, rec.Body)
	}
}

func TestDashboardStreamDeliversWrites(t *testing.T) {
	t.Parallel()

	e, s := newTestRouter(t)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/dashboard/stream?table=course", nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer res.Body.Close()

	if ct := res.Header.Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	for s.Hub.Subscribers() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("stream never subscribed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	post, err := http.Post(srv.URL+"/api/v1/crud/course", echo.MIMEApplicationJSON, strings.NewReader(`{"course_name":"Logic"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", post.StatusCode)
	}

	scanner := bufio.NewScanner(res.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			event = name
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if event != "row_changed" {
			t.Fatalf("event name = %q", event)
		}
		var ev hub.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("decode event %q: %v", data, err)
		}
		if ev.Table != "course" || ev.Operation != string(crud.OpCreate) {
			t.Fatalf("event = %+v", ev)
		}
		if name, _ := ev.Row.Get("course_name"); name.String() != "Logic" {
			t.Fatalf("event row = %v", ev.Row)
		}
		return
	}
	t.Fatalf("stream ended without an event: %v", scanner.Err())
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	t.Parallel()

	e, _ := newTestRouter(t, func(cfg *config.Config) {
		cfg.Auth.SecretKey = "sk_test_router"
	})

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"dashboard stream", "/api/dashboard/stream", http.StatusUnauthorized},
		{"crud tables", "/api/v1/crud", http.StatusUnauthorized},
		{"crud list", "/api/v1/crud/course", http.StatusUnauthorized},
		{"status stays open", "/status", http.StatusOK},
		{"version stays open", "/api/version", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, e, http.MethodGet, tt.target, "")
			if rec.Code != tt.want {
				t.Fatalf("GET %s: %d %s", tt.target, rec.Code, rec.Body)
			}
			if tt.want == http.StatusUnauthorized && strings.Contains(rec.Header().Get(echo.HeaderContentType), "event-stream") {
				t.Fatalf("stream opened without a session")
			}
		})
	}
}

func TestVersionRoute(t *testing.T) {
	t.Parallel()

	e, _ := newTestRouter(t)

	rec := do(t, e, http.MethodGet, "/api/version", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("version: %d %s", rec.Code, rec.Body)
	}
	got := decode[handler.VersionResponse](t, rec)
	if got.Service != config.ServiceName || got.Version != handler.Version || got.Driver != "sqlite" || got.GoVersion == "" {
		t.Fatalf("version = %+v", got)
	}
}
