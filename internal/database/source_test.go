package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/deppfellow/erp-crud/internal/config"
	"github.com/deppfellow/erp-crud/internal/crud"
	"github.com/deppfellow/erp-crud/internal/row"
)

const courseSchema = `
CREATE TABLE department (
	dept_id   INTEGER PRIMARY KEY AUTOINCREMENT,
	dept_name TEXT NOT NULL
);
CREATE TABLE course (
	course_id          INTEGER PRIMARY KEY AUTOINCREMENT,
	course_name        TEXT NOT NULL,
	course_code        TEXT UNIQUE,
	course_description TEXT,
	dept_id            INTEGER REFERENCES department(dept_id),
	duration           INTEGER,
	fees               REAL,
	syllabus           BLOB
);
INSERT INTO department (dept_name) VALUES ('Computer Science'), ('Mathematics');
`

func openTestDB(tb testing.TB) *sql.DB {
	tb.Helper()
	db, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		tb.Fatalf("OpenSQLite: %v", err)
	}
	tb.Cleanup(func() { db.Close() })

	if _, err := db.Exec(courseSchema); err != nil {
		tb.Fatalf("schema: %v", err)
	}
	return db
}

func newSQLiteEngine(tb testing.TB, returning bool) (*crud.Engine, *sql.DB) {
	tb.Helper()
	db := openTestDB(tb)
	reg := crud.MustRegistry(
		crud.TableSpec{Name: "course", PrimaryKey: "course_id"},
		crud.TableSpec{Name: "department", PrimaryKey: "dept_id"},
	)
	return crud.NewEngine(reg, NewSQLSource(db, crud.SQLite(returning))), db
}

func mustGet(tb testing.TB, r *row.Row, col string) row.Value {
	tb.Helper()
	v, ok := r.Get(col)
	if !ok {
		tb.Fatalf("column %q missing from %v", col, r.Columns())
	}
	return v
}

func TestSQLiteEngineLifecycle(t *testing.T) {
	t.Parallel()

	for _, returning := range []bool{true, false} {
		name := "returning"
		if !returning {
			name = "read back"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			e, db := newSQLiteEngine(t, returning)

			created, err := e.Create(ctx, "course", row.New().
				Set("course_name", row.Text("Operating Systems")).
				Set("course_code", row.Text("CS301")).
				Set("dept_id", row.Int(1)).
				Set("fees", row.Float(1500.5)))
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			id := mustGet(t, created, "course_id")
			if id.Kind() != row.KindInt {
				t.Fatalf("course_id = %s(%v), want server-assigned int", id.Kind(), id)
			}
			if got := created.Columns(); len(got) != 8 || got[0] != "course_id" {
				t.Fatalf("created columns = %v", got)
			}
			if v := mustGet(t, created, "course_description"); !v.IsNull() {
				t.Fatalf("course_description = %v, want null", v)
			}

			got, err := e.Get(ctx, "course", "", id)
			if err != nil || got == nil {
				t.Fatalf("Get = %v, %v", got, err)
			}
			if v := mustGet(t, got, "fees"); !v.Equal(row.Float(1500.5)) {
				t.Fatalf("fees = %v", v)
			}

			byCode, err := e.Get(ctx, "COURSE", "course_code", row.Text("CS301"))
			if err != nil || byCode == nil {
				t.Fatalf("Get by code = %v, %v", byCode, err)
			}

			updated, err := e.Update(ctx, "course", "", id, row.New().
				Set("course_name", row.Text("Advanced Operating Systems")).
				Set("duration", row.Int(6)))
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if v := mustGet(t, updated, "course_name"); !v.Equal(row.Text("Advanced Operating Systems")) {
				t.Fatalf("course_name = %v", v)
			}
			if v := mustGet(t, updated, "course_code"); !v.Equal(row.Text("CS301")) {
				t.Fatalf("untouched course_code changed to %v", v)
			}

			removed, err := e.Remove(ctx, "course", "", id)
			if err != nil || removed == nil {
				t.Fatalf("Remove = %v, %v", removed, err)
			}
			if v := mustGet(t, removed, "duration"); !v.Equal(row.Int(6)) {
				t.Fatalf("removed duration = %v", v)
			}

			gone, err := e.Get(ctx, "course", "", id)
			if err != nil || gone != nil {
				t.Fatalf("Get after remove = %v, %v", gone, err)
			}

			if inUse := db.Stats().InUse; inUse != 0 {
				t.Fatalf("%d connections still checked out", inUse)
			}
		})
	}
}

func TestSQLiteEngineMissingRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for _, returning := range []bool{true, false} {
		e, _ := newSQLiteEngine(t, returning)

		if r, err := e.Update(ctx, "course", "", row.Int(999), row.New().Set("course_name", row.Text("x"))); err != nil || r != nil {
			t.Fatalf("returning=%v Update missing = %v, %v", returning, r, err)
		}
		if r, err := e.Remove(ctx, "course", "", row.Int(999)); err != nil || r != nil {
			t.Fatalf("returning=%v Remove missing = %v, %v", returning, r, err)
		}
	}
}

func TestSQLiteEngineListPaging(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newSQLiteEngine(t, true)

	for _, name := range []string{"Calculus", "Algebra", "Topology", "Geometry", "Statistics"} {
		if _, err := e.Create(ctx, "course", row.New().Set("course_name", row.Text(name)).Set("dept_id", row.Int(2))); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}

	page, err := e.List(ctx, "course", crud.Page{Limit: crud.Limit(2), Offset: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("got %d rows, want 2", len(page))
	}
	if v := mustGet(t, page[0], "course_name"); !v.Equal(row.Text("Algebra")) {
		t.Fatalf("first row of page = %v, want Algebra (ordered by course_id)", v)
	}

	byName, err := e.List(ctx, "course", crud.Page{OrderBy: "course_name"})
	if err != nil {
		t.Fatalf("List by name: %v", err)
	}
	if len(byName) != 5 || !mustGet(t, byName[0], "course_name").Equal(row.Text("Algebra")) {
		t.Fatalf("ordered list = %d rows, first %v", len(byName), mustGet(t, byName[0], "course_name"))
	}

	past, err := e.List(ctx, "course", crud.Page{Offset: 50})
	if err != nil || len(past) != 0 {
		t.Fatalf("List past end = %v, %v", past, err)
	}

	// Every window returns min(k, max(0, n-o)) rows.
	const n = 5
	for k := 0; k <= n+1; k++ {
		for o := 0; o <= n+1; o++ {
			got, err := e.List(ctx, "course", crud.Page{Limit: crud.Limit(k), Offset: o})
			if err != nil {
				t.Fatalf("List(k=%d, o=%d): %v", k, o, err)
			}
			if want := min(k, max(0, n-o)); len(got) != want {
				t.Fatalf("List(k=%d, o=%d) = %d rows, want %d", k, o, len(got), want)
			}
		}
	}
}

func TestSQLiteEngineCreateDefaults(t *testing.T) {
	t.Parallel()

	e, _ := newSQLiteEngine(t, true)
	// course_name is NOT NULL, so an empty insert reaches the database and
	// fails there rather than being rejected up front.
	if _, err := e.Create(context.Background(), "course", row.New()); err == nil {
		t.Fatal("expected NOT NULL failure")
	}
}

func TestSQLiteEngineInjectionNeverReachesDatabase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, db := newSQLiteEngine(t, true)

	attempts := []func() error{
		func() error { _, err := e.List(ctx, "course; DROP TABLE course", crud.Page{}); return err },
		func() error { _, err := e.List(ctx, "course", crud.Page{OrderBy: "1; DROP TABLE course"}); return err },
		func() error {
			_, err := e.Create(ctx, "course", row.New().Set(`course_name") VALUES ('x'); DROP TABLE course; --`, row.Text("x")))
			return err
		},
		func() error { _, err := e.Remove(ctx, "course", "course_id OR 1=1", row.Int(1)); return err },
	}
	for i, attempt := range attempts {
		if err := attempt(); err == nil {
			t.Fatalf("attempt %d: expected rejection", i)
		}
	}

	var n int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE name = 'course'`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("course table gone: n=%d err=%v", n, err)
	}
}

func TestSQLiteEngineConstraintError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, db := newSQLiteEngine(t, true)

	in := row.New().Set("course_name", row.Text("Logic")).Set("course_code", row.Text("MA101"))
	if _, err := e.Create(ctx, "course", in); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := e.Create(ctx, "course", in)
	var oe *crud.OpError
	if !errors.As(err, &oe) || oe.Op != crud.OpCreate {
		t.Fatalf("duplicate Create err = %v, want OpError", err)
	}
	if db.Stats().InUse != 0 {
		t.Fatal("connection leaked after failed statement")
	}
}

func TestSQLiteBlobStaysBinary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newSQLiteEngine(t, true)

	created, err := e.Create(ctx, "course", row.New().
		Set("course_name", row.Text("Signals")).
		Set("syllabus", row.Bytes([]byte{0x00, 0xff})))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if v := mustGet(t, created, "syllabus"); v.Kind() != row.KindBytes {
		t.Fatalf("syllabus kind = %s", v.Kind())
	}
	if v := mustGet(t, created, "course_name"); v.Kind() != row.KindText {
		t.Fatalf("course_name kind = %s", v.Kind())
	}
}

func TestAcquireFailsOnClosedDB(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	db.Close()

	e := crud.NewEngine(crud.MustRegistry(crud.TableSpec{Name: "course", PrimaryKey: "course_id"}),
		NewSQLSource(db, crud.SQLite(true)))
	_, err := e.Get(context.Background(), "course", "", row.Int(1))
	if !errors.Is(err, crud.ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection", err)
	}
}

func TestOpenSQLRejectsBadInput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, err := OpenSQLite(ctx, " "); err == nil {
		t.Fatal("empty sqlite DSN accepted")
	}
	if _, err := OpenSQL(ctx, "oracle", "x", config.DatabaseConfig{}); err == nil {
		t.Fatal("unknown driver accepted")
	}
	if _, err := OpenSQL(ctx, "mysql", "not a dsn", config.DatabaseConfig{}); err == nil {
		t.Fatal("bad mysql DSN accepted")
	}
}

func TestSQLiteEngineCreateReadsBackGeneratedKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	if _, err := db.Exec(`CREATE TABLE voucher (
		voucher_code TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(8)))),
		amount       INTEGER NOT NULL
	)`); err != nil {
		t.Fatalf("schema: %v", err)
	}
	e := crud.NewEngine(crud.MustRegistry(crud.TableSpec{Name: "voucher", PrimaryKey: "voucher_code"}),
		NewSQLSource(db, crud.SQLite(false)))

	created, err := e.Create(ctx, "voucher", row.New().Set("amount", row.Int(5)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created == nil {
		t.Fatal("Create returned nil row")
	}
	code, ok := mustGet(t, created, "voucher_code").AsText()
	if !ok || len(code) != 16 {
		t.Fatalf("voucher_code = %v, want generated key", mustGet(t, created, "voucher_code"))
	}
	if !mustGet(t, created, "amount").Equal(row.Int(5)) {
		t.Fatalf("amount = %v", mustGet(t, created, "amount"))
	}

	got, err := e.Get(ctx, "voucher", "", row.Text(code))
	if err != nil || got == nil {
		t.Fatalf("Get(%s) = %v, %v", code, got, err)
	}
}

func TestSQLiteDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dsn  string
		want string
	}{
		{":memory:", ":memory:?_pragma=foreign_keys(1)"},
		{"erp.db", "erp.db?_pragma=foreign_keys(1)"},
		{"file:erp.db?mode=ro", "file:erp.db?mode=ro&_pragma=foreign_keys(1)"},
		{"erp.db?_pragma=foreign_keys(0)", "erp.db?_pragma=foreign_keys(0)"},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			t.Parallel()
			if got := sqliteDSN(tt.dsn); got != tt.want {
				t.Fatalf("sqliteDSN(%q) = %q, want %q", tt.dsn, got, tt.want)
			}
		})
	}
}

func TestSQLiteForeignKeysOnEveryConnection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := OpenSQL(ctx, "sqlite", filepath.Join(t.TempDir(), "erp.db"), config.DatabaseConfig{MaxOpenConns: 3})
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Hold every connection so each check runs on a different one.
	conns := make([]*sql.Conn, 3)
	for i := range conns {
		c, err := db.Conn(ctx)
		if err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		defer c.Close()
		conns[i] = c
	}

	for i, c := range conns {
		var on int
		if err := c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on); err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		if on != 1 {
			t.Fatalf("conn %d: foreign_keys = %d, want 1", i, on)
		}
	}
}

func TestMySQLConfigCountsMatchedRows(t *testing.T) {
	t.Parallel()

	cfg, err := mysqlConfig("erp:secret@tcp(localhost:3306)/erp?parseTime=true")
	if err != nil {
		t.Fatalf("mysqlConfig: %v", err)
	}
	if !cfg.ClientFoundRows {
		t.Fatal("ClientFoundRows not set")
	}
	if !cfg.ParseTime || cfg.DBName != "erp" {
		t.Fatalf("DSN settings lost: %+v", cfg)
	}
	if _, err := mysqlConfig("not a dsn"); err == nil {
		t.Fatal("bad DSN accepted")
	}
}
