package crud

import (
	"errors"
	"reflect"
	"testing"

	"github.com/deppfellow/erp-crud/internal/row"
)

func testTable(tb testing.TB, spec TableSpec) Table {
	tb.Helper()
	reg, err := NewRegistry(spec)
	if err != nil {
		tb.Fatalf("NewRegistry: %v", err)
	}
	t, err := reg.Validate(spec.Name)
	if err != nil {
		tb.Fatalf("Validate: %v", err)
	}
	return t
}

func TestBuildStatements(t *testing.T) {
	t.Parallel()

	course := testTable(t, TableSpec{Name: "course", PrimaryKey: "course_id"})
	bare := testTable(t, TableSpec{Name: "library"})

	tests := []struct {
		name     string
		builder  Builder
		dialect  Dialect
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "page ordered by primary key",
			builder:  SelectPage{Table: course, Limit: 10, Offset: 20},
			dialect:  Postgres,
			wantSQL:  `SELECT * FROM "course" ORDER BY "course_id" LIMIT $1 OFFSET $2`,
			wantArgs: []any{int64(10), int64(20)},
		},
		{
			name:     "page with explicit order",
			builder:  SelectPage{Table: course, OrderBy: "course_name", Limit: 5},
			dialect:  Postgres,
			wantSQL:  `SELECT * FROM "course" ORDER BY "course_name" LIMIT $1 OFFSET $2`,
			wantArgs: []any{int64(5), int64(0)},
		},
		{
			name:     "page without known key",
			builder:  SelectPage{Table: bare, Limit: 100},
			dialect:  SQLite(true),
			wantSQL:  `SELECT * FROM "library" ORDER BY 1 LIMIT ? OFFSET ?`,
			wantArgs: []any{int64(100), int64(0)},
		},
		{
			name:     "select one",
			builder:  SelectOne{Table: course, ID: row.Int(7)},
			dialect:  Postgres,
			wantSQL:  `SELECT * FROM "course" WHERE "course_id" = $1`,
			wantArgs: []any{int64(7)},
		},
		{
			name:     "select by rowid",
			builder:  SelectRowID{Table: bare, RowID: 3},
			dialect:  SQLite(false),
			wantSQL:  `SELECT * FROM "library" WHERE rowid = ?`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "select one by other key",
			builder:  SelectOne{Table: course, Key: "course_code", ID: row.Text("CS101")},
			dialect:  Postgres,
			wantSQL:  `SELECT * FROM "course" WHERE "course_code" = $1`,
			wantArgs: []any{"CS101"},
		},
		{
			name: "insert",
			builder: Insert{Table: course, Row: row.New().
				Set("course_name", row.Text("Databases")).
				Set("dept_id", row.Int(2))},
			dialect:  Postgres,
			wantSQL:  `INSERT INTO "course" ("course_name", "dept_id") VALUES ($1, $2) RETURNING *`,
			wantArgs: []any{"Databases", int64(2)},
		},
		{
			name:     "insert defaults",
			builder:  Insert{Table: course, Row: row.New()},
			dialect:  Postgres,
			wantSQL:  `INSERT INTO "course" DEFAULT VALUES RETURNING *`,
			wantArgs: nil,
		},
		{
			name: "insert without returning",
			builder: Insert{Table: course, Row: row.New().
				Set("course_name", row.Text("Databases"))},
			dialect:  SQLite(false),
			wantSQL:  `INSERT INTO "course" ("course_name") VALUES (?)`,
			wantArgs: []any{"Databases"},
		},
		{
			name: "update",
			builder: Update{Table: course, ID: row.Int(3), Row: row.New().
				Set("course_name", row.Text("Networks")).
				Set("fees", row.Null())},
			dialect:  Postgres,
			wantSQL:  `UPDATE "course" SET "course_name" = $1, "fees" = $2 WHERE "course_id" = $3 RETURNING *`,
			wantArgs: []any{"Networks", nil, int64(3)},
		},
		{
			name:     "delete",
			builder:  Delete{Table: course, ID: row.Int(9)},
			dialect:  SQLite(true),
			wantSQL:  `DELETE FROM "course" WHERE "course_id" = ? RETURNING *`,
			wantArgs: []any{int64(9)},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := tc.builder.Build(tc.dialect)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if got.SQL != tc.wantSQL {
				t.Fatalf("SQL\n got %s\nwant %s", got.SQL, tc.wantSQL)
			}
			if !reflect.DeepEqual(got.Args, tc.wantArgs) {
				t.Fatalf("args = %#v, want %#v", got.Args, tc.wantArgs)
			}
		})
	}
}

func TestBuildRejectsUnsafeInput(t *testing.T) {
	t.Parallel()

	course := testTable(t, TableSpec{Name: "course", PrimaryKey: "course_id"})
	bare := testTable(t, TableSpec{Name: "library"})

	tests := []struct {
		name    string
		builder Builder
		want    error
	}{
		{"order by injection", SelectPage{Table: course, OrderBy: "1; DROP TABLE course", Limit: 1}, ErrInvalidIdentifier},
		{"negative limit", SelectPage{Table: course, Limit: -1}, ErrInvalidPage},
		{"negative offset", SelectPage{Table: course, Limit: 1, Offset: -1}, ErrInvalidPage},
		{"bad key", SelectOne{Table: course, Key: "course_id OR 1=1", ID: row.Int(1)}, ErrInvalidIdentifier},
		{"missing key", SelectOne{Table: bare, ID: row.Int(1)}, ErrInvalidIdentifier},
		{"bad insert column", Insert{Table: course, Row: row.New().Set(`name") VALUES (1); --`, row.Int(1))}, ErrInvalidIdentifier},
		{"reserved column", Insert{Table: course, Row: row.New().Set("select", row.Int(1))}, ErrInvalidIdentifier},
		{"empty update", Update{Table: course, ID: row.Int(1), Row: row.New()}, ErrEmptyRow},
		{"bad update column", Update{Table: course, ID: row.Int(1), Row: row.New().Set("a b", row.Int(1))}, ErrInvalidIdentifier},
		{"delete without key", Delete{Table: bare, ID: row.Int(1)}, ErrInvalidIdentifier},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := tc.builder.Build(Postgres)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Build err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestBuildOtherDialects(t *testing.T) {
	t.Parallel()

	course := testTable(t, TableSpec{Name: "course", PrimaryKey: "course_id"})
	named := row.New().Set("course_name", row.Text("Databases"))

	tests := []struct {
		name    string
		builder Builder
		dialect Dialect
		wantSQL string
	}{
		{"mysql page", SelectPage{Table: course, Limit: 10}, MySQL,
			"SELECT * FROM `course` ORDER BY `course_id` LIMIT ? OFFSET ?"},
		{"mysql insert", Insert{Table: course, Row: named}, MySQL,
			"INSERT INTO `course` (`course_name`) VALUES (?)"},
		{"mysql insert defaults", Insert{Table: course, Row: row.New()}, MySQL,
			"INSERT INTO `course` () VALUES ()"},
		{"sqlserver page", SelectPage{Table: course, Limit: 10}, SQLServer,
			"SELECT * FROM [course] ORDER BY [course_id] OFFSET @p2 ROWS FETCH NEXT @p1 ROWS ONLY"},
		{"sqlserver insert", Insert{Table: course, Row: named}, SQLServer,
			"INSERT INTO [course] ([course_name]) OUTPUT INSERTED.* VALUES (@p1)"},
		{"sqlserver insert defaults", Insert{Table: course, Row: row.New()}, SQLServer,
			"INSERT INTO [course] OUTPUT INSERTED.* DEFAULT VALUES"},
		{"sqlserver update", Update{Table: course, ID: row.Int(1), Row: named}, SQLServer,
			"UPDATE [course] SET [course_name] = @p1 OUTPUT INSERTED.* WHERE [course_id] = @p2"},
		{"sqlserver delete", Delete{Table: course, ID: row.Int(1)}, SQLServer,
			"DELETE FROM [course] OUTPUT DELETED.* WHERE [course_id] = @p1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := tc.builder.Build(tc.dialect)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if got.SQL != tc.wantSQL {
				t.Fatalf("SQL\n got %s\nwant %s", got.SQL, tc.wantSQL)
			}
		})
	}
}

func TestQuoteIdentEscapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dialect Dialect
		want    string
	}{
		{Postgres, `"we""ird"`},
		{SQLite(true), `"we""ird"`},
		{MySQL, "`we\"ird`"},
		{SQLServer, `[we"ird]`},
	}
	for _, tc := range tests {
		if got := tc.dialect.QuoteIdent(`we"ird`); got != tc.want {
			t.Errorf("%s QuoteIdent = %s, want %s", tc.dialect.Name(), got, tc.want)
		}
	}
}

func TestDialectByName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"postgres", "sqlite", "mysql", "sqlserver", "MSSQL"} {
		if _, ok := DialectByName(name, true); !ok {
			t.Errorf("DialectByName(%q) not found", name)
		}
	}
	if _, ok := DialectByName("oracle", true); ok {
		t.Error("DialectByName(oracle) should not resolve")
	}
}
