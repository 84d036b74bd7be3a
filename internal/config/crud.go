package config

import (
	"fmt"
	"strings"

	"github.com/deppfellow/erp-crud/internal/crud"
)

// CrudConfig configures the generic CRUD engine.
type CrudConfig struct {
	// AllowedTables lists "table" or "table:primary_key" entries. Only these
	// tables can be reached through the API.
	AllowedTables []string `koanf:"allowed_tables"`

	// DefaultLimit is used when a list request omits limit.
	DefaultLimit int `koanf:"default_limit" validate:"min=0"`

	// MaxLimit caps any requested page size.
	MaxLimit int `koanf:"max_limit" validate:"min=0"`

	// DisableReturning makes SQLite re-read written rows instead of using
	// RETURNING (needed below SQLite 3.35).
	DisableReturning bool `koanf:"disable_returning"`
}

// defaultAllowedTables is the college ERP schema the service was built for.
var defaultAllowedTables = []string{
	"admission:admission_id",
	"attendance:attendance_id",
	"book_issue:issue_id",
	"contact_details:contact_id",
	"course:course_id",
	"department:dept_id",
	"enrollment:enrollment_id",
	"exam:exam_id",
	"faculty:faculty_id",
	"fees:fee_id",
	"guardian:guardian_id",
	"hostel:hostel_id",
	"hostel_allocation:allocation_id",
	"library:book_id",
	"payment:payment_id",
	"result:result_id",
	"role:role_id",
	"room:room_id",
	"student:student_id",
	"subject:subject_code",
	"user_role:user_role_id",
	"usr:user_id",
}

// DefaultCrudConfig is used when Config.Crud is nil.
func DefaultCrudConfig() *CrudConfig {
	tables := make([]string, len(defaultAllowedTables))
	copy(tables, defaultAllowedTables)
	return &CrudConfig{
		AllowedTables: tables,
		DefaultLimit:  crud.DefaultLimit,
		MaxLimit:      crud.MaxLimit,
	}
}

func (c *CrudConfig) applyDefaults() {
	if len(c.AllowedTables) == 0 {
		c.AllowedTables = DefaultCrudConfig().AllowedTables
	}
	if c.DefaultLimit == 0 {
		c.DefaultLimit = crud.DefaultLimit
	}
	if c.MaxLimit == 0 {
		c.MaxLimit = crud.MaxLimit
	}
}

// Validate checks limits and that every allowlist entry parses.
func (c *CrudConfig) Validate() error {
	if c.DefaultLimit > c.MaxLimit {
		return fmt.Errorf("default_limit %d exceeds max_limit %d", c.DefaultLimit, c.MaxLimit)
	}
	_, err := c.Registry()
	return err
}

// TableSpecs parses AllowedTables.
func (c *CrudConfig) TableSpecs() ([]crud.TableSpec, error) {
	specs := make([]crud.TableSpec, 0, len(c.AllowedTables))
	for _, entry := range c.AllowedTables {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, pk, _ := strings.Cut(entry, ":")
		if strings.Contains(pk, ":") {
			return nil, fmt.Errorf("allowed_tables entry %q: expected table[:primary_key]", entry)
		}
		specs = append(specs, crud.TableSpec{
			Name:       strings.TrimSpace(name),
			PrimaryKey: strings.TrimSpace(pk),
		})
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("allowed_tables is empty")
	}
	return specs, nil
}

// Registry builds the engine allowlist from AllowedTables.
func (c *CrudConfig) Registry() (*crud.Registry, error) {
	specs, err := c.TableSpecs()
	if err != nil {
		return nil, err
	}
	return crud.NewRegistry(specs...)
}
