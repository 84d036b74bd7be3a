package handler

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/deppfellow/erp-crud/internal/crud"
	"github.com/deppfellow/erp-crud/internal/errs"
	"github.com/deppfellow/erp-crud/internal/row"
	"github.com/deppfellow/erp-crud/internal/server"
	"github.com/deppfellow/erp-crud/internal/service"
	"github.com/deppfellow/erp-crud/internal/validation"
	"github.com/labstack/echo/v4"
)

// CrudHandler serves the generic table routes under /api/v1/crud.
type CrudHandler struct {
	Handler
	crud *service.CrudService
}

func NewCrudHandler(s *server.Server, crudService *service.CrudService) *CrudHandler {
	return &CrudHandler{
		Handler: NewHandler(s),
		crud:    crudService,
	}
}

var codeRowNotFound = "ROW_NOT_FOUND"

type TablesRequest struct{}

func (r *TablesRequest) Validate() error { return nil }

type TablesResponse struct {
	Tables []string `json:"tables"`
}

// ListRequest is GET /:table?limit=&offset=&order_by=. An omitted limit
// means the configured default; limit=0 returns no rows.
type ListRequest struct {
	Table   string `param:"table" validate:"required"`
	Limit   *int   `query:"limit" validate:"omitempty,min=0"`
	Offset  int    `query:"offset" validate:"min=0"`
	OrderBy string `query:"order_by" validate:"omitempty,identifier"`
}

func (r *ListRequest) Validate() error { return validation.Struct(r) }

// RowRequest addresses one row: /:table/:id?pk=. An empty pk means the
// table's primary key.
type RowRequest struct {
	Table string `param:"table" validate:"required"`
	ID    string `param:"id" validate:"required"`
	PK    string `query:"pk" validate:"omitempty,identifier"`
}

func (r *RowRequest) Validate() error { return validation.Struct(r) }

// CreateRequest takes the whole JSON body as the row to insert.
type CreateRequest struct {
	Table string   `param:"table" validate:"required"`
	Row   *row.Row `json:"-"`
}

func (r *CreateRequest) Validate() error { return validation.Struct(r) }

func (r *CreateRequest) UnmarshalJSON(data []byte) error {
	r.Row = row.New()
	return json.Unmarshal(data, r.Row)
}

// UpdateRequest takes the JSON body as the columns to change.
type UpdateRequest struct {
	Table string   `param:"table" validate:"required"`
	ID    string   `param:"id" validate:"required"`
	PK    string   `query:"pk" validate:"omitempty,identifier"`
	Row   *row.Row `json:"-"`
}

func (r *UpdateRequest) Validate() error { return validation.Struct(r) }

func (r *UpdateRequest) UnmarshalJSON(data []byte) error {
	r.Row = row.New()
	return json.Unmarshal(data, r.Row)
}

// parseID turns a path id into a value. Canonical integers become Int so
// they compare as numbers; anything else, including "007", stays Text.
func parseID(s string) row.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return row.Int(n)
	}
	return row.Text(s)
}

func notFound(table, pk, id string) error {
	key := pk
	if key == "" {
		key = "primary key"
	}
	return errs.NewNotFoundError(fmt.Sprintf("No %s row with %s %s", table, key, id), true, &codeRowNotFound)
}

func (h *CrudHandler) Tables(c echo.Context, _ *TablesRequest) (*TablesResponse, error) {
	return &TablesResponse{Tables: h.crud.Tables()}, nil
}

func (h *CrudHandler) List(c echo.Context, req *ListRequest) ([]*row.Row, error) {
	return h.crud.List(c.Request().Context(), req.Table, crud.Page{
		Limit:   req.Limit,
		Offset:  req.Offset,
		OrderBy: req.OrderBy,
	})
}

func (h *CrudHandler) Get(c echo.Context, req *RowRequest) (*row.Row, error) {
	r, err := h.crud.Get(c.Request().Context(), req.Table, req.PK, parseID(req.ID))
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, notFound(req.Table, req.PK, req.ID)
	}
	return r, nil
}

func (h *CrudHandler) Create(c echo.Context, req *CreateRequest) (*row.Row, error) {
	in := req.Row
	if in == nil {
		in = row.New()
	}
	return h.crud.Create(c.Request().Context(), req.Table, in)
}

func (h *CrudHandler) Update(c echo.Context, req *UpdateRequest) (*row.Row, error) {
	r, err := h.crud.Update(c.Request().Context(), req.Table, req.PK, parseID(req.ID), req.Row)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, notFound(req.Table, req.PK, req.ID)
	}
	return r, nil
}

// Remove responds with the deleted row.
func (h *CrudHandler) Remove(c echo.Context, req *RowRequest) (*row.Row, error) {
	r, err := h.crud.Remove(c.Request().Context(), req.Table, req.PK, parseID(req.ID))
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, notFound(req.Table, req.PK, req.ID)
	}
	return r, nil
}
