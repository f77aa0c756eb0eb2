// Package pagination implements the shared offset paging used by every list
// endpoint: page/per_page params, a per-entity sort whitelist, and totals
// computed before the page is sliced.
package pagination

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"review_platform/platform/schema"
	"review_platform/utils"

	"gorm.io/gorm"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

type Params struct {
	Page       int
	PerPage    int
	SortField  string
	SortOrder  string
	SearchTerm string
}

// ParseParams reads page, per_page, sort_field, sort_order, and search_term
// from the query string. Absent values fall back to defaults; out of range
// values are clamped rather than rejected.
func ParseParams(r *http.Request) (Params, error) {
	page, err := utils.QueryParamInt(r, "page", 1)
	if err != nil {
		return Params{}, err
	}
	if page < 1 {
		page = 1
	}

	perPage, err := utils.QueryParamInt(r, "per_page", DefaultPerPage)
	if err != nil {
		return Params{}, err
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	order := strings.ToLower(r.URL.Query().Get("sort_order"))
	if order != "" && order != "asc" && order != "desc" {
		return Params{}, fmt.Errorf("invalid sort_order '%v', must be 'asc' or 'desc'", order)
	}

	return Params{
		Page:       page,
		PerPage:    perPage,
		SortField:  r.URL.Query().Get("sort_field"),
		SortOrder:  order,
		SearchTerm: r.URL.Query().Get("search_term"),
	}, nil
}

type Page[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"total_count"`
	TotalPages int   `json:"total_pages"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
}

// Whitelist maps the sort fields a caller may request to the columns they
// order by. A requested field outside the whitelist is rejected, the column
// side is never built from user input.
type Whitelist struct {
	Fields       map[string]string
	DefaultOrder string
}

func (w Whitelist) orderClause(params Params) (string, error) {
	if params.SortField == "" {
		return w.DefaultOrder, nil
	}

	column, ok := w.Fields[params.SortField]
	if !ok {
		return "", fmt.Errorf("cannot sort by field '%v'", params.SortField)
	}

	order := params.SortOrder
	if order == "" {
		order = "asc"
	}
	return fmt.Sprintf("%v %v", column, order), nil
}

// Paginate runs the count and the page query against an already filtered
// gorm query and fills a Page. The query must select rows scannable into T.
func Paginate[T any](query *gorm.DB, params Params, whitelist Whitelist) (Page[T], error) {
	orderBy, err := whitelist.orderClause(params)
	if err != nil {
		return Page[T]{}, err
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		slog.Error("sql error counting paginated rows", "error", err)
		return Page[T]{}, schema.ErrDbAccessFailed
	}

	items := make([]T, 0, params.PerPage)
	err = query.
		Order(orderBy).
		Offset((params.Page - 1) * params.PerPage).
		Limit(params.PerPage).
		Find(&items).Error
	if err != nil {
		slog.Error("sql error fetching paginated rows", "error", err)
		return Page[T]{}, schema.ErrDbAccessFailed
	}

	totalPages := int((total + int64(params.PerPage) - 1) / int64(params.PerPage))

	return Page[T]{
		Items:      items,
		TotalCount: total,
		TotalPages: totalPages,
		Page:       params.Page,
		PerPage:    params.PerPage,
	}, nil
}
