package option

import (
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/creatorpay/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

type operatorOption struct {
	cond Condition
}

func (o operatorOption) Apply(stmt *gorm.DB) *gorm.DB {
	return stmt.Where(fmt.Sprintf("%s %s ?", o.cond.Field, o.cond.Operator), o.cond.Value)
}

func ApplyOperator(cond Condition) QueryOption {
	return operatorOption{cond: cond}
}

// QuerySortBy sorts by an allow-listed column, newest first by default.
type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

func WithQuerySortBy(sortBy, orderBy string, allow map[string]bool) QuerySortBy {
	return QuerySortBy{SortBy: sortBy, OrderBy: orderBy, Allow: allow}
}

type sortOption struct {
	sort QuerySortBy
}

func (o sortOption) Apply(stmt *gorm.DB) *gorm.DB {
	column := o.sort.SortBy
	if column == "" || !o.sort.Allow[column] {
		column = "created_at"
	}
	direction := strings.ToLower(o.sort.OrderBy)
	if direction != "asc" && direction != "desc" {
		direction = "desc"
	}
	return stmt.Order(fmt.Sprintf("%s %s, id %s", column, direction, direction))
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return sortOption{sort: sort}
}

type paginationOption struct {
	page pagination.Pagination
}

// Apply decodes the cursor token into a keyset filter and fetches one row
// beyond the page size so callers can detect another page.
func (o paginationOption) Apply(stmt *gorm.DB) *gorm.DB {
	pageSize := o.page.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	if o.page.PageToken != "" {
		if cursor, err := pagination.DecodeCursor(o.page.PageToken); err == nil && cursor != nil {
			if ts, terr := time.Parse(time.RFC3339Nano, cursor.CreatedAt); terr == nil {
				stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", ts, ts, cursor.ID)
			}
		}
	}
	return stmt.Limit(pageSize + 1)
}

func ApplyPagination(page pagination.Pagination) QueryOption {
	return paginationOption{page: page}
}
