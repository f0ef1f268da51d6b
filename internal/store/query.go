package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parkir-status-backend/internal/model"
)

// ErrInvalidQuery is returned when filter parameters fail validation.
var ErrInvalidQuery = errors.New("invalid query")

// QueryError describes which filter parameter was rejected.
type QueryError struct {
	Field  string
	Reason string
}

func (e *QueryError) Error() string { return e.Reason }

func (e *QueryError) Unwrap() error { return ErrInvalidQuery }

// Column is a filterable or sortable column of lokasi_parkir.
type Column string

const (
	ColumnName     Column = "nama"
	ColumnCapacity Column = "kapasitas"
	ColumnStatus   Column = "status"
)

// sortableColumns is the closed set of sort keys accepted from clients.
var sortableColumns = map[string]Column{
	"nama":      ColumnName,
	"kapasitas": ColumnCapacity,
	"status":    ColumnStatus,
}

// SortableColumns lists the accepted sortBy values in a stable order.
func SortableColumns() []string {
	return []string{string(ColumnName), string(ColumnCapacity), string(ColumnStatus)}
}

// Operator is a comparison supported by the builder.
type Operator int

const (
	OpEq Operator = iota
	OpGte
	OpLte
)

// Predicate is a single parameterized condition. Column and Op only ever hold
// package constants; Value is bound as a query argument.
type Predicate struct {
	Column Column
	Op     Operator
	Value  any
}

func (p Predicate) expression() clause.Expression {
	col := clause.Column{Name: string(p.Column)}
	switch p.Op {
	case OpGte:
		return clause.Gte{Column: col, Value: p.Value}
	case OpLte:
		return clause.Lte{Column: col, Value: p.Value}
	default:
		return clause.Eq{Column: col, Value: p.Value}
	}
}

// Query is the validated descriptor consumed by ListFiltered.
type Query struct {
	Predicates []Predicate
	SortColumn Column
	Desc       bool
}

// FilterParams are the raw, optional filter inputs as received from a client.
type FilterParams struct {
	Status      string
	MinCapacity string
	MaxCapacity string
	SortBy      string
	Order       string
}

// BuildQuery validates params and turns them into a Query. Absent parameters
// are omitted; sortBy defaults to nama and order to ASC.
func BuildQuery(p FilterParams) (Query, error) {
	q := Query{SortColumn: ColumnName}

	if p.SortBy != "" {
		col, ok := sortableColumns[p.SortBy]
		if !ok {
			return Query{}, &QueryError{
				Field:  "sortBy",
				Reason: fmt.Sprintf("invalid sort column %q, allowed: %s", p.SortBy, strings.Join(SortableColumns(), ", ")),
			}
		}
		q.SortColumn = col
	}

	switch strings.ToUpper(p.Order) {
	case "", "ASC":
	case "DESC":
		q.Desc = true
	default:
		return Query{}, &QueryError{
			Field:  "order",
			Reason: fmt.Sprintf("invalid sort order %q, allowed: ASC, DESC", p.Order),
		}
	}

	if p.Status != "" {
		status, err := model.ParseStatus(p.Status)
		if err != nil {
			return Query{}, &QueryError{Field: "status", Reason: err.Error()}
		}
		q.Predicates = append(q.Predicates, Predicate{Column: ColumnStatus, Op: OpEq, Value: string(status)})
	}

	minCap, err := parseCapacity("minKapasitas", p.MinCapacity)
	if err != nil {
		return Query{}, err
	}
	maxCap, err := parseCapacity("maxKapasitas", p.MaxCapacity)
	if err != nil {
		return Query{}, err
	}
	if minCap != nil {
		q.Predicates = append(q.Predicates, Predicate{Column: ColumnCapacity, Op: OpGte, Value: *minCap})
	}
	if maxCap != nil {
		q.Predicates = append(q.Predicates, Predicate{Column: ColumnCapacity, Op: OpLte, Value: *maxCap})
	}

	return q, nil
}

func parseCapacity(field, raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, &QueryError{Field: field, Reason: fmt.Sprintf("%s must be a non-negative integer", field)}
	}
	return &n, nil
}

// apply adds the predicates and ordering to tx. The id tiebreaker keeps
// results stable when the sort column has duplicates.
func (q Query) apply(tx *gorm.DB) *gorm.DB {
	for _, p := range q.Predicates {
		tx = tx.Where(p.expression())
	}
	sortColumn := q.SortColumn
	if sortColumn == "" {
		sortColumn = ColumnName
	}
	return tx.
		Order(clause.OrderByColumn{Column: clause.Column{Name: string(sortColumn)}, Desc: q.Desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}})
}
