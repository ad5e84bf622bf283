package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gorm.io/datatypes"

	"github.com/charlesng35/smartpost/internal/models"
)

// Direction controls OrderBy sort order.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Comparison operators accepted by Where.
const (
	OpEqual          = "=="
	OpNotEqual       = "!="
	OpLess           = "<"
	OpLessOrEqual    = "<="
	OpGreater        = ">"
	OpGreaterOrEqual = ">="
)

type filter struct {
	field string
	op    string
	value any
}

type ordering struct {
	field     string
	direction Direction
}

// Query is an immutable builder over one collection. Documents missing a filtered or
// ordered field are excluded from results.
type Query struct {
	store      *GormStore
	collection string
	filters    []filter
	orders     []ordering
	limit      int
	err        error
}

// Where adds a field filter.
func (q *Query) Where(field, op string, value any) *Query {
	next := q.clone()
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
	default:
		next.err = fmt.Errorf("docstore: unsupported operator %q", op)
	}
	next.filters = append(next.filters, filter{field: field, op: op, value: normalizeValue(value)})
	return next
}

// OrderBy adds a sort key.
func (q *Query) OrderBy(field string, direction Direction) *Query {
	next := q.clone()
	next.orders = append(next.orders, ordering{field: field, direction: direction})
	return next
}

// Limit caps the number of returned documents; zero or negative means unlimited.
func (q *Query) Limit(n int) *Query {
	next := q.clone()
	next.limit = n
	return next
}

// Documents executes the query and returns matching snapshots.
func (q *Query) Documents(ctx context.Context) ([]*Snapshot, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.collection == "" {
		return nil, ErrInvalidPath
	}

	tx := q.store.db.WithContext(ctx).Where("collection = ?", q.collection)
	for _, f := range q.filters {
		// String equality is pushed down to the database; every filter is evaluated
		// again in memory below.
		if s, ok := f.value.(string); ok && f.op == OpEqual {
			tx = tx.Where(datatypes.JSONQuery("data").Equals(s, strings.Split(f.field, ".")...))
		}
	}

	var rows []models.Document
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", q.collection, err)
	}

	out := make([]*Snapshot, 0, len(rows))
	for i := range rows {
		snap := toSnapshot(&rows[i])
		if q.matches(snap.Data) {
			out = append(out, snap)
		}
	}

	q.sort(out)

	if q.limit > 0 && len(out) > q.limit {
		out = out[:q.limit]
	}
	return out, nil
}

// Count returns the number of matching documents, ignoring Limit.
func (q *Query) Count(ctx context.Context) (int, error) {
	docs, err := q.Limit(0).Documents(ctx)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (q *Query) matches(data map[string]any) bool {
	for _, f := range q.filters {
		value, ok := lookupPath(data, f.field)
		if !ok {
			return false
		}
		switch f.op {
		case OpEqual:
			if !valuesEqual(value, f.value) {
				return false
			}
		case OpNotEqual:
			if valuesEqual(value, f.value) {
				return false
			}
		default:
			cmp, comparable := compareValues(value, f.value)
			if !comparable {
				return false
			}
			switch f.op {
			case OpLess:
				if cmp >= 0 {
					return false
				}
			case OpLessOrEqual:
				if cmp > 0 {
					return false
				}
			case OpGreater:
				if cmp <= 0 {
					return false
				}
			case OpGreaterOrEqual:
				if cmp < 0 {
					return false
				}
			}
		}
	}
	for _, o := range q.orders {
		if _, ok := lookupPath(data, o.field); !ok {
			return false
		}
	}
	return true
}

func (q *Query) sort(docs []*Snapshot) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range q.orders {
			a, _ := lookupPath(docs[i].Data, o.field)
			b, _ := lookupPath(docs[j].Data, o.field)
			cmp, ok := compareValues(a, b)
			if !ok || cmp == 0 {
				continue
			}
			if o.direction == Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return docs[i].ID < docs[j].ID
	})
}

func (q *Query) clone() *Query {
	next := *q
	next.filters = append([]filter(nil), q.filters...)
	next.orders = append([]ordering(nil), q.orders...)
	return &next
}
