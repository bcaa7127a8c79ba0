// Package filter compiles multi-valued URL query parameters into SQL
// predicates over a configured set of filterable fields.
package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Kind 过滤字段的比较方式
type Kind int

const (
	Equals Kind = iota
	Contains
	Datetime
)

// Fields maps an exposed filter key to its column and comparison kind.
type Fields map[string]Field

type Field struct {
	Column string
	Kind   Kind
}

// rangeOps are the lookup suffixes accepted on Datetime fields, e.g.
// "sent_on__gt=1700000000.5".
var rangeOps = map[string]string{
	"gt":  ">",
	"gte": ">=",
	"lt":  "<",
	"lte": "<=",
}

type condition struct {
	expr string
	arg  any
}

// Predicate is a compiled filter: groups of OR-ed conditions, AND-ed together.
type Predicate struct {
	groups [][]condition
	// A recognized key with an unusable lookup poisons the whole predicate:
	// the result set is empty, never an error.
	poisoned bool
}

// Compile groups the given query parameters by filter key. Values of one key
// are OR-ed, different keys are AND-ed. Unknown keys are ignored, unless they
// are a "base__suffix" range lookup on a Datetime base. Datetime values that
// fail to parse as Unix seconds are skipped silently.
func Compile(params map[string][]string, fields Fields) *Predicate {
	p := &Predicate{}

	for key, values := range params {
		field, op, ok := resolve(key, fields)
		if !ok {
			continue
		}
		if op == "" {
			p.poisoned = true
			continue
		}

		var group []condition
		for _, value := range values {
			switch field.Kind {
			case Contains:
				group = append(group, condition{
					expr: "lower(" + field.Column + ") LIKE ?",
					arg:  "%" + strings.ToLower(value) + "%",
				})
			case Datetime:
				seconds, err := strconv.ParseFloat(value, 64)
				if err != nil {
					continue
				}
				instant := time.Unix(0, int64(seconds*float64(time.Second))).UTC()
				group = append(group, condition{
					expr: field.Column + " " + op + " ?",
					arg:  instant,
				})
			default:
				group = append(group, condition{
					expr: field.Column + " = ?",
					arg:  value,
				})
			}
		}
		if len(group) > 0 {
			p.groups = append(p.groups, group)
		}
	}
	return p
}

// resolve finds the field for a filter key. The empty op return marks a
// poisoned lookup (recognized Datetime base, unsupported suffix).
func resolve(key string, fields Fields) (Field, string, bool) {
	if field, ok := fields[key]; ok {
		return field, "=", true
	}
	base, suffix, found := strings.Cut(key, "__")
	if !found {
		return Field{}, "", false
	}
	field, ok := fields[base]
	if !ok || field.Kind != Datetime {
		return Field{}, "", false
	}
	op, ok := rangeOps[suffix]
	if !ok {
		return field, "", true
	}
	return field, op, true
}

// Restrictive reports whether applying the predicate can narrow a result set.
func (p *Predicate) Restrictive() bool {
	return p.poisoned || len(p.groups) > 0
}

// Poisoned reports whether the predicate must yield an empty result set.
func (p *Predicate) Poisoned() bool { return p.poisoned }

// Scope applies the predicate to a gorm query. Callers must treat execution
// errors (e.g. a column missing from the concrete schema) as an empty result,
// not a failure.
func (p *Predicate) Scope(db *gorm.DB) *gorm.DB {
	if p.poisoned {
		// Matches no rows on any schema.
		return db.Where("1 = 0")
	}
	for _, group := range p.groups {
		exprs := make([]string, len(group))
		args := make([]any, len(group))
		for i, c := range group {
			exprs[i] = c.expr
			args[i] = c.arg
		}
		db = db.Where(fmt.Sprintf("(%s)", strings.Join(exprs, " OR ")), args...)
	}
	return db
}
