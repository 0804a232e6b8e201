/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Operator is a comparison applied by a filter condition.
type Operator string

const (
	Eq        Operator = "="
	NotEq     Operator = "<>"
	Gt        Operator = ">"
	Gte       Operator = ">="
	Lt        Operator = "<"
	Lte       Operator = "<="
	In        Operator = "IN"
	NotIn     Operator = "NOT IN"
	Like      Operator = "LIKE"
	IsNull    Operator = "IS NULL"
	IsNotNull Operator = "IS NOT NULL"
)

// IsValid reports whether the operator is supported.
func (o Operator) IsValid() bool {
	switch o {
	case Eq, NotEq, Gt, Gte, Lt, Lte, In, NotIn, Like, IsNull, IsNotNull:
		return true
	}
	return false
}

// Unary reports whether the operator takes no value.
func (o Operator) Unary() bool { return o == IsNull || o == IsNotNull }

// LikeEscape is the escape character of patterns built by Contains.
const LikeEscape = "!"

// Condition is a single column predicate. Escape, when set on a LIKE
// condition, is the single character that quotes %, _ and itself in Value.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
	Escape   string
}

func (c Condition) validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return errors.New("filter field is empty")
	}
	if !c.Operator.IsValid() {
		return fmt.Errorf("unsupported operator %q on %s", c.Operator, c.Field)
	}
	switch c.Operator {
	case In, NotIn:
		rv := reflect.ValueOf(c.Value)
		if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return fmt.Errorf("%s on %s requires a slice, got %T", c.Operator, c.Field, c.Value)
		}
		if rv.Len() == 0 {
			return fmt.Errorf("%s on %s requires at least one value", c.Operator, c.Field)
		}
	case Like:
		if _, ok := c.Value.(string); !ok {
			return fmt.Errorf("LIKE on %s requires a string pattern, got %T", c.Field, c.Value)
		}
		if len(c.Escape) > 1 {
			return fmt.Errorf("LIKE on %s takes a single escape character, got %q", c.Field, c.Escape)
		}
	case IsNull, IsNotNull:
	default:
		if c.Value == nil {
			return fmt.Errorf("%s on %s requires a value; use IS NULL to match nulls", c.Operator, c.Field)
		}
	}
	if c.Escape != "" && c.Operator != Like {
		return fmt.Errorf("escape character on %s is only valid with LIKE", c.Field)
	}
	return nil
}

// Order is a single sort key.
type Order struct {
	Field     string
	Direction Direction
}

// GroupSum requests the sum of SumField per distinct GroupField value.
type GroupSum struct {
	GroupField string
	SumField   string
}

// Spec describes which rows a repository read returns. It performs no I/O;
// problems found while building are recorded and reported by Err and by
// every execution before storage is touched. A nil *Spec selects every row;
// the builder methods called on a nil *Spec start from NewSpec.
type Spec struct {
	filter []Condition
	orders []Order
	page   *Page
	group  *GroupSum
	errs   []error
}

// NewSpec returns an empty specification.
func NewSpec() *Spec {
	return &Spec{}
}

// Where AND-composes one more condition.
func (s *Spec) Where(field string, op Operator, value any) *Spec {
	return s.WithFilter(Condition{Field: field, Operator: op, Value: value})
}

// WithFilter AND-composes the given conditions.
func (s *Spec) WithFilter(conditions ...Condition) *Spec {
	if s == nil {
		s = NewSpec()
	}
	for _, c := range conditions {
		if err := c.validate(); err != nil {
			s.errs = append(s.errs, err)
			continue
		}
		s.filter = append(s.filter, c)
	}
	return s
}

var likeEscaper = strings.NewReplacer(LikeEscape, LikeEscape+LikeEscape, "%", LikeEscape+"%", "_", LikeEscape+"_")

// Contains matches rows whose field contains text literally; % and _ in
// text match themselves.
func (s *Spec) Contains(field, text string) *Spec {
	return s.WithFilter(Condition{
		Field:    field,
		Operator: Like,
		Value:    "%" + likeEscaper.Replace(text) + "%",
		Escape:   LikeEscape,
	})
}

// WithOrder appends a sort key. Earlier calls take priority.
func (s *Spec) WithOrder(field string, direction Direction) *Spec {
	if s == nil {
		s = NewSpec()
	}
	switch {
	case strings.TrimSpace(field) == "":
		s.errs = append(s.errs, errors.New("order field is empty"))
	case !direction.IsValid():
		s.errs = append(s.errs, fmt.Errorf("invalid direction %d on %s", direction, field))
	default:
		s.orders = append(s.orders, Order{Field: field, Direction: direction})
	}
	return s
}

// WithPage limits the result to one page. Both values must be at least 1.
func (s *Spec) WithPage(number, size int) *Spec {
	if s == nil {
		s = NewSpec()
	}
	if number < 1 || size < 1 {
		s.errs = append(s.errs, fmt.Errorf("page number and size must be >= 1, got %d/%d", number, size))
		return s
	}
	s.page = &Page{Number: number, Size: size}
	return s
}

// WithGroupSum turns the specification into a group-by-sum aggregation.
func (s *Spec) WithGroupSum(groupField, sumField string) *Spec {
	if s == nil {
		s = NewSpec()
	}
	if strings.TrimSpace(groupField) == "" || strings.TrimSpace(sumField) == "" {
		s.errs = append(s.errs, errors.New("group and sum fields must not be empty"))
		return s
	}
	s.group = &GroupSum{GroupField: groupField, SumField: sumField}
	return s
}

// Filter returns the AND-composed conditions.
func (s *Spec) Filter() []Condition {
	if s == nil {
		return nil
	}
	return s.filter
}

// Orders returns the sort keys in priority order.
func (s *Spec) Orders() []Order {
	if s == nil {
		return nil
	}
	return s.orders
}

// Page returns the requested page, or nil.
func (s *Spec) Page() *Page {
	if s == nil {
		return nil
	}
	return s.page
}

// GroupSum returns the requested aggregation, or nil.
func (s *Spec) GroupSum() *GroupSum {
	if s == nil {
		return nil
	}
	return s.group
}

// Err returns the errors recorded while building the specification.
func (s *Spec) Err() error {
	if s == nil || len(s.errs) == 0 {
		return nil
	}
	return NewError(KindInvalidArgument, "spec", errors.Join(s.errs...).Error())
}

// Validate checks the specification as a whole.
func (s *Spec) Validate() error {
	if err := s.Err(); err != nil {
		return err
	}
	if s.Page() != nil && s.GroupSum() != nil {
		return NewError(KindInvalidArgument, "spec", "pagination and grouping cannot be combined")
	}
	return nil
}

// FilterOnly returns an independent copy carrying only the filter of s.
func (s *Spec) FilterOnly() *Spec {
	if s == nil {
		return nil
	}
	return &Spec{filter: slices.Clone(s.filter), errs: slices.Clone(s.errs)}
}
