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

package repository

import (
	"database/sql"
	"fmt"

	"github.com/tomoncle/anvil/entity"
	"github.com/tomoncle/anvil/types"
	"github.com/uptrace/bun"
)

// groupTotal is the scan target of a group-by-sum query.
type groupTotal struct {
	GroupKey sql.NullString  `bun:"group_key"`
	Total    sql.NullFloat64 `bun:"total"`
}

func checkField[T any](d *entity.Descriptor[T], op, field string) error {
	if !d.HasField(field) {
		return types.NewError(types.KindInvalidArgument, op,
			fmt.Sprintf("unknown field %q", field)).WithEntity(d.Table())
	}
	return nil
}

func applyFilter[T any](q *bun.SelectQuery, d *entity.Descriptor[T], op string, conds []types.Condition) (*bun.SelectQuery, error) {
	for _, c := range conds {
		if err := checkField(d, op, c.Field); err != nil {
			return nil, err
		}
		col := bun.Ident(c.Field)
		switch c.Operator {
		case types.IsNull, types.IsNotNull:
			q = q.Where("? "+string(c.Operator), col)
		case types.In, types.NotIn:
			q = q.Where("? "+string(c.Operator)+" (?)", col, bun.In(c.Value))
		case types.Like:
			if c.Escape != "" {
				q = q.Where("? LIKE ? ESCAPE ?", col, c.Value, c.Escape)
			} else {
				q = q.Where("? LIKE ?", col, c.Value)
			}
		default:
			q = q.Where("? "+string(c.Operator)+" ?", col, c.Value)
		}
	}
	return q, nil
}

// applyOrder adds the requested sort keys. When tiebreak is set the primary
// key columns not already ordered on are appended ascending so that pages
// partition the result deterministically.
func applyOrder[T any](q *bun.SelectQuery, d *entity.Descriptor[T], op string, orders []types.Order, tiebreak bool) (*bun.SelectQuery, error) {
	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		if err := checkField(d, op, o.Field); err != nil {
			return nil, err
		}
		q = q.OrderExpr("? "+o.Direction.Name(), bun.Ident(o.Field))
		seen[o.Field] = true
	}
	if tiebreak {
		for _, col := range d.KeyColumns() {
			if !seen[col] {
				q = q.OrderExpr("? ASC", bun.Ident(col))
			}
		}
	}
	return q, nil
}

func applyPage(q *bun.SelectQuery, page *types.Page) *bun.SelectQuery {
	if page == nil {
		return q
	}
	return q.Limit(page.Size).Offset(page.Offset())
}

func applyGroupSum[T any](q *bun.SelectQuery, d *entity.Descriptor[T], op string, g *types.GroupSum) (*bun.SelectQuery, error) {
	if err := checkField(d, op, g.GroupField); err != nil {
		return nil, err
	}
	if err := checkField(d, op, g.SumField); err != nil {
		return nil, err
	}
	return q.
		ColumnExpr("? AS group_key", bun.Ident(g.GroupField)).
		ColumnExpr("SUM(?) AS total", bun.Ident(g.SumField)).
		GroupExpr("?", bun.Ident(g.GroupField)), nil
}
