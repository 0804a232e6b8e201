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
	"context"
	"database/sql"
	"errors"

	"github.com/tomoncle/anvil/entity"
	"github.com/tomoncle/anvil/types"
	"github.com/uptrace/bun"
)

type baseRepositoryImpl[T any] struct {
	session Session
	desc    *entity.Descriptor[T]
}

// NewRepository returns a repository of T that reads through session and
// stages writes in its change set.
func NewRepository[T any](session Session, desc *entity.Descriptor[T]) Repository[T] {
	return &baseRepositoryImpl[T]{session: session, desc: desc}
}

func (r *baseRepositoryImpl[T]) Descriptor() *entity.Descriptor[T] { return r.desc }

func (r *baseRepositoryImpl[T]) NewSelect() (*bun.SelectQuery, error) {
	db, err := r.session.IDB()
	if err != nil {
		return nil, err
	}
	return db.NewSelect().Model((*T)(nil)), nil
}

func (r *baseRepositoryImpl[T]) FindAll(ctx context.Context, spec *types.Spec) ([]*T, error) {
	const op = "find"
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.GroupSum() != nil {
		return nil, types.NewError(types.KindInvalidArgument, op,
			"group-by-sum specifications are executed with Aggregate").WithEntity(r.desc.Table())
	}
	db, err := r.session.IDB()
	if err != nil {
		return nil, err
	}
	entities := make([]*T, 0)
	query, err := applyFilter(db.NewSelect().Model(&entities), r.desc, op, spec.Filter())
	if err != nil {
		return nil, err
	}
	if query, err = applyOrder(query, r.desc, op, spec.Orders(), spec.Page() != nil); err != nil {
		return nil, err
	}
	if err := applyPage(query, spec.Page()).Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, classify(op, r.desc.Table(), err)
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, spec *types.Spec) (int, error) {
	const op = "count"
	if err := spec.Err(); err != nil {
		return 0, err
	}
	query, err := r.NewSelect()
	if err != nil {
		return 0, err
	}
	if query, err = applyFilter(query, r.desc, op, spec.Filter()); err != nil {
		return 0, err
	}
	total, err := query.Count(ctx)
	if err != nil {
		return 0, classify(op, r.desc.Table(), err)
	}
	return total, nil
}

func (r *baseRepositoryImpl[T]) Aggregate(ctx context.Context, spec *types.Spec) (map[string]float64, error) {
	const op = "aggregate"
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.GroupSum() == nil {
		return nil, types.NewError(types.KindInvalidArgument, op,
			"specification has no group-by-sum").WithEntity(r.desc.Table())
	}
	query, err := r.NewSelect()
	if err != nil {
		return nil, err
	}
	if query, err = applyFilter(query, r.desc, op, spec.Filter()); err != nil {
		return nil, err
	}
	if query, err = applyGroupSum(query, r.desc, op, spec.GroupSum()); err != nil {
		return nil, err
	}
	var rows []groupTotal
	if err := query.Scan(ctx, &rows); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, classify(op, r.desc.Table(), err)
	}
	totals := make(map[string]float64, len(rows))
	for _, row := range rows {
		totals[row.GroupKey.String] += row.Total.Float64
	}
	return totals, nil
}

func (r *baseRepositoryImpl[T]) GetByID(ctx context.Context, key any) (*T, error) {
	const op = "get"
	k, err := r.desc.KeyOf(key)
	if err != nil {
		return nil, err
	}
	db, err := r.session.IDB()
	if err != nil {
		return nil, err
	}
	e := new(T)
	query := db.NewSelect().Model(e)
	for i, col := range r.desc.KeyColumns() {
		query = query.Where("? = ?", bun.Ident(col), k.Values()[i])
	}
	err = query.Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(op, r.desc.Table(), err)
	}
	return e, nil
}

// Page counts the rows matching the filter and returns the requested page.
// Without a page in spec every matching row is returned as page 1.
func (r *baseRepositoryImpl[T]) Page(ctx context.Context, spec *types.Spec) (*types.Pagination[T], error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	total, err := r.Count(ctx, spec.FilterOnly())
	if err != nil {
		return nil, err
	}
	number, size := 1, total
	if p := spec.Page(); p != nil {
		number, size = p.Number, p.Size
	}
	pagination := types.NewDefaultPagination[T](number, size)
	if total == 0 {
		return pagination, nil
	}
	items, err := r.FindAll(ctx, spec)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = items
	return pagination, nil
}

func (r *baseRepositoryImpl[T]) Stage(op types.Operation, e *T) error {
	changes, err := r.session.Changes()
	if err != nil {
		return err
	}
	m, err := newMutation(r.desc, op, e)
	if err != nil {
		return err
	}
	return changes.Stage(m)
}

func (r *baseRepositoryImpl[T]) Add(e *T) error { return r.Stage(types.OperationAdd, e) }

func (r *baseRepositoryImpl[T]) Update(e *T) error { return r.Stage(types.OperationUpdate, e) }

func (r *baseRepositoryImpl[T]) Remove(e *T) error { return r.Stage(types.OperationRemove, e) }
