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

package anvil

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/repository"
	"github.com/tomoncle/anvil/types"
	"github.com/tomoncle/anvil/uow"
	"github.com/uptrace/bun"
)

type Service[T any] interface {
	// Get returns a single entity by its key, or a NotFound error.
	Get(ctx context.Context, id any) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match spec.
	List(ctx context.Context, spec *types.Spec) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, spec *types.Spec) (*types.Pagination[T], error)

	// Count returns the number of entities matching the filter of spec.
	Count(ctx context.Context, spec *types.Spec) (int, error)

	// Totals returns the group-by-sum result of spec.
	Totals(ctx context.Context, spec *types.Spec) (map[string]float64, error)

	// Save inserts one or more new entities in one transaction.
	Save(ctx context.Context, model ...*T) error

	// Update overwrites an existing entity.
	Update(ctx context.Context, model *T) error

	// Delete removes an entity by its key.
	Delete(ctx context.Context, id any) error

	// SaveWithUnit stages inserts in a unit of work owned by the caller.
	SaveWithUnit(u *uow.UnitOfWork, model ...*T) error

	// UpdateWithUnit stages an update in a unit of work owned by the caller.
	UpdateWithUnit(u *uow.UnitOfWork, model *T) error

	// DeleteWithUnit looks the entity up and stages its removal in a unit of
	// work owned by the caller.
	DeleteWithUnit(ctx context.Context, u *uow.UnitOfWork, id any) error

	// SelectBuilder returns a Bun select query builder for the entity.
	SelectBuilder() (*bun.SelectQuery, error)
}

type baseServiceImpl[T any] struct {
	units *uow.Factory
	once  sync.Once
	err   error
}

// NewService returns a Service that runs every call in its own unit of work
// created by factory.
func NewService[T any](factory *uow.Factory) Service[T] {
	return &baseServiceImpl[T]{units: factory}
}

// NewDefaultService returns a Service backed by the global database
// connection, resolved on first use.
func NewDefaultService[T any]() Service[T] {
	return &baseServiceImpl[T]{}
}

func (s *baseServiceImpl[T]) factory() (*uow.Factory, error) {
	s.once.Do(func() {
		if s.units != nil {
			return
		}
		db := database.GetDB()
		if db == nil {
			s.err = types.NewError(types.KindStorageUnavailable, "service", "database is not initialized")
			return
		}
		var cfg database.UnitOfWorkConfig
		if c := database.GetConfig(); c != nil {
			cfg = c.UnitOfWorkConfig
		}
		s.units, s.err = uow.NewFactoryFromConfig(db, cfg)
	})
	return s.units, s.err
}

// read runs fn against a repository of a short-lived unit of work.
func (s *baseServiceImpl[T]) read(ctx context.Context, fn func(repo repository.Repository[T]) error) error {
	f, err := s.factory()
	if err != nil {
		return err
	}
	u, err := f.New(ctx)
	if err != nil {
		return err
	}
	defer disposeUnit(u)
	repo, err := uow.RepositoryFor[T](u)
	if err != nil {
		return err
	}
	return fn(repo)
}

// disposeUnit releases u and logs a failed dispose.
func disposeUnit(u *uow.UnitOfWork) {
	if err := u.Dispose(); err != nil {
		u.Logger().Warn("Unit of work dispose failed", "uow", u.ID(), "error", err)
	}
}

// write runs fn in a transaction and commits what it staged.
func (s *baseServiceImpl[T]) write(ctx context.Context, fn func(ctx context.Context, u *uow.UnitOfWork) error) error {
	f, err := s.factory()
	if err != nil {
		return err
	}
	return f.Execute(ctx, fn)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (model *T, err error) {
	err = s.read(ctx, func(repo repository.Repository[T]) error {
		model, err = getExisting(ctx, repo, id)
		return err
	})
	return model, err
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.List(ctx, nil)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, spec *types.Spec) (models []*T, err error) {
	err = s.read(ctx, func(repo repository.Repository[T]) error {
		models, err = repo.FindAll(ctx, spec)
		return err
	})
	return models, err
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, spec *types.Spec) (page *types.Pagination[T], err error) {
	err = s.read(ctx, func(repo repository.Repository[T]) error {
		page, err = repo.Page(ctx, spec)
		return err
	})
	return page, err
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, spec *types.Spec) (total int, err error) {
	err = s.read(ctx, func(repo repository.Repository[T]) error {
		total, err = repo.Count(ctx, spec)
		return err
	})
	return total, err
}

func (s *baseServiceImpl[T]) Totals(ctx context.Context, spec *types.Spec) (totals map[string]float64, err error) {
	err = s.read(ctx, func(repo repository.Repository[T]) error {
		totals, err = repo.Aggregate(ctx, spec)
		return err
	})
	return totals, err
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) error {
	return s.write(ctx, func(_ context.Context, u *uow.UnitOfWork) error {
		return s.SaveWithUnit(u, model...)
	})
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) error {
	return s.write(ctx, func(_ context.Context, u *uow.UnitOfWork) error {
		return s.UpdateWithUnit(u, model)
	})
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) error {
	return s.write(ctx, func(ctx context.Context, u *uow.UnitOfWork) error {
		return s.DeleteWithUnit(ctx, u, id)
	})
}

func (s *baseServiceImpl[T]) SaveWithUnit(u *uow.UnitOfWork, model ...*T) error {
	repo, err := uow.RepositoryFor[T](u)
	if err != nil {
		return err
	}
	for _, m := range model {
		if err := repo.Add(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *baseServiceImpl[T]) UpdateWithUnit(u *uow.UnitOfWork, model *T) error {
	repo, err := uow.RepositoryFor[T](u)
	if err != nil {
		return err
	}
	return repo.Update(model)
}

func (s *baseServiceImpl[T]) DeleteWithUnit(ctx context.Context, u *uow.UnitOfWork, id any) error {
	repo, err := uow.RepositoryFor[T](u)
	if err != nil {
		return err
	}
	model, err := getExisting(ctx, repo, id)
	if err != nil {
		return err
	}
	return repo.Remove(model)
}

func (s *baseServiceImpl[T]) SelectBuilder() (*bun.SelectQuery, error) {
	f, err := s.factory()
	if err != nil {
		return nil, err
	}
	return f.DB().NewSelect().Model((*T)(nil)), nil
}

func getExisting[T any](ctx context.Context, repo repository.Repository[T], id any) (*T, error) {
	model, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if model == nil {
		table := repo.Descriptor().Table()
		return nil, types.NewError(types.KindNotFound, "get",
			fmt.Sprintf("no %s with key %v", table, id)).WithEntity(table)
	}
	return model, nil
}
