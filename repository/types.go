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

	"github.com/tomoncle/anvil/entity"
	"github.com/tomoncle/anvil/types"
	"github.com/uptrace/bun"
)

// Session is the storage scope a repository reads and stages through. IDB
// returns the active transaction when there is one, otherwise the scope's
// dedicated connection. Both fail once the scope is closed for good.
type Session interface {
	IDB() (bun.IDB, error)
	Changes() (*ChangeSet, error)
}

// QueryRepository defines the read side. Reads always go to storage and see
// only flushed rows.
type QueryRepository[T any] interface {
	// FindAll returns the rows matching spec, ordered and paged as requested.
	FindAll(ctx context.Context, spec *types.Spec) ([]*T, error)

	// Count returns the number of rows matching the filter of spec.
	Count(ctx context.Context, spec *types.Spec) (int, error)

	// Aggregate returns the sum of the spec's sum field per group value.
	Aggregate(ctx context.Context, spec *types.Spec) (map[string]float64, error)

	// GetByID returns the row with the given key, or nil when absent.
	GetByID(ctx context.Context, key any) (*T, error)
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, spec *types.Spec) (*types.Pagination[T], error)
}

// StagingRepository defines the write side. Nothing reaches storage until
// the owning unit of work saves its changes.
type StagingRepository[T any] interface {
	Stage(op types.Operation, e *T) error
	Add(e *T) error
	Update(e *T) error
	Remove(e *T) error
}

// Repository combines reads, pagination and staged writes for T and exposes
// a Bun select builder bound to the session for advanced use cases.
type Repository[T any] interface {
	QueryRepository[T]
	PageQueryRepository[T]
	StagingRepository[T]
	Descriptor() *entity.Descriptor[T]
	NewSelect() (*bun.SelectQuery, error)
}
