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
	"fmt"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/entity"
	"github.com/tomoncle/anvil/types"
	"github.com/uptrace/bun"
)

// Mutation is one staged change waiting for a flush.
type Mutation interface {
	Operation() types.Operation
	Table() string
	Key() entity.Key
	// Apply writes the change and returns the number of rows it affected.
	Apply(ctx context.Context, db bun.IDB) (int64, error)
}

// ChangeSet holds staged mutations in the order they were staged.
type ChangeSet struct {
	pending []Mutation
	logger  database.Logger
}

// NewChangeSet returns an empty change set.
func NewChangeSet(logger database.Logger) *ChangeSet {
	if logger == nil {
		logger = database.NopLogger{}
	}
	return &ChangeSet{logger: logger}
}

// Stage appends m. An Add whose key is already tracked by a pending Add or
// Update fails with DuplicateKey; unassigned (zero) keys are never tracked.
func (c *ChangeSet) Stage(m Mutation) error {
	if m.Operation() == types.OperationAdd && !m.Key().IsZero() {
		if op, ok := c.tracked(m.Key()); ok && op != types.OperationRemove {
			return types.NewError(types.KindDuplicateKey, "stage",
				fmt.Sprintf("%s is already tracked by a pending %s", m.Key(), op)).WithEntity(m.Table())
		}
	}
	c.pending = append(c.pending, m)
	c.logger.Debug("Mutation staged", "operation", m.Operation(), "key", m.Key())
	return nil
}

// tracked returns the last pending operation staged for key.
func (c *ChangeSet) tracked(key entity.Key) (types.Operation, bool) {
	for i := len(c.pending) - 1; i >= 0; i-- {
		k := c.pending[i].Key()
		if !k.IsZero() && k.Equal(key) {
			return c.pending[i].Operation(), true
		}
	}
	return 0, false
}

// Len returns the number of pending mutations.
func (c *ChangeSet) Len() int { return len(c.pending) }

// Pending returns a snapshot of the pending mutations in FIFO order.
func (c *ChangeSet) Pending() []Mutation {
	return append([]Mutation(nil), c.pending...)
}

// Discard drops every pending mutation and returns how many were dropped.
func (c *ChangeSet) Discard() int {
	n := len(c.pending)
	c.pending = nil
	return n
}

// Flush applies pending mutations in FIFO order. Each applied mutation is
// removed; on failure the failing mutation and everything after it stay
// pending and the total of rows affected so far is returned with the error.
func (c *ChangeSet) Flush(ctx context.Context, db bun.IDB) (int64, error) {
	var total int64
	for len(c.pending) > 0 {
		m := c.pending[0]
		n, err := m.Apply(ctx, db)
		if err != nil {
			c.logger.Warn("Mutation failed", "operation", m.Operation(), "key", m.Key(), "error", err)
			return total, err
		}
		total += n
		c.pending[0] = nil
		c.pending = c.pending[1:]
	}
	c.pending = nil
	return total, nil
}

type mutation[T any] struct {
	op     types.Operation
	entity *T
	key    entity.Key
	table  string
}

func newMutation[T any](d *entity.Descriptor[T], op types.Operation, e *T) (*mutation[T], error) {
	if e == nil {
		return nil, types.NewError(types.KindInvalidArgument, "stage", "entity is nil").WithEntity(d.Table())
	}
	if !op.IsValid() {
		return nil, types.NewError(types.KindInvalidArgument, "stage",
			fmt.Sprintf("unknown operation %d", op)).WithEntity(d.Table())
	}
	key := d.Key(e)
	if op != types.OperationAdd && key.IsZero() {
		return nil, types.NewError(types.KindInvalidArgument, "stage",
			fmt.Sprintf("%s requires an entity with a key", op)).WithEntity(d.Table())
	}
	return &mutation[T]{op: op, entity: e, key: key, table: d.Table()}, nil
}

func (m *mutation[T]) Operation() types.Operation { return m.op }

func (m *mutation[T]) Table() string { return m.table }

func (m *mutation[T]) Key() entity.Key { return m.key }

func (m *mutation[T]) Apply(ctx context.Context, db bun.IDB) (int64, error) {
	op := m.op.Name()
	switch m.op {
	case types.OperationAdd:
		if _, err := db.NewInsert().Model(m.entity).Exec(ctx); err != nil {
			return 0, classify(op, m.table, err)
		}
		return 1, nil
	case types.OperationUpdate:
		res, err := db.NewUpdate().Model(m.entity).WherePK().Exec(ctx)
		if err != nil {
			return 0, classify(op, m.table, err)
		}
		return requireRows(op, m.table, m.key, res)
	case types.OperationRemove:
		res, err := db.NewDelete().Model(m.entity).WherePK().Exec(ctx)
		if err != nil {
			return 0, classify(op, m.table, err)
		}
		return requireRows(op, m.table, m.key, res)
	}
	return 0, types.NewError(types.KindInvalidArgument, op, "unknown operation").WithEntity(m.table)
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func requireRows(op, table string, key entity.Key, res rowsAffected) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(op, table, err)
	}
	if n == 0 {
		return 0, types.NewError(types.KindNotFound, op,
			fmt.Sprintf("no row matched %s", key)).WithEntity(table)
	}
	return n, nil
}

func classify(op, table string, err error) error {
	c := database.Classify(op, err)
	if e, ok := c.(*types.Error); ok && c != err {
		e.Entity = table
	}
	return c
}
