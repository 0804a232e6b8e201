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

package uow

import (
	"context"
	"fmt"

	"github.com/tomoncle/anvil/database"
	"github.com/uptrace/bun"
)

// Factory creates units of work over one database, typically one per
// inbound request.
type Factory struct {
	db   *bun.DB
	opts []Option
}

func NewFactory(db *bun.DB, opts ...Option) *Factory {
	return &Factory{db: db, opts: opts}
}

// NewFactoryFromConfig returns a factory whose units open transactions with
// the isolation level and read-only flag of cfg. Options in opts win.
func NewFactoryFromConfig(db *bun.DB, cfg database.UnitOfWorkConfig, opts ...Option) (*Factory, error) {
	txOptions, err := cfg.TxOptions()
	if err != nil {
		return nil, fmt.Errorf("uow: %w", err)
	}
	return NewFactory(db, append([]Option{WithTxOptions(txOptions)}, opts...)...), nil
}

func (f *Factory) DB() *bun.DB { return f.db }

func (f *Factory) New(ctx context.Context) (*UnitOfWork, error) {
	return New(ctx, f.db, f.opts...)
}

// Execute runs fn inside a transaction of a fresh unit of work. The
// transaction is committed when fn returns nil and rolled back when it
// returns an error or panics; a panic is re-raised after the rollback. The
// unit is disposed before Execute returns.
func (f *Factory) Execute(ctx context.Context, fn func(ctx context.Context, u *UnitOfWork) error) (err error) {
	u, err := f.New(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			u.logger.Error("Unit of work panicked", "uow", u.id, "panic", p)
			_ = u.Dispose()
			panic(p)
		}
		if derr := u.Dispose(); derr != nil {
			u.logger.Warn("Unit of work dispose failed", "uow", u.id, "error", derr)
		}
	}()

	if err = u.BeginTransaction(ctx); err != nil {
		return err
	}
	if err = fn(ctx, u); err != nil {
		if rerr := u.RollbackTransaction(ctx); rerr != nil {
			u.logger.Warn("Rollback failed", "uow", u.id, "error", rerr)
		}
		return err
	}
	return u.CommitTransaction(ctx)
}
