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
	"database/sql"
	"errors"
	"time"

	"github.com/tomoncle/anvil/database"
)

// BeginTransaction opens a transaction on the unit's connection. It does
// nothing when one is already open. A cancelled or expired ctx fails with
// StorageUnavailable and leaves no transaction open.
func (u *UnitOfWork) BeginTransaction(ctx context.Context) (err error) {
	if u.state == StateDisposed {
		return ErrDisposed
	}
	if u.tx != nil {
		return nil
	}
	ctx, span := u.telemetry.start(ctx, "uow.begin", u.id)
	defer func() { endSpan(span, err) }()

	if err = ctx.Err(); err != nil {
		return database.Classify("begin", err)
	}
	tx, err := u.conn.BeginTx(ctx, u.txOptions)
	if err != nil {
		return database.Classify("begin", err)
	}
	// database/sql aborts a transaction whose context ends during begin.
	if cerr := ctx.Err(); cerr != nil {
		_ = tx.Rollback()
		return database.Classify("begin", cerr)
	}
	u.tx = &tx
	u.state = StateActive
	u.telemetry.recordBegin(ctx)
	u.logger.Debug("Transaction begun", "uow", u.id)
	return nil
}

// SaveChanges flushes staged mutations in the order they were staged and
// returns the number of affected rows. Inside a transaction a failed flush
// rolls the transaction back, which also drops the remaining mutations.
// Without one every statement commits on its own and the failing mutation
// stays staged together with those after it.
func (u *UnitOfWork) SaveChanges(ctx context.Context) (n int64, err error) {
	if u.state == StateDisposed {
		return 0, ErrDisposed
	}
	ctx, span := u.telemetry.start(ctx, "uow.save_changes", u.id)
	defer func() { endSpan(span, err) }()

	db, err := u.IDB()
	if err != nil {
		return 0, err
	}
	n, err = u.changes.Flush(ctx, db)
	u.telemetry.recordFlush(ctx, n)
	if err != nil {
		if u.tx != nil {
			if rerr := u.rollback(ctx, "flush_failed"); rerr != nil {
				u.logger.Warn("Rollback after failed flush failed", "uow", u.id, "error", rerr)
			}
		}
		return n, err
	}
	u.logger.Debug("Changes saved", "uow", u.id, "rows", n)
	return n, nil
}

// CommitTransaction saves staged changes and commits the open transaction.
// When saving fails the transaction is rolled back and the saving error is
// returned. Without an open transaction it behaves like SaveChanges.
func (u *UnitOfWork) CommitTransaction(ctx context.Context) (err error) {
	if u.state == StateDisposed {
		return ErrDisposed
	}
	if u.tx == nil {
		_, err = u.SaveChanges(ctx)
		return err
	}
	ctx, span := u.telemetry.start(ctx, "uow.commit", u.id)
	defer func() { endSpan(span, err) }()

	started := time.Now()
	if _, err = u.SaveChanges(ctx); err != nil {
		u.telemetry.recordCommit(ctx, started, false)
		return err
	}

	tx := u.tx
	u.tx = nil
	u.state = StateClosed
	if cerr := tx.Commit(); cerr != nil {
		err = database.Classify("commit", cerr)
		u.changes.Discard()
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			u.logger.Warn("Rollback after failed commit failed", "uow", u.id, "error", rerr)
		}
		u.telemetry.recordRollback(ctx, "commit_failed")
		u.telemetry.recordCommit(ctx, started, false)
		u.logger.Error("Transaction commit failed", "uow", u.id, "error", err)
		return err
	}
	u.telemetry.recordCommit(ctx, started, true)
	u.logger.Debug("Transaction committed", "uow", u.id)
	return nil
}

// RollbackTransaction drops staged mutations and rolls back the open
// transaction. It does nothing when no transaction is open.
func (u *UnitOfWork) RollbackTransaction(ctx context.Context) (err error) {
	if u.state == StateDisposed {
		return ErrDisposed
	}
	if u.tx == nil {
		return nil
	}
	ctx, span := u.telemetry.start(ctx, "uow.rollback", u.id)
	defer func() { endSpan(span, err) }()
	return u.rollback(ctx, "explicit")
}

// rollback releases the open transaction on every path. A transaction the
// driver already aborted, for example after its context was cancelled, is
// not an error.
func (u *UnitOfWork) rollback(ctx context.Context, reason string) error {
	tx := u.tx
	u.tx = nil
	u.state = StateClosed
	discarded := u.changes.Discard()

	u.telemetry.recordRollback(ctx, reason)
	u.logger.Debug("Transaction rolled back", "uow", u.id, "reason", reason, "discarded", discarded)
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return database.Classify("rollback", err)
	}
	return nil
}
