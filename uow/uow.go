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
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/entity"
	"github.com/tomoncle/anvil/repository"
	"github.com/tomoncle/anvil/types"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ErrDisposed is returned by every operation on a disposed unit of work.
var ErrDisposed = errors.New("uow: unit of work is disposed")

// State is the lifecycle state of a unit of work.
type State int

const (
	StateCreated State = iota
	StateActive
	StateClosed
	StateDisposed
)

var _ types.BaseEnum = State(0)

var stateNames = [...][2]string{
	StateCreated:  {"created", "no transaction has been started yet"},
	StateActive:   {"active", "a transaction is open"},
	StateClosed:   {"closed", "the last transaction was committed or rolled back"},
	StateDisposed: {"disposed", "the connection has been released"},
}

func (s State) IsValid() bool { return s >= StateCreated && s <= StateDisposed }

func (s State) Number() int {
	if !s.IsValid() {
		return types.IllegalValue
	}
	return int(s)
}

func (s State) Name() string {
	if !s.IsValid() {
		return types.IllegalName
	}
	return stateNames[s][0]
}

func (s State) Desc() string {
	if !s.IsValid() {
		return types.IllegalDesc
	}
	return stateNames[s][1]
}

func (s State) String() string { return s.Name() }

type options struct {
	logger         database.Logger
	txOptions      *sql.TxOptions
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// Option configures a unit of work.
type Option func(*options)

// WithLogger sets the logger. The package default from database.GetLogger
// is used otherwise.
func WithLogger(logger database.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTxOptions sets the options every transaction of the unit is opened with.
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(o *options) { o.txOptions = opts }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = database.GetLogger()
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	return o
}

// UnitOfWork owns one pooled connection, at most one open transaction and
// the mutations staged through its repositories. It is not safe for
// concurrent use.
type UnitOfWork struct {
	id        string
	db        *bun.DB
	conn      bun.Conn
	tx        *bun.Tx
	txOptions *sql.TxOptions
	state     State
	changes   *repository.ChangeSet
	repos     map[reflect.Type]any
	logger    database.Logger
	telemetry *telemetry
}

var _ repository.Session = (*UnitOfWork)(nil)

// New acquires a dedicated connection from db and returns a unit of work in
// the Created state.
func New(ctx context.Context, db *bun.DB, opts ...Option) (*UnitOfWork, error) {
	if db == nil {
		return nil, types.NewError(types.KindInvalidArgument, "new", "database is nil")
	}
	o := newOptions(opts)
	tel, err := newTelemetry(o.meterProvider, o.tracerProvider)
	if err != nil {
		return nil, fmt.Errorf("uow: telemetry: %w", err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, database.Classify("connect", err)
	}
	u := &UnitOfWork{
		id:        uuid.NewString(),
		db:        db,
		conn:      conn,
		txOptions: o.txOptions,
		state:     StateCreated,
		changes:   repository.NewChangeSet(o.logger),
		repos:     make(map[reflect.Type]any),
		logger:    o.logger,
		telemetry: tel,
	}
	u.logger.Debug("Unit of work created", "uow", u.id)
	return u, nil
}

func (u *UnitOfWork) ID() string { return u.id }

func (u *UnitOfWork) State() State { return u.state }

func (u *UnitOfWork) Logger() database.Logger { return u.logger }

func (u *UnitOfWork) InTransaction() bool { return u.tx != nil }

// Pending returns the number of staged mutations not yet flushed.
func (u *UnitOfWork) Pending() int { return u.changes.Len() }

// DiscardChanges drops staged mutations without touching storage or the
// open transaction.
func (u *UnitOfWork) DiscardChanges() int {
	n := u.changes.Discard()
	if n > 0 {
		u.logger.Debug("Staged mutations discarded", "uow", u.id, "count", n)
	}
	return n
}

// IDB returns the open transaction, or the dedicated connection when none is
// open.
func (u *UnitOfWork) IDB() (bun.IDB, error) {
	if u.state == StateDisposed {
		return nil, ErrDisposed
	}
	if u.tx != nil {
		return u.tx, nil
	}
	return u.conn, nil
}

func (u *UnitOfWork) Changes() (*repository.ChangeSet, error) {
	if u.state == StateDisposed {
		return nil, ErrDisposed
	}
	return u.changes, nil
}

// RepositoryFor returns the repository of T bound to u. The first call for
// a type creates it, later calls return the same instance.
func RepositoryFor[T any](u *UnitOfWork) (repository.Repository[T], error) {
	if u.state == StateDisposed {
		return nil, ErrDisposed
	}
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if repo, ok := u.repos[typ]; ok {
		return repo.(repository.Repository[T]), nil
	}
	desc, err := entity.Describe[T](u.db)
	if err != nil {
		return nil, err
	}
	repo := repository.NewRepository[T](u, desc)
	u.repos[typ] = repo
	return repo, nil
}

// Dispose rolls back an open transaction, drops staged mutations and
// returns the connection to the pool. Calling it again does nothing.
func (u *UnitOfWork) Dispose() error {
	if u.state == StateDisposed {
		return nil
	}
	var errs []error
	if u.tx != nil {
		if err := u.rollback(context.Background(), "dispose"); err != nil {
			errs = append(errs, err)
		}
	}
	u.changes.Discard()
	if err := u.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, database.Classify("dispose", err))
	}
	u.state = StateDisposed
	u.repos = nil
	u.logger.Debug("Unit of work disposed", "uow", u.id)
	return errors.Join(errs...)
}
