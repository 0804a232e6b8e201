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
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newMockDB(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestCommitDeadlockIsStorageConflict(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE").WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})
	mock.ExpectRollback()

	u := newUnit(t, db)
	widgets, err := RepositoryFor[widget](u)
	require.NoError(t, err)
	require.NoError(t, u.BeginTransaction(ctx))
	require.NoError(t, widgets.Update(&widget{ID: 1, Name: "contended", Price: 1}))

	err = u.CommitTransaction(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrStorageConflict)
	assert.True(t, types.IsRetryable(err))
	var typed *types.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, "widgets", typed.Entity)
	assert.Zero(t, u.Pending())
	assert.False(t, u.InTransaction())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginFailureIsStorageUnavailable(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin().WillReturnError(errors.New("dial tcp 10.0.0.7:3306: connection refused"))

	u := newUnit(t, db)
	err := u.BeginTransaction(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrStorageUnavailable)
	assert.True(t, types.IsRetryable(err))
	assert.Equal(t, StateCreated, u.State())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitFailureRollsBackAndReports(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("bad connection"))

	u := newUnit(t, db)
	widgets, err := RepositoryFor[widget](u)
	require.NoError(t, err)
	require.NoError(t, u.BeginTransaction(ctx))
	require.NoError(t, widgets.Remove(&widget{ID: 9}))

	err = u.CommitTransaction(ctx)
	assert.ErrorIs(t, err, types.ErrStorageUnavailable)
	assert.Equal(t, StateClosed, u.State())
	assert.False(t, u.InTransaction())
	require.NoError(t, mock.ExpectationsWereMet())
}

func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func histogramCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	var count uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			require.True(t, ok, "%s is not a float64 histogram", name)
			for _, dp := range hist.DataPoints {
				count += dp.Count
			}
		}
	}
	return count
}

func TestTelemetry(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	db := newTestDB(t)
	u := newUnit(t, db, WithMeterProvider(mp), WithTracerProvider(tp))
	widgets, err := RepositoryFor[widget](u)
	require.NoError(t, err)

	require.NoError(t, u.BeginTransaction(ctx))
	require.NoError(t, u.BeginTransaction(ctx))
	require.NoError(t, widgets.Add(&widget{Name: "a", Price: 1}))
	require.NoError(t, widgets.Add(&widget{Name: "b", Price: 2}))
	require.NoError(t, u.CommitTransaction(ctx))

	require.NoError(t, u.BeginTransaction(ctx))
	require.NoError(t, widgets.Update(&widget{ID: 404, Name: "ghost"}))
	require.Error(t, u.CommitTransaction(ctx))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.EqualValues(t, 2, counterValue(t, rm, MetricTransactionsBegun))
	assert.EqualValues(t, 1, counterValue(t, rm, MetricTransactionsCommitted))
	assert.EqualValues(t, 1, counterValue(t, rm, MetricTransactionsRolledBack))
	assert.EqualValues(t, 2, counterValue(t, rm, MetricMutationsFlushed))
	assert.EqualValues(t, 2, histogramCount(t, rm, MetricCommitDuration))

	byName := map[string][]sdktrace.ReadOnlySpan{}
	for _, span := range recorder.Ended() {
		byName[span.Name()] = append(byName[span.Name()], span)
	}
	assert.Len(t, byName["uow.begin"], 2)
	assert.Len(t, byName["uow.save_changes"], 2)
	require.Len(t, byName["uow.commit"], 2)
	assert.Equal(t, codes.Unset, byName["uow.commit"][0].Status().Code)
	assert.Equal(t, codes.Error, byName["uow.commit"][1].Status().Code)
}

func TestFactoryExecute(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	factory, err := NewFactoryFromConfig(db, database.UnitOfWorkConfig{}, WithLogger(database.NopLogger{}))
	require.NoError(t, err)
	assert.Same(t, db, factory.DB())

	err = factory.Execute(ctx, func(ctx context.Context, u *UnitOfWork) error {
		widgets, err := RepositoryFor[widget](u)
		if err != nil {
			return err
		}
		assert.True(t, u.InTransaction())
		return widgets.Add(&widget{Name: "kept", Price: 1})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, widgetCount(t, db))

	failure := errors.New("reservation rejected")
	err = factory.Execute(ctx, func(ctx context.Context, u *UnitOfWork) error {
		widgets, err := RepositoryFor[widget](u)
		if err != nil {
			return err
		}
		if err := widgets.Add(&widget{Name: "dropped", Price: 2}); err != nil {
			return err
		}
		if _, err := u.SaveChanges(ctx); err != nil {
			return err
		}
		return failure
	})
	assert.Same(t, failure, err)
	assert.Equal(t, 1, widgetCount(t, db))

	var leaked *UnitOfWork
	assert.PanicsWithValue(t, "boom", func() {
		_ = factory.Execute(ctx, func(ctx context.Context, u *UnitOfWork) error {
			leaked = u
			widgets, _ := RepositoryFor[widget](u)
			_ = widgets.Add(&widget{Name: "panicked", Price: 3})
			_, _ = u.SaveChanges(ctx)
			panic("boom")
		})
	})
	assert.Equal(t, 1, widgetCount(t, db))
	require.NotNil(t, leaked)
	assert.Equal(t, StateDisposed, leaked.State())
}

func TestNewFactoryFromConfigRejectsUnknownIsolation(t *testing.T) {
	_, err := NewFactoryFromConfig(nil, database.UnitOfWorkConfig{IsolationLevel: "chaos"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported isolation level")
}
