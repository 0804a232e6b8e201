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
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/types"
	"github.com/tomoncle/anvil/uow"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type product struct {
	bun.BaseModel `bun:"table:products"`

	ID       int64   `bun:"id,pk,autoincrement"`
	Name     string  `bun:"name,notnull"`
	Category string  `bun:"category"`
	Price    float64 `bun:"price"`
}

func newProductService(t *testing.T) (Service[product], *bun.DB) {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, filepath.Join(t.TempDir(), "products.db"))
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.NewCreateTable().Model((*product)(nil)).IfNotExists().Exec(context.Background())
	require.NoError(t, err)
	return NewService[product](uow.NewFactory(db, uow.WithLogger(database.NopLogger{}))), db
}

func TestServiceCRUD(t *testing.T) {
	ctx := context.Background()
	products, _ := newProductService(t)

	laptop := &product{Name: "laptop", Category: "computers", Price: 1200}
	mouse := &product{Name: "mouse", Category: "accessories", Price: 25}
	require.NoError(t, products.Save(ctx, laptop, mouse))
	require.NotZero(t, laptop.ID)

	got, err := products.Get(ctx, laptop.ID)
	require.NoError(t, err)
	assert.Equal(t, "laptop", got.Name)

	_, err = products.Get(ctx, int64(999))
	assert.ErrorIs(t, err, types.ErrNotFound)

	laptop.Price = 999
	require.NoError(t, products.Update(ctx, laptop))
	got, err = products.Get(ctx, laptop.ID)
	require.NoError(t, err)
	assert.Equal(t, 999.0, got.Price)

	err = products.Update(ctx, &product{ID: 999, Name: "ghost"})
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, products.Delete(ctx, mouse.ID))
	assert.ErrorIs(t, products.Delete(ctx, mouse.ID), types.ErrNotFound)

	all, err := products.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, laptop.ID, all[0].ID)
}

func TestServiceQueries(t *testing.T) {
	ctx := context.Background()
	products, _ := newProductService(t)
	require.NoError(t, products.Save(ctx,
		&product{Name: "keyboard", Category: "accessories", Price: 45},
		&product{Name: "monitor", Category: "displays", Price: 300},
		&product{Name: "cable", Category: "accessories", Price: 5},
		&product{Name: "projector", Category: "displays", Price: 650},
		&product{Name: "webcam", Category: "accessories", Price: 60},
	))

	accessories := types.NewSpec().Where("category", types.Eq, "accessories")
	n, err := products.Count(ctx, accessories)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	totals, err := products.Totals(ctx, types.NewSpec().WithGroupSum("category", "price"))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"accessories": 110, "displays": 950}, totals)

	page, err := products.Page(ctx, types.NewSpec().WithOrder("price", types.Desc).WithPage(2, 2))
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages())
	require.Len(t, page.Items, 2)
	assert.Equal(t, "webcam", page.Items[0].Name)
	assert.Equal(t, "keyboard", page.Items[1].Name)

	matches, err := products.List(ctx, types.NewSpec().Contains("name", "o").WithOrder("name", types.Asc))
	require.NoError(t, err)
	var names []string
	for _, p := range matches {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"keyboard", "monitor", "projector"}, names)

	_, err = products.List(ctx, types.NewSpec().WithPage(0, 10))
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	query, err := products.SelectBuilder()
	require.NoError(t, err)
	n, err = query.Where("price > ?", 100).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestServiceEmptyExtent(t *testing.T) {
	ctx := context.Background()
	products, _ := newProductService(t)

	items, err := products.List(ctx, types.NewSpec().WithPage(1, 10))
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	page, err := products.Page(ctx, types.NewSpec().WithPage(1, 10))
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Items)

	totals, err := products.Totals(ctx, types.NewSpec().WithGroupSum("category", "price"))
	require.NoError(t, err)
	assert.Empty(t, totals)
}

func TestServiceWithCallerOwnedUnit(t *testing.T) {
	ctx := context.Background()
	products, db := newProductService(t)
	require.NoError(t, products.Save(ctx, &product{Name: "old", Price: 1}))

	u, err := uow.New(ctx, db, uow.WithLogger(database.NopLogger{}))
	require.NoError(t, err)
	defer u.Dispose()

	require.NoError(t, u.BeginTransaction(ctx))
	require.NoError(t, products.SaveWithUnit(u, &product{Name: "new", Price: 2}))
	require.NoError(t, products.DeleteWithUnit(ctx, u, int64(1)))
	assert.ErrorIs(t, products.DeleteWithUnit(ctx, u, int64(42)), types.ErrNotFound)
	require.NoError(t, u.RollbackTransaction(ctx))

	all, err := products.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "old", all[0].Name)
}

func TestDefaultServiceUsesGlobalDatabase(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, database.CloseDB())

	_, err := NewDefaultService[product]().All(ctx)
	assert.ErrorIs(t, err, types.ErrStorageUnavailable)

	database.RegisterModel(database.Model[product](0))
	cfg := &database.Config{
		ConnectionConfig: *database.DefaultConnectionConfig(),
		UnitOfWorkConfig: database.UnitOfWorkConfig{CreateTablesOnStartup: true},
	}
	cfg.ConnectionConfig.Type = "sqlite"
	cfg.ConnectionConfig.DBName = filepath.Join(t.TempDir(), "global.db")
	_, err = database.InitDB(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.CloseDB() })

	products := NewDefaultService[product]()
	require.NoError(t, products.Save(ctx, &product{Name: "tablet", Price: 300}))
	n, err := products.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type warnLog struct {
	database.NopLogger
	warnings []string
}

func (l *warnLog) Warn(msg string, fields ...interface{}) {
	l.warnings = append(l.warnings, fmt.Sprint(msg, fields))
}

func TestDisposeFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("bad connection"))

	log := &warnLog{}
	u, err := uow.New(ctx, db, uow.WithLogger(log))
	require.NoError(t, err)
	require.NoError(t, u.BeginTransaction(ctx))

	disposeUnit(u)
	assert.Equal(t, uow.StateDisposed, u.State())
	require.Len(t, log.warnings, 1)
	assert.True(t, strings.HasPrefix(log.warnings[0], "Unit of work dispose failed"), log.warnings[0])
	assert.Contains(t, log.warnings[0], u.ID())
	require.NoError(t, mock.ExpectationsWereMet())
}
