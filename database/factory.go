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

package database

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/tomoncle/anvil/utils"
	"github.com/uptrace/bun"
)

// SupportedTypes lists the values accepted in ConnectionConfig.Type.
var SupportedTypes = []string{"mysql", "postgres", "pgx", "sqlite", "sqlite3"}

// BaseDatabaseFactory owns one database manager and exposes its
// lifecycle, health and statistics.
type BaseDatabaseFactory struct {
	manager AbstractDatabaseManager
	logger  Logger
}

func NewDatabaseFactory() *BaseDatabaseFactory {
	return &BaseDatabaseFactory{logger: GetLogger()}
}

// CreateFromConfig applies DB_* environment overrides to cfg and builds
// the manager for its type.
func (f *BaseDatabaseFactory) CreateFromConfig(cfg *ConnectionConfig) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	if !slices.Contains(SupportedTypes, cfg.Type) {
		return nil, fmt.Errorf("unsupported database type: %s, supported types: %v", cfg.Type, SupportedTypes)
	}

	OverrideConnectionFromEnv(cfg)

	manager := NewDatabaseManager(cfg)
	manager.SetLogger(f.logger)
	f.manager = manager
	return manager, nil
}

type envOverride struct {
	key   string
	apply func(value string) error
}

func applyEnv(overrides []envOverride) {
	for _, o := range overrides {
		value, ok := os.LookupEnv(o.key)
		if !ok || value == "" {
			continue
		}
		if err := o.apply(value); err != nil {
			GetLogger().Warn("Ignoring invalid environment override", "key", o.key, "error", err)
		}
	}
}

func setString(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setDuration(dst *time.Duration, unit time.Duration) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = time.Duration(n) * unit
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

// OverrideConnectionFromEnv applies DB_* environment variables to cfg.
// Durations are given in seconds, DB_SLOW_QUERY_MS in milliseconds.
func OverrideConnectionFromEnv(cfg *ConnectionConfig) {
	applyEnv([]envOverride{
		{"DB_HOST", setString(&cfg.Host)},
		{"DB_PORT", setInt(&cfg.Port)},
		{"DB_USERNAME", setString(&cfg.Username)},
		{"DB_PASSWORD", setString(&cfg.Password)},
		{"DB_NAME", setString(&cfg.DBName)},
		{"DB_SSLMODE", setString(&cfg.SSLMode)},
		{"DB_MAX_IDLE_CONNS", setInt(&cfg.MaxIdleConns)},
		{"DB_MAX_OPEN_CONNS", setInt(&cfg.MaxOpenConns)},
		{"DB_CONN_MAX_LIFETIME", setDuration(&cfg.ConnMaxLifetime, time.Second)},
		{"DB_ENABLE_RECONNECT", setBool(&cfg.EnableReconnect)},
		{"DB_RECONNECT_INTERVAL", setDuration(&cfg.ReconnectInterval, time.Second)},
		{"DB_ENABLE_QUERY_LOG", setBool(&cfg.EnableQueryLog)},
		{"DB_SLOW_QUERY_MS", setDuration(&cfg.SlowQueryTime, time.Millisecond)},
	})
}

// OverrideUnitOfWorkFromEnv applies UOW_* environment variables to cfg.
func OverrideUnitOfWorkFromEnv(cfg *UnitOfWorkConfig) {
	cfg.IsolationLevel = utils.EnvDefaultString("UOW_ISOLATION_LEVEL", cfg.IsolationLevel)
	cfg.ReadOnly = utils.EnvDefaultBool("UOW_READ_ONLY", cfg.ReadOnly)
	cfg.CreateTablesOnStartup = utils.EnvDefaultBool("UOW_CREATE_TABLES", cfg.CreateTablesOnStartup)
}

// InitializeDatabase connects and, when createTables is set, creates the
// tables of registered models.
func (f *BaseDatabaseFactory) InitializeDatabase(ctx context.Context, createTables bool) error {
	if f.manager == nil {
		return fmt.Errorf("database manager not created")
	}
	if err := f.manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if createTables {
		if err := f.manager.CreateTables(ctx); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	f.logger.Info("Database initialization completed")
	return nil
}

func (f *BaseDatabaseFactory) GetManager() AbstractDatabaseManager {
	return f.manager
}

// GetDB returns the Bun database instance, or nil if not initialized.
func (f *BaseDatabaseFactory) GetDB() *bun.DB {
	if f.manager == nil {
		return nil
	}
	return f.manager.GetDB()
}

func (f *BaseDatabaseFactory) SetLogger(logger Logger) {
	f.logger = logger
	if f.manager != nil {
		f.manager.SetLogger(logger)
	}
}

func (f *BaseDatabaseFactory) Close() error {
	if f.manager == nil {
		return nil
	}
	return f.manager.Disconnect()
}

func (f *BaseDatabaseFactory) GetHealthStatus(ctx context.Context) *HealthStatus {
	if f.manager == nil {
		return &HealthStatus{
			LastError:     "Database manager not initialized",
			LastCheckTime: time.Now(),
		}
	}
	return f.manager.HealthCheck(ctx)
}

func (f *BaseDatabaseFactory) GetStats() *DBStats {
	if f.manager == nil {
		return &DBStats{}
	}
	return f.manager.GetStats()
}
