// Package database provides connection management, configuration, driver
// error classification, query logging hooks, health checks and table
// bootstrap for registered models, built on top of Bun.
package database
