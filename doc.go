// Package anvil is a persistence layer built around repositories and units
// of work on top of Bun.
//
// Entities are plain Bun models. A uow.UnitOfWork owns one connection and at
// most one transaction; repositories obtained from it read through that
// connection and stage writes until the unit saves or commits them. Queries
// are described with types.Spec (filter, order, page, group-by-sum) and
// validated before any statement runs.
//
// Service wraps that machinery for the common request-scoped cases: every
// call gets its own unit of work, and writes run in one transaction.
package anvil
