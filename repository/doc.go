// Package repository provides a generic repository built on Bun: declarative
// filtering, ordering, pagination and group-by-sum reads, plus writes staged
// in a change set that a unit of work flushes in FIFO order.
package repository
