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

package entity

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/tomoncle/anvil/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Descriptor exposes the storage metadata of model type T.
type Descriptor[T any] struct {
	typ   reflect.Type
	table *schema.Table
	keys  []string
}

// Describe reads the bun table metadata registered for T. T must be a struct
// model with at least one primary key column.
func Describe[T any](db *bun.DB) (*Descriptor[T], error) {
	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Struct {
		return nil, types.NewError(types.KindInvalidArgument, "describe",
			fmt.Sprintf("%s is not a struct model", typ))
	}
	table := db.Table(typ)
	if len(table.PKs) == 0 {
		return nil, types.NewError(types.KindInvalidArgument, "describe",
			fmt.Sprintf("%s has no primary key", typ)).WithEntity(table.Name)
	}
	keys := make([]string, len(table.PKs))
	for i, f := range table.PKs {
		keys[i] = f.Name
	}
	return &Descriptor[T]{typ: typ, table: table, keys: keys}, nil
}

// Type returns the Go type of T.
func (d *Descriptor[T]) Type() reflect.Type { return d.typ }

// Table returns the table name.
func (d *Descriptor[T]) Table() string { return d.table.Name }

// KeyColumns returns the primary key columns in declaration order.
func (d *Descriptor[T]) KeyColumns() []string { return d.keys }

// HasField reports whether column is mapped on T.
func (d *Descriptor[T]) HasField(column string) bool {
	return d.table.HasField(column)
}

// Key returns the primary key of e.
func (d *Descriptor[T]) Key(e *T) Key {
	v := reflect.ValueOf(e).Elem()
	values := make([]any, len(d.table.PKs))
	zero := true
	for i, f := range d.table.PKs {
		fv := f.Value(v)
		if !fv.IsZero() {
			zero = false
		}
		values[i] = fv.Interface()
	}
	return Key{table: d.table.Name, values: values, zero: zero}
}

// KeyOf converts a caller supplied key into a Key. Composite keys are passed
// as []any in KeyColumns order.
func (d *Descriptor[T]) KeyOf(key any) (Key, error) {
	values, ok := key.([]any)
	if !ok {
		values = []any{key}
	}
	if len(values) != len(d.keys) {
		return Key{}, types.NewError(types.KindInvalidArgument, "key",
			fmt.Sprintf("expected %d key values, got %d", len(d.keys), len(values))).WithEntity(d.table.Name)
	}
	return Key{table: d.table.Name, values: values}, nil
}

// Key identifies one row of one table.
type Key struct {
	table  string
	values []any
	zero   bool
}

// Values returns the key column values.
func (k Key) Values() []any { return k.values }

// IsZero reports whether every key column holds its zero value, meaning the
// key has not been assigned yet.
func (k Key) IsZero() bool { return k.zero }

// Equal reports whether k and other name the same row.
func (k Key) Equal(other Key) bool {
	return k.table == other.table && reflect.DeepEqual(k.values, other.values)
}

func (k Key) String() string {
	parts := make([]string, len(k.values))
	for i, v := range k.values {
		parts[i] = fmt.Sprint(v)
	}
	return k.table + "(" + strings.Join(parts, ",") + ")"
}
