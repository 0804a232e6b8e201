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

package types

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// Operation is the kind of change a staged mutation applies on flush.
type Operation int

const (
	OperationAdd Operation = iota + 1
	OperationUpdate
	OperationRemove
)

var _ BaseEnum = Operation(0)

var operationNames = map[Operation][2]string{
	OperationAdd:    {"add", "insert a new row"},
	OperationUpdate: {"update", "overwrite the row with the same key"},
	OperationRemove: {"remove", "delete the row with the same key"},
}

func (o Operation) IsValid() bool {
	_, ok := operationNames[o]
	return ok
}

func (o Operation) Number() int {
	if !o.IsValid() {
		return IllegalValue
	}
	return int(o)
}

func (o Operation) Name() string {
	if n, ok := operationNames[o]; ok {
		return n[0]
	}
	return IllegalName
}

func (o Operation) Desc() string {
	if n, ok := operationNames[o]; ok {
		return n[1]
	}
	return IllegalDesc
}

func (o Operation) String() string { return o.Name() }

// Direction is the sort direction of an order key.
type Direction int

const (
	Asc Direction = iota
	Desc
)

var _ BaseEnum = Direction(0)

func (d Direction) IsValid() bool { return d == Asc || d == Desc }

func (d Direction) Number() int {
	if !d.IsValid() {
		return IllegalValue
	}
	return int(d)
}

func (d Direction) Name() string {
	switch d {
	case Asc:
		return "ASC"
	case Desc:
		return "DESC"
	}
	return IllegalName
}

func (d Direction) Desc() string {
	switch d {
	case Asc:
		return "ascending"
	case Desc:
		return "descending"
	}
	return IllegalDesc
}

func (d Direction) String() string { return d.Name() }
