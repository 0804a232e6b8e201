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

import (
	"errors"
	"strings"
)

// Kind classifies a persistence error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindNotFound
	KindDuplicateKey
	KindStorageConflict
	KindStorageUnavailable
)

var _ BaseEnum = Kind(0)

var kindNames = map[Kind][2]string{
	KindUnknown:            {"unknown", "unclassified error"},
	KindInvalidArgument:    {"invalid_argument", "malformed query or mutation"},
	KindNotFound:           {"not_found", "the targeted row does not exist"},
	KindDuplicateKey:       {"duplicate_key", "the key is already tracked by the unit of work"},
	KindStorageConflict:    {"storage_conflict", "constraint violation, serialization failure or deadlock"},
	KindStorageUnavailable: {"storage_unavailable", "connection lost, timeout or cancellation"},
}

func (k Kind) IsValid() bool {
	_, ok := kindNames[k]
	return ok
}

func (k Kind) Number() int {
	if !k.IsValid() {
		return IllegalValue
	}
	return int(k)
}

func (k Kind) Name() string {
	if n, ok := kindNames[k]; ok {
		return n[0]
	}
	return IllegalName
}

func (k Kind) Desc() string {
	if n, ok := kindNames[k]; ok {
		return n[1]
	}
	return IllegalDesc
}

func (k Kind) String() string { return k.Name() }

// Sentinels for errors.Is checks. Any *Error of the same kind matches.
var (
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrDuplicateKey       = &Error{Kind: KindDuplicateKey}
	ErrStorageConflict    = &Error{Kind: KindStorageConflict}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable}
)

// Error is the error type returned by repositories and units of work.
type Error struct {
	Kind    Kind
	Op      string
	Entity  string
	Message string
	Err     error
}

// NewError builds an error of the given kind without a cause.
func NewError(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// WrapError attaches a kind and operation to a lower level error.
func WrapError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithEntity returns the error tagged with the entity (table) name.
func (e *Error) WithEntity(entity string) *Error {
	e.Entity = entity
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Entity != "" {
		b.WriteString(e.Entity)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Name())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the caller may retry the whole unit of work.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindStorageConflict, KindStorageUnavailable:
		return true
	}
	return false
}
