// Copyright 2014 The Cockroach Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License. See the AUTHORS file
// for names of contributors.

// Package store defines the back-end key/value adapter contract and the
// two concrete engines rangekv ships: an in-memory engine and a durable
// file-backed engine. Both engines provide ordered Get/GetNext/GetPrev
// over raw comparator-encoded keys; callers are responsible for encoding
// keys (see the keyspace package) before calling into an Engine.
package store

import (
	"bytes"

	"github.com/biogo/store/llrb"
)

// EngineType names a concrete Engine implementation, persisted in the
// manifest so a reopen can verify the same back end is in use.
type EngineType int32

const (
	MemEngine EngineType = iota
	FileEngine
)

func (t EngineType) String() string {
	switch t {
	case MemEngine:
		return "Mem"
	case FileEngine:
		return "File"
	default:
		return "UnknownEngine"
	}
}

// Engine is the contract a back-end key/value store must satisfy. Keys are
// opaque, comparator-encoded byte strings; Engine orders them with
// bytes.Compare. Get returns a rkerr.NotFound error when the key is absent.
// GetNext/GetPrev return the first stored key strictly greater/less than
// key; they return rkerr.NotFound when no such key exists.
type Engine interface {
	Open(path string) error
	Put(key, value []byte) error
	Get(key []byte) (value []byte, err error)
	GetNext(key []byte) (nextKey, value []byte, err error)
	GetPrev(key []byte) (prevKey, value []byte, err error)
	Del(key []byte) error
	Commit() error
	Close() error
}

// record is the llrb.Comparable wrapper around a stored key/value pair.
// Ordering is by key only; Compare never inspects value.
type record struct {
	key   []byte
	value []byte
}

// Compare implements llrb.Comparable.
func (r *record) Compare(other llrb.Comparable) int {
	o := other.(*record)
	return bytes.Compare(r.key, o.key)
}

func newQuery(key []byte) *record {
	return &record{key: key}
}
