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

package store

import (
	"bytes"
	"sync"

	"github.com/biogo/store/llrb"

	"github.com/hpc-io/rangekv/rkerr"
)

// memEngine is an in-memory Engine backed by a left-leaning red-black
// tree. It never touches disk; Commit is a no-op and Close drops the tree.
type memEngine struct {
	mu   sync.RWMutex
	tree *llrb.Tree
	open bool
}

// NewMemEngine returns an in-memory Engine.
func NewMemEngine() Engine {
	return &memEngine{}
}

func (e *memEngine) Open(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tree = &llrb.Tree{}
	e.open = true
	return nil
}

func (e *memEngine) Put(key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return rkerr.E(rkerr.BackendError, "engine is not open")
	}
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	e.tree.Insert(&record{key: k, value: v})
	return nil
}

func (e *memEngine) Get(key []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.open {
		return nil, rkerr.E(rkerr.BackendError, "engine is not open")
	}
	found := e.tree.Get(newQuery(key))
	if found == nil {
		return nil, rkerr.E(rkerr.NotFound, "key not found")
	}
	return found.(*record).value, nil
}

// GetNext returns the first stored record with a key strictly greater than
// key. The llrb package exposes only an ascending in-order walk, so this
// scans from the root; callers needing repeated forward iteration should
// prefer a dedicated cursor, which this engine does not yet provide.
func (e *memEngine) GetNext(key []byte) ([]byte, []byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.open {
		return nil, nil, rkerr.E(rkerr.BackendError, "engine is not open")
	}
	var nk, nv []byte
	e.tree.Do(func(c llrb.Comparable) bool {
		r := c.(*record)
		if bytesGreater(r.key, key) {
			nk, nv = r.key, r.value
			return true
		}
		return false
	})
	if nk == nil {
		return nil, nil, rkerr.E(rkerr.NotFound, "no key greater than query")
	}
	return nk, nv, nil
}

// GetPrev returns the last stored record with a key strictly less than
// key, found via a full ascending scan tracking the best candidate seen.
func (e *memEngine) GetPrev(key []byte) ([]byte, []byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.open {
		return nil, nil, rkerr.E(rkerr.BackendError, "engine is not open")
	}
	var pk, pv []byte
	e.tree.Do(func(c llrb.Comparable) bool {
		r := c.(*record)
		if bytesGreater(key, r.key) {
			pk, pv = r.key, r.value
		}
		return false
	})
	if pk == nil {
		return nil, nil, rkerr.E(rkerr.NotFound, "no key less than query")
	}
	return pk, pv, nil
}

func (e *memEngine) Del(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return rkerr.E(rkerr.BackendError, "engine is not open")
	}
	e.tree.Delete(newQuery(key))
	return nil
}

func (e *memEngine) Commit() error { return nil }

func (e *memEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tree = nil
	e.open = false
	return nil
}

func bytesGreater(a, b []byte) bool {
	return bytes.Compare(a, b) > 0
}
