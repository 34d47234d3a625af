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
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/biogo/store/llrb"

	"github.com/hpc-io/rangekv/rkerr"
)

const (
	opPut byte = 0
	opDel byte = 1
)

// fileEngine is a durable Engine: every Put/Del is appended to a log file
// before it is applied to the in-memory index, and Commit fsyncs the log.
// On Open, an existing log is replayed in order to rebuild the index, the
// same way a database's write-ahead log is replayed on crash recovery.
type fileEngine struct {
	mu   sync.RWMutex
	tree *llrb.Tree
	f    *os.File
	open bool
}

// NewFileEngine returns a durable, append-log-backed Engine.
func NewFileEngine() Engine {
	return &fileEngine{}
}

func (e *fileEngine) Open(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return rkerr.Wrap(rkerr.BackendError, err, "opening engine log %s", path)
	}
	e.tree = &llrb.Tree{}
	if err := replay(f, e.tree); err != nil {
		f.Close()
		return rkerr.Wrap(rkerr.BackendError, err, "replaying engine log %s", path)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return rkerr.Wrap(rkerr.BackendError, err, "seeking to end of engine log %s", path)
	}
	e.f = f
	e.open = true
	return nil
}

// replay reads every record from f from the current offset and applies it
// to tree in order, so later records override earlier ones for the same key.
func replay(f *os.File, tree *llrb.Tree) error {
	r := bufio.NewReader(f)
	for {
		var op byte
		if err := binary.Read(r, binary.LittleEndian, &op); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		var keyLen uint32
		if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return err
		}
		switch op {
		case opPut:
			var valLen uint32
			if err := binary.Read(r, binary.LittleEndian, &valLen); err != nil {
				return err
			}
			val := make([]byte, valLen)
			if _, err := io.ReadFull(r, val); err != nil {
				return err
			}
			tree.Insert(&record{key: key, value: val})
		case opDel:
			tree.Delete(newQuery(key))
		default:
			return rkerr.E(rkerr.BackendError, "corrupt engine log: unknown opcode %d", op)
		}
	}
}

func appendRecord(f *os.File, op byte, key, value []byte) error {
	buf := make([]byte, 0, 1+4+len(key)+4+len(value))
	buf = append(buf, op)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(key)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, key...)
	if op == opPut {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(value)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, value...)
	}
	_, err := f.Write(buf)
	return err
}

func (e *fileEngine) Put(key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return rkerr.E(rkerr.BackendError, "engine is not open")
	}
	if err := appendRecord(e.f, opPut, key, value); err != nil {
		return rkerr.Wrap(rkerr.BackendError, err, "appending put record")
	}
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	e.tree.Insert(&record{key: k, value: v})
	return nil
}

func (e *fileEngine) Get(key []byte) ([]byte, error) {
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

func (e *fileEngine) GetNext(key []byte) ([]byte, []byte, error) {
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

func (e *fileEngine) GetPrev(key []byte) ([]byte, []byte, error) {
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

func (e *fileEngine) Del(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return rkerr.E(rkerr.BackendError, "engine is not open")
	}
	if err := appendRecord(e.f, opDel, key, nil); err != nil {
		return rkerr.Wrap(rkerr.BackendError, err, "appending delete record")
	}
	e.tree.Delete(newQuery(key))
	return nil
}

func (e *fileEngine) Commit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return rkerr.E(rkerr.BackendError, "engine is not open")
	}
	return e.f.Sync()
}

func (e *fileEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return nil
	}
	err := e.f.Close()
	e.tree = nil
	e.open = false
	return err
}
