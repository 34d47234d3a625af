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
	"path/filepath"
	"testing"

	"github.com/hpc-io/rangekv/rkerr"
)

func putSeveral(t *testing.T, e Engine) {
	t.Helper()
	for _, kv := range [][2]string{{"a", "1"}, {"c", "3"}, {"b", "2"}} {
		if err := e.Put([]byte(kv[0]), []byte(kv[1])); err != nil {
			t.Fatalf("Put(%s) error: %v", kv[0], err)
		}
	}
}

func TestMemEngineGetPutDel(t *testing.T) {
	e := NewMemEngine()
	if err := e.Open(""); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	putSeveral(t, e)

	v, err := e.Get([]byte("b"))
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !bytes.Equal(v, []byte("2")) {
		t.Errorf("Get(b) = %q, want %q", v, "2")
	}

	if err := e.Del([]byte("b")); err != nil {
		t.Fatalf("Del error: %v", err)
	}
	if _, err := e.Get([]byte("b")); !rkerr.Is(err, rkerr.NotFound) {
		t.Errorf("Get after Del: err = %v, want NotFound", err)
	}
}

func TestMemEngineGetNextPrev(t *testing.T) {
	e := NewMemEngine()
	if err := e.Open(""); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	putSeveral(t, e)

	nk, _, err := e.GetNext([]byte("a"))
	if err != nil {
		t.Fatalf("GetNext error: %v", err)
	}
	if !bytes.Equal(nk, []byte("b")) {
		t.Errorf("GetNext(a) = %q, want %q", nk, "b")
	}

	pk, _, err := e.GetPrev([]byte("c"))
	if err != nil {
		t.Fatalf("GetPrev error: %v", err)
	}
	if !bytes.Equal(pk, []byte("b")) {
		t.Errorf("GetPrev(c) = %q, want %q", pk, "b")
	}

	if _, _, err := e.GetNext([]byte("c")); !rkerr.Is(err, rkerr.NotFound) {
		t.Errorf("GetNext(c) err = %v, want NotFound", err)
	}
}

func TestFileEngineReopenReplaysLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slice.log")

	e := NewFileEngine()
	if err := e.Open(path); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	putSeveral(t, e)
	if err := e.Del([]byte("a")); err != nil {
		t.Fatalf("Del error: %v", err)
	}
	if err := e.Commit(); err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	e2 := NewFileEngine()
	if err := e2.Open(path); err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer e2.Close()

	if _, err := e2.Get([]byte("a")); !rkerr.Is(err, rkerr.NotFound) {
		t.Errorf("Get(a) after reopen: err = %v, want NotFound (deleted before close)", err)
	}
	v, err := e2.Get([]byte("b"))
	if err != nil {
		t.Fatalf("Get(b) after reopen error: %v", err)
	}
	if !bytes.Equal(v, []byte("2")) {
		t.Errorf("Get(b) after reopen = %q, want %q", v, "2")
	}
}
