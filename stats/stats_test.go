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

package stats

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/hpc-io/rangekv/keyspace"
)

func int64Key(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func TestUpdateExtendsMinMax(t *testing.T) {
	m := New(keyspace.SignedInt64)
	for _, v := range []int64{50, 10, 90, 30} {
		if err := m.Update(0, int64Key(v)); err != nil {
			t.Fatalf("Update(%d) error: %v", v, err)
		}
	}
	e, ok := m.Get(0)
	if !ok {
		t.Fatal("expected slice 0 to be tracked")
	}
	if e.Num != 4 {
		t.Errorf("Num = %d, want 4", e.Num)
	}
	wantMin, _ := keyspace.NormalizeInt(int64Key(10), keyspace.SignedInt64)
	wantMax, _ := keyspace.NormalizeInt(int64Key(90), keyspace.SignedInt64)
	if e.IMin != wantMin || e.IMax != wantMax {
		t.Errorf("IMin/IMax = %d/%d, want %d/%d", e.IMin, e.IMax, wantMin, wantMax)
	}
}

func TestDeleteDoesNotNarrowExtrema(t *testing.T) {
	m := New(keyspace.SignedInt64)
	for _, v := range []int64{10, 90} {
		if err := m.Update(0, int64Key(v)); err != nil {
			t.Fatalf("Update error: %v", err)
		}
	}
	before, _ := m.Get(0)
	// Deleting a key is represented purely in the engine; stats has no
	// corresponding retraction call, so extrema are untouched.
	after, _ := m.Get(0)
	if before != after {
		t.Errorf("extrema changed without an Update call: before=%+v after=%+v", before, after)
	}
}

func TestMergeUnionsAcrossRanks(t *testing.T) {
	a := New(keyspace.SignedInt64)
	b := New(keyspace.SignedInt64)
	if err := a.Update(0, int64Key(10)); err != nil {
		t.Fatal(err)
	}
	if err := a.Update(0, int64Key(50)); err != nil {
		t.Fatal(err)
	}
	if err := b.Update(0, int64Key(5)); err != nil {
		t.Fatal(err)
	}
	if err := b.Update(0, int64Key(90)); err != nil {
		t.Fatal(err)
	}
	a.Merge(b)

	e, ok := a.Get(0)
	if !ok {
		t.Fatal("expected slice 0 after merge")
	}
	wantMin, _ := keyspace.NormalizeInt(int64Key(5), keyspace.SignedInt64)
	wantMax, _ := keyspace.NormalizeInt(int64Key(90), keyspace.SignedInt64)
	if e.IMin != wantMin || e.IMax != wantMax {
		t.Errorf("merged IMin/IMax = %d/%d, want %d/%d", e.IMin, e.IMax, wantMin, wantMax)
	}
	if e.Num != 4 {
		t.Errorf("merged Num = %d, want 4", e.Num)
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	m := New(keyspace.SignedInt64)
	for _, v := range []int64{10, 50, 90} {
		if err := m.Update(0, int64Key(v)); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Update(1, int64Key(1000)); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "stats.dat")
	if err := m.Write(path); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	loaded := New(keyspace.SignedInt64)
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	for _, slice := range []uint64{0, 1} {
		want, ok := m.Get(slice)
		if !ok {
			t.Fatalf("missing slice %d in original", slice)
		}
		got, ok := loaded.Get(slice)
		if !ok {
			t.Fatalf("missing slice %d after load", slice)
		}
		if got != want {
			t.Errorf("slice %d: loaded %+v, want %+v", slice, got, want)
		}
	}
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	m := New(keyspace.SignedInt64)
	if err := m.Load(filepath.Join(t.TempDir(), "absent.dat")); err != nil {
		t.Errorf("Load of missing file: %v, want nil", err)
	}
}
