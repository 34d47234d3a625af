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

package manifest

import (
	"testing"

	"github.com/hpc-io/rangekv/keyspace"
	"github.com/hpc-io/rangekv/rkerr"
	"github.com/hpc-io/rangekv/store"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	name := FileName('p', 0, 2)
	m := Manifest{
		NumRangeServers: 2,
		KeyType:         keyspace.SignedInt64,
		EngineType:      store.FileEngine,
		ServerFactor:    2,
		SliceSize:       1000,
		NumRanks:        4,
	}
	if err := Write(dir, name, m); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	got, err := Read(dir, name)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if got != m {
		t.Errorf("round trip = %+v, want %+v", got, m)
	}
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	_, err := Read(t.TempDir(), "p0_0")
	if !rkerr.Is(err, rkerr.NotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestValidateDetectsMismatch(t *testing.T) {
	onDisk := Manifest{KeyType: keyspace.SignedInt64, EngineType: store.FileEngine, ServerFactor: 2, SliceSize: 1000, NumRanks: 4}
	wanted := onDisk
	if err := Validate(onDisk, wanted); err != nil {
		t.Fatalf("expected matching manifests to validate, got %v", err)
	}

	wanted.SliceSize = 500
	err := Validate(onDisk, wanted)
	if !rkerr.Is(err, rkerr.ManifestMismatch) {
		t.Errorf("err = %v, want ManifestMismatch", err)
	}
}
