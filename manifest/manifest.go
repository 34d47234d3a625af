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

// Package manifest reads and writes the fixed-layout on-disk record that
// pins an index's configuration, so a reopen can detect a configuration
// that no longer matches what created the index on disk.
package manifest

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hpc-io/rangekv/keyspace"
	"github.com/hpc-io/rangekv/rkerr"
	"github.com/hpc-io/rangekv/store"
)

// Manifest is the fixed-layout configuration record written alongside an
// index's first range server. Every field is a fixed-width 4- or 8-byte
// value so the on-disk size never depends on platform int size.
type Manifest struct {
	NumRangeServers uint32
	KeyType         keyspace.KeyType
	EngineType      store.EngineType
	ServerFactor    uint32
	SliceSize       uint64
	NumRanks        uint32
}

// byteLen is the on-disk size of the fixed layout: NumRangeServers (4),
// KeyType (4), EngineType (4), ServerFactor (4), SliceSize (8), NumRanks
// (4). Total 28 bytes, little-endian.
const byteLen = 4 + 4 + 4 + 4 + 8 + 4

// FileName returns the manifest's conventional file name for an index
// tagged typeTag ('p' primary, 's' secondary, 'l' local) with the given
// index id, owned by rank: <type_tag><id>_<rank>.
func FileName(typeTag byte, indexID uint32, rank int) string {
	return fmt.Sprintf("%c%d_%d", typeTag, indexID, rank)
}

// Write serializes m to dir/name, truncating any existing file.
func Write(dir, name string, m Manifest) error {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return rkerr.Wrap(rkerr.BackendError, err, "creating manifest %s", name)
	}
	defer f.Close()

	buf := make([]byte, byteLen)
	binary.LittleEndian.PutUint32(buf[0:4], m.NumRangeServers)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.KeyType))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(m.EngineType))
	binary.LittleEndian.PutUint32(buf[12:16], m.ServerFactor)
	binary.LittleEndian.PutUint64(buf[16:24], m.SliceSize)
	binary.LittleEndian.PutUint32(buf[24:28], m.NumRanks)
	if _, err := f.Write(buf); err != nil {
		return rkerr.Wrap(rkerr.BackendError, err, "writing manifest %s", name)
	}
	return f.Sync()
}

// Read parses the manifest at dir/name. A missing file is reported via
// rkerr.NotFound so a caller can distinguish "first creation" (write a new
// manifest) from "corrupt or truncated" (a BackendError).
func Read(dir, name string) (Manifest, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if os.IsNotExist(err) {
		return Manifest{}, rkerr.E(rkerr.NotFound, "manifest %s does not exist", name)
	}
	if err != nil {
		return Manifest{}, rkerr.Wrap(rkerr.BackendError, err, "opening manifest %s", name)
	}
	defer f.Close()

	buf := make([]byte, byteLen)
	if _, err := io.ReadFull(f, buf); err != nil {
		return Manifest{}, rkerr.Wrap(rkerr.BackendError, err, "reading manifest %s", name)
	}
	return Manifest{
		NumRangeServers: binary.LittleEndian.Uint32(buf[0:4]),
		KeyType:         keyspace.KeyType(binary.LittleEndian.Uint32(buf[4:8])),
		EngineType:      store.EngineType(binary.LittleEndian.Uint32(buf[8:12])),
		ServerFactor:    binary.LittleEndian.Uint32(buf[12:16]),
		SliceSize:       binary.LittleEndian.Uint64(buf[16:24]),
		NumRanks:        binary.LittleEndian.Uint32(buf[24:28]),
	}, nil
}

// Validate compares an on-disk manifest against the configuration the
// caller is about to reopen the index with. It returns a rkerr.
// ManifestMismatch naming the first field that disagrees; NumRangeServers
// is not compared since it is recomputed from ServerFactor/NumRanks rather
// than independently supplied.
func Validate(onDisk, wanted Manifest) error {
	switch {
	case onDisk.KeyType != wanted.KeyType:
		return rkerr.E(rkerr.ManifestMismatch, "manifest key type %s does not match configured %s", onDisk.KeyType, wanted.KeyType)
	case onDisk.EngineType != wanted.EngineType:
		return rkerr.E(rkerr.ManifestMismatch, "manifest engine type %s does not match configured %s", onDisk.EngineType, wanted.EngineType)
	case onDisk.ServerFactor != wanted.ServerFactor:
		return rkerr.E(rkerr.ManifestMismatch, "manifest server factor %d does not match configured %d", onDisk.ServerFactor, wanted.ServerFactor)
	case onDisk.SliceSize != wanted.SliceSize:
		return rkerr.E(rkerr.ManifestMismatch, "manifest slice size %d does not match configured %d", onDisk.SliceSize, wanted.SliceSize)
	case onDisk.NumRanks != wanted.NumRanks:
		return rkerr.E(rkerr.ManifestMismatch, "manifest rank count %d does not match communicator size %d", onDisk.NumRanks, wanted.NumRanks)
	}
	return nil
}
