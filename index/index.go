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

// Package index owns the registry of local and remote indexes a rank
// participates in: their key/engine configuration, their range-server
// membership, and the manifest/stats state tied to each.
package index

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/golang/glog"

	"github.com/hpc-io/rangekv/comm"
	"github.com/hpc-io/rangekv/keyspace"
	"github.com/hpc-io/rangekv/manifest"
	"github.com/hpc-io/rangekv/rangesrv"
	"github.com/hpc-io/rangekv/rkerr"
	"github.com/hpc-io/rangekv/stats"
	"github.com/hpc-io/rangekv/store"
)

// Kind distinguishes a local (single-rank, unpartitioned) index from a
// remote index, which is further distinguished into the one primary
// index of a job and any number of secondary indexes over the same data.
type Kind int

const (
	Local Kind = iota
	Primary
	Secondary
)

func (k Kind) String() string {
	switch k {
	case Local:
		return "Local"
	case Primary:
		return "Primary"
	case Secondary:
		return "Secondary"
	default:
		return "UnknownKind"
	}
}

func (k Kind) typeTag() byte {
	switch k {
	case Local:
		return 'l'
	case Primary:
		return 'p'
	default:
		return 's'
	}
}

// RangeServerEntry names one rank serving a remote index, and its
// 1-based range server number.
type RangeServerEntry struct {
	Rank           int
	RangeServerNum uint32
}

// RangeServerMap is the full membership of a remote index: every serving
// rank, and which of them is master (the one that coordinates stat
// reconciliation).
type RangeServerMap struct {
	Entries []RangeServerEntry
	Master  int
}

// NumServers returns len(Entries).
func (m RangeServerMap) NumServers() int { return len(m.Entries) }

func buildRangeServerMap(size int, serverFactor, numRangeServers uint32) RangeServerMap {
	var m RangeServerMap
	for r := 0; r < size; r++ {
		num, ok := rangesrv.IsRangeServer(r, size, serverFactor, numRangeServers)
		if !ok {
			continue
		}
		m.Entries = append(m.Entries, RangeServerEntry{Rank: r, RangeServerNum: num})
		m.Master = r
	}
	return m
}

// Index is one rank's view of either a local or a remote index: its
// fixed configuration, its range-server membership (remote only), and,
// for a rank that is itself a range server, the open engine and stats
// this rank owns.
type Index struct {
	ID              uint32
	Kind            Kind
	KeyType         keyspace.KeyType
	EngineType      store.EngineType
	ServerFactor    uint32
	SliceSize       uint64
	NumRangeServers uint32
	Servers         RangeServerMap

	// MyRangeServerNum is this rank's 1-based server number for the
	// index, or 0 if this rank does not serve it.
	MyRangeServerNum uint32
	// NumRanks is the communicator size the index was created over (1
	// for a local index), persisted in the manifest on Release.
	NumRanks uint32
	Engine   store.Engine
	Stats    *stats.Map

	// statsPath is where this rank's Stats are persisted on Release; it
	// is empty if this rank does not serve the index.
	statsPath string
	// manifestDir/manifestName locate the manifest this rank writes on
	// Release if it is range server number 1; manifestName is empty if
	// this rank does not own the manifest.
	manifestDir  string
	manifestName string
}

// IsMine reports whether the calling rank serves this index.
func (idx *Index) IsMine() bool { return idx.Kind == Local || idx.MyRangeServerNum > 0 }

// Registry tracks every index a rank has created, local and remote,
// assigning each a dense id within its own kind the way the source
// hash-table-backed index lists did.
type Registry struct {
	mu sync.RWMutex

	local        map[uint32]*Index
	remote       map[uint32]*Index
	nextLocal    uint32
	nextRemote   uint32
	haveSecond   bool

	// Abort is invoked on a fatal configuration mismatch (a reopened
	// remote index whose on-disk manifest disagrees with the
	// configuration asked for). It defaults to glog.Fatalf, matching the
	// source's MPI_Abort on manifest mismatch; tests override it to
	// observe the failure instead of killing the process.
	Abort func(reason string)
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		local:  make(map[uint32]*Index),
		remote: make(map[uint32]*Index),
		Abort:  func(reason string) { glog.Fatalf("%s", reason) },
	}
}

// CreateLocal creates an index visible only to the calling rank: no
// collective call, no range-server membership, always served by this
// rank alone.
func (r *Registry) CreateLocal(keyType keyspace.KeyType, engineType store.EngineType, dbPath string) (*Index, error) {
	if !keyType.Valid() {
		return nil, rkerr.E(rkerr.InvalidArgument, "invalid key type %d", keyType)
	}

	r.mu.Lock()
	id := r.nextLocal
	r.nextLocal++
	r.mu.Unlock()

	idx := &Index{
		ID:               id,
		Kind:             Local,
		KeyType:          keyType,
		EngineType:       engineType,
		MyRangeServerNum: 1,
		NumRanks:         1,
		Stats:            stats.New(keyType),
	}

	// A local index's manifest stores {0, key_type, engine_type, 0, 0, 1}:
	// no range-server membership applies, so every field but KeyType,
	// EngineType and NumRanks is left at its zero value.
	name := manifest.FileName(Local.typeTag(), id, 0)
	wanted := manifest.Manifest{
		KeyType:    keyType,
		EngineType: engineType,
		NumRanks:   1,
	}
	onDisk, err := manifest.Read(dbPath, name)
	switch {
	case rkerr.Is(err, rkerr.NotFound):
		if werr := manifest.Write(dbPath, name, wanted); werr != nil {
			return nil, werr
		}
	case err != nil:
		return nil, err
	default:
		if verr := manifest.Validate(onDisk, wanted); verr != nil {
			r.Abort(verr.Error())
			return nil, verr
		}
	}
	idx.manifestDir = dbPath
	idx.manifestName = name

	statsPath := filepath.Join(dbPath, fmt.Sprintf("%c%d_%d.stats", Local.typeTag(), id, 0))
	if err := idx.Stats.Load(statsPath); err != nil {
		return nil, err
	}
	idx.statsPath = statsPath

	eng := newEngine(engineType)
	path := filepath.Join(dbPath, fmt.Sprintf("local-%d.db", id))
	if err := eng.Open(path); err != nil {
		return nil, err
	}
	idx.Engine = eng

	r.mu.Lock()
	r.local[id] = idx
	r.mu.Unlock()
	return idx, nil
}

// CreateRemoteOptions bundles the configuration needed to create a remote
// (partitioned, range-server-owned) index.
type CreateRemoteOptions struct {
	KeyType      keyspace.KeyType
	EngineType   store.EngineType
	ServerFactor uint32
	SliceSize    uint64
	DBPath       string
}

// CreateRemote is a collective call: every rank in world must call it
// with identical options. It computes range-server membership, opens the
// engine and loads stats on ranks that serve the index, and validates
// (or writes) the manifest on the index's range server number 1.
//
// The first remote index created by a registry is the primary index;
// every later one is secondary.
func (r *Registry) CreateRemote(ctx context.Context, world comm.World, opts CreateRemoteOptions) (*Index, error) {
	if !opts.KeyType.Valid() {
		return nil, rkerr.E(rkerr.InvalidArgument, "invalid key type %d", opts.KeyType)
	}
	if opts.SliceSize == 0 {
		return nil, rkerr.E(rkerr.InvalidArgument, "slice size must be positive")
	}

	if err := world.Barrier(ctx); err != nil {
		return nil, rkerr.Wrap(rkerr.CommunicationError, err, "barrier before creating remote index")
	}

	r.mu.Lock()
	id := r.nextRemote
	r.nextRemote++
	kind := Primary
	if r.haveSecond || id > 0 {
		kind = Secondary
	}
	r.haveSecond = true
	r.mu.Unlock()

	numRangeServers := rangesrv.NumServers(world.Size(), opts.ServerFactor)
	servers := buildRangeServerMap(world.Size(), opts.ServerFactor, numRangeServers)

	idx := &Index{
		ID:              id,
		Kind:            kind,
		KeyType:         opts.KeyType,
		EngineType:      opts.EngineType,
		ServerFactor:    opts.ServerFactor,
		SliceSize:       opts.SliceSize,
		NumRangeServers: numRangeServers,
		NumRanks:        uint32(world.Size()),
		Servers:         servers,
	}

	idx.Stats = stats.New(opts.KeyType)

	myNum, ok := rangesrv.IsRangeServer(world.Rank(), world.Size(), opts.ServerFactor, numRangeServers)
	if ok {
		idx.MyRangeServerNum = myNum
		wanted := manifest.Manifest{
			NumRangeServers: numRangeServers,
			KeyType:         opts.KeyType,
			EngineType:      opts.EngineType,
			ServerFactor:    opts.ServerFactor,
			SliceSize:       opts.SliceSize,
			NumRanks:        uint32(world.Size()),
		}
		dir := opts.DBPath
		name := manifest.FileName(kind.typeTag(), id, world.Rank())

		if myNum == 1 {
			onDisk, err := manifest.Read(dir, name)
			switch {
			case rkerr.Is(err, rkerr.NotFound):
				if werr := manifest.Write(dir, name, wanted); werr != nil {
					return nil, werr
				}
			case err != nil:
				return nil, err
			default:
				if verr := manifest.Validate(onDisk, wanted); verr != nil {
					r.Abort(verr.Error())
					return nil, verr
				}
			}
			idx.manifestDir = dir
			idx.manifestName = name
		}

		statsPath := filepath.Join(dir, fmt.Sprintf("%c%d_%d.stats", kind.typeTag(), id, world.Rank()))
		if err := idx.Stats.Load(statsPath); err != nil {
			return nil, err
		}
		idx.statsPath = statsPath

		eng := newEngine(opts.EngineType)
		enginePath := filepath.Join(dir, fmt.Sprintf("%c%d_%d.db", kind.typeTag(), id, world.Rank()))
		if err := eng.Open(enginePath); err != nil {
			return nil, err
		}
		idx.Engine = eng
	}

	r.mu.Lock()
	r.remote[id] = idx
	r.mu.Unlock()
	return idx, nil
}

// Local returns the local index with the given id, if any.
func (r *Registry) Local(id uint32) (*Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.local[id]
	return idx, ok
}

// Remote returns the remote index with the given id, if any.
func (r *Registry) Remote(id uint32) (*Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.remote[id]
	return idx, ok
}

// Release commits and closes every engine this rank opened, writing each
// served index's stats and, for whichever rank is its range server
// number 1, its manifest, before the engine is closed; then it drops
// every index from the registry. Call once at job shutdown.
func (r *Registry) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	releaseOne := func(idx *Index) {
		if idx.Engine == nil {
			return
		}
		record(idx.Engine.Commit())
		if idx.statsPath != "" {
			record(idx.Stats.Write(idx.statsPath))
		}
		if idx.MyRangeServerNum == 1 && idx.manifestName != "" {
			m := manifest.Manifest{
				NumRangeServers: idx.NumRangeServers,
				KeyType:         idx.KeyType,
				EngineType:      idx.EngineType,
				ServerFactor:    idx.ServerFactor,
				SliceSize:       idx.SliceSize,
				NumRanks:        idx.NumRanks,
			}
			record(manifest.Write(idx.manifestDir, idx.manifestName, m))
		}
		record(idx.Engine.Close())
	}

	for id, idx := range r.local {
		releaseOne(idx)
		delete(r.local, id)
	}
	for id, idx := range r.remote {
		releaseOne(idx)
		delete(r.remote, id)
	}
	return firstErr
}

func newEngine(t store.EngineType) store.Engine {
	if t == store.FileEngine {
		return store.NewFileEngine()
	}
	return store.NewMemEngine()
}
