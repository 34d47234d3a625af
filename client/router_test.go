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

package client

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/hpc-io/rangekv/comm"
	"github.com/hpc-io/rangekv/index"
	"github.com/hpc-io/rangekv/keyspace"
	"github.com/hpc-io/rangekv/store"
)

func int64Key(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func createCollectively(t *testing.T, n int, worlds []comm.World, registries []*index.Registry, opts index.CreateRemoteOptions) []*index.Index {
	t.Helper()
	idxs := make([]*index.Index, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for rank := 0; rank < n; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			idxs[rank], errs[rank] = registries[rank].CreateRemote(context.Background(), worlds[rank], opts)
		}(rank)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d CreateRemote error: %v", rank, err)
		}
	}
	return idxs
}

func TestRouteDistributesAcrossServers(t *testing.T) {
	const n = 4
	worlds := comm.NewLocal(n)
	registries := make([]*index.Registry, n)
	for i := range registries {
		registries[i] = index.NewRegistry()
	}
	idxs := createCollectively(t, n, worlds, registries, index.CreateRemoteOptions{
		KeyType:      keyspace.SignedInt64,
		EngineType:   store.MemEngine,
		ServerFactor: 2,
		SliceSize:    1000,
		DBPath:       t.TempDir(),
	})

	r := NewRouter(idxs[0])
	seen := map[int]bool{}
	for v := int64(0); v < 40; v++ {
		rank, err := r.Route(int64Key(v * 1000))
		if err != nil {
			t.Fatalf("Route error: %v", err)
		}
		if rank != 0 && rank != 2 {
			t.Errorf("Route(%d) = rank %d, want 0 or 2 (the servers)", v, rank)
		}
		seen[rank] = true
	}
	if len(seen) != 2 {
		t.Errorf("expected keys to spread across both servers, saw ranks %v", seen)
	}
}

func TestRouteRangeFallsBackWithoutStats(t *testing.T) {
	const n = 4
	worlds := comm.NewLocal(n)
	registries := make([]*index.Registry, n)
	for i := range registries {
		registries[i] = index.NewRegistry()
	}
	idxs := createCollectively(t, n, worlds, registries, index.CreateRemoteOptions{
		KeyType:      keyspace.SignedInt64,
		EngineType:   store.MemEngine,
		ServerFactor: 2,
		SliceSize:    1000,
		DBPath:       t.TempDir(),
	})

	r := NewRouter(idxs[0])
	if _, ok := r.RouteRange(int64Key(0)); ok {
		t.Error("expected RouteRange to report no match before any stats exist")
	}

	if err := idxs[0].Stats.Update(0, int64Key(10)); err != nil {
		t.Fatal(err)
	}
	rank, ok := r.RouteRange(int64Key(10))
	if !ok {
		t.Fatal("expected RouteRange to find a slice after stats exist")
	}
	if rank != 0 {
		t.Errorf("RouteRange = rank %d, want 0", rank)
	}
}

func TestNextSecondaryResolvesAcrossOwner(t *testing.T) {
	const n = 2
	worlds := comm.NewLocal(n)
	registries := make([]*index.Registry, n)
	for i := range registries {
		registries[i] = index.NewRegistry()
	}
	idxs := createCollectively(t, n, worlds, registries, index.CreateRemoteOptions{
		KeyType:      keyspace.SignedInt64,
		EngineType:   store.MemEngine,
		ServerFactor: 1,
		SliceSize:    1000,
		DBPath:       t.TempDir(),
	})

	// Both ranks are servers under server_factor=1. NextSecondary only
	// traverses within the single rank that owns the query key, so seed
	// all three secondary keys directly on that same owner's engine.
	r := NewRouter(idxs[0])
	owners := map[int]*index.Index{0: idxs[0], 1: idxs[1]}

	ownerRank, err := r.Route(int64Key(5))
	if err != nil {
		t.Fatalf("Route error: %v", err)
	}
	owner := owners[ownerRank]
	for i, sk := range []int64{5, 15, 25} {
		enc, err := keyspace.EncodeComparable(int64Key(sk), keyspace.SignedInt64)
		if err != nil {
			t.Fatal(err)
		}
		primaryKey := int64Key(int64(100 + i))
		if err := owner.Engine.Put(enc, primaryKey); err != nil {
			t.Fatal(err)
		}
	}

	_, primary, err := r.NextSecondary(int64Key(5), owners)
	if err != nil {
		t.Fatalf("NextSecondary error: %v", err)
	}
	if binary.BigEndian.Uint64(primary) != 101 {
		t.Errorf("NextSecondary(5) primary = %d, want 101", binary.BigEndian.Uint64(primary))
	}
}
