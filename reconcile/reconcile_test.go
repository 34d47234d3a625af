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

package reconcile

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

func TestFlushUnionsAcrossServersAndReachesClients(t *testing.T) {
	const n = 4 // ranks 0, 2 serve (server_factor=2); 1, 3 are clients
	worlds := comm.NewLocal(n)

	registries := make([]*index.Registry, n)
	for i := range registries {
		registries[i] = index.NewRegistry()
	}
	dir := t.TempDir()
	opts := index.CreateRemoteOptions{
		KeyType:      keyspace.SignedInt64,
		EngineType:   store.MemEngine,
		ServerFactor: 2,
		SliceSize:    1000,
		DBPath:       dir,
	}

	idxs := make([]*index.Index, n)
	var wg sync.WaitGroup
	for rank := 0; rank < n; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			idx, err := registries[rank].CreateRemote(context.Background(), worlds[rank], opts)
			if err != nil {
				t.Errorf("rank %d CreateRemote error: %v", rank, err)
				return
			}
			idxs[rank] = idx
		}(rank)
	}
	wg.Wait()

	// Seed each server's local stats with disjoint slice data.
	if err := idxs[0].Stats.Update(0, int64Key(10)); err != nil {
		t.Fatal(err)
	}
	if err := idxs[0].Stats.Update(0, int64Key(20)); err != nil {
		t.Fatal(err)
	}
	if err := idxs[2].Stats.Update(0, int64Key(5)); err != nil {
		t.Fatal(err)
	}
	if err := idxs[2].Stats.Update(1, int64Key(500)); err != nil {
		t.Fatal(err)
	}

	errs := make([]error, n)
	for rank := 0; rank < n; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			errs[rank] = Flush(context.Background(), worlds[rank], idxs[rank])
		}(rank)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d Flush error: %v", rank, err)
		}
	}

	wantMin0, _ := keyspace.NormalizeInt(int64Key(5), keyspace.SignedInt64)
	wantMax0, _ := keyspace.NormalizeInt(int64Key(20), keyspace.SignedInt64)
	for rank := 0; rank < n; rank++ {
		e, ok := idxs[rank].Stats.Get(0)
		if !ok {
			t.Fatalf("rank %d: expected slice 0 after flush", rank)
		}
		if e.IMin != wantMin0 || e.IMax != wantMax0 {
			t.Errorf("rank %d slice 0: IMin/IMax = %d/%d, want %d/%d", rank, e.IMin, e.IMax, wantMin0, wantMax0)
		}
		if e.Num != 3 {
			t.Errorf("rank %d slice 0: Num = %d, want 3", rank, e.Num)
		}
		if _, ok := idxs[rank].Stats.Get(1); !ok {
			t.Errorf("rank %d: expected slice 1 to have propagated to every rank", rank)
		}
	}
}
