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

package comm

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
)

// freeLoopbackAddr asks the OS for an unused TCP port on loopback.
func freeLoopbackAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding a free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestRPCBarrierAndGatherAcrossRanks(t *testing.T) {
	const n = 3
	addr := freeLoopbackAddr(t)
	peers := make([]string, n)
	for i := range peers {
		peers[i] = addr
	}

	worlds := make([]World, n)
	for rank := 0; rank < n; rank++ {
		w, err := NewRPC(rank, peers)
		if err != nil {
			t.Fatalf("NewRPC(%d) error: %v", rank, err)
		}
		worlds[rank] = w
	}

	var wg sync.WaitGroup
	results := make([][][]byte, n)
	for rank, w := range worlds {
		wg.Add(1)
		go func(rank int, w World) {
			defer wg.Done()
			if err := w.Barrier(context.Background()); err != nil {
				t.Errorf("rank %d Barrier error: %v", rank, err)
				return
			}
			res, err := w.Gather(context.Background(), 0, []byte(fmt.Sprintf("rank-%d", rank)))
			if err != nil {
				t.Errorf("rank %d Gather error: %v", rank, err)
				return
			}
			results[rank] = res
		}(rank, w)
	}
	wg.Wait()

	if results[0] == nil {
		t.Fatal("expected rank 0 to receive gathered results")
	}
	for r := 0; r < n; r++ {
		want := fmt.Sprintf("rank-%d", r)
		if string(results[0][r]) != want {
			t.Errorf("gathered[%d] = %q, want %q", r, results[0][r], want)
		}
	}
}
