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
	"sort"
	"strings"
	"sync"

	"github.com/hpc-io/rangekv/rkerr"
)

// universe is the shared state behind one NewLocal call: the root
// collective plus every sub-communicator ever requested via Sub, keyed by
// a canonical string of its member ranks so independent Sub calls for the
// same group converge on the same collectives without their own
// handshake.
type universe struct {
	mu     sync.Mutex
	groups map[string]*localGroup
}

type localGroup struct {
	members  []int // global ranks, in the order passed to Sub (or 0..n-1 for the root group)
	barrier  *collective
	gather   *collective
	bcast    *collective
}

func groupKey(members []int) string {
	sorted := append([]int(nil), members...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, r := range sorted {
		parts[i] = fmt.Sprintf("%d", r)
	}
	return strings.Join(parts, ",")
}

func (u *universe) group(members []int) *localGroup {
	key := groupKey(members)
	u.mu.Lock()
	defer u.mu.Unlock()
	g, ok := u.groups[key]
	if !ok {
		n := len(members)
		g = &localGroup{
			members: append([]int(nil), members...),
			barrier: newCollective(n),
			gather:  newCollective(n),
			bcast:   newCollective(n),
		}
		u.groups[key] = g
	}
	return g
}

// localWorld is a World backed by an in-process universe, suitable for
// tests and single-process simulation of a multi-rank job.
type localWorld struct {
	u          *universe
	globalRank int
	group      *localGroup
	pos        int // this rank's index within group.members
}

// NewLocal returns n Worlds sharing one in-process universe, one per
// rank 0..n-1. The returned Worlds are safe to hand to n separate
// goroutines, each acting as one rank.
func NewLocal(n int) []World {
	u := &universe{groups: make(map[string]*localGroup)}
	members := make([]int, n)
	for i := range members {
		members[i] = i
	}
	root := u.group(members)
	worlds := make([]World, n)
	for i := 0; i < n; i++ {
		worlds[i] = &localWorld{u: u, globalRank: i, group: root, pos: i}
	}
	return worlds
}

func (w *localWorld) Rank() int { return w.pos }
func (w *localWorld) Size() int { return len(w.group.members) }

func (w *localWorld) Barrier(ctx context.Context) error {
	_, err := w.group.barrier.join(ctx, w.pos, nil)
	return err
}

func (w *localWorld) Gather(ctx context.Context, root int, payload []byte) ([][]byte, error) {
	res, err := w.group.gather.join(ctx, w.pos, payload)
	if err != nil {
		return nil, err
	}
	if w.pos != root {
		return nil, nil
	}
	return res, nil
}

func (w *localWorld) Broadcast(ctx context.Context, root int, payload []byte) ([]byte, error) {
	var send []byte
	if w.pos == root {
		send = payload
	}
	res, err := w.group.bcast.join(ctx, w.pos, send)
	if err != nil {
		return nil, err
	}
	if root < 0 || root >= len(res) {
		return nil, rkerr.E(rkerr.InvalidArgument, "broadcast root %d out of range", root)
	}
	return res[root], nil
}

func (w *localWorld) Sub(ranks []int) (World, error) {
	pos := -1
	for i, r := range ranks {
		if r == w.globalRank {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, rkerr.E(rkerr.InvalidArgument, "rank %d is not a member of the requested sub-communicator", w.globalRank)
	}
	g := w.u.group(ranks)
	return &localWorld{u: w.u, globalRank: w.globalRank, group: g, pos: pos}, nil
}
