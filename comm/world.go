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

// Package comm models a job's communicator: the fixed set of ranks that
// cooperate to serve a set of indexes, and the collective operations they
// use to reconcile statistics across ranks. It is this codebase's
// replacement for an MPI communicator, expressed over Go-native
// concurrency primitives and net/rpc rather than a real MPI binding.
package comm

import "context"

// World is one rank's view of a communicator: its own rank and the
// communicator's size, plus the collective operations available on it.
// Every method must be called by every member rank of the World, with
// matching arguments (same root, same Sub membership), or the call blocks
// forever - the same requirement MPI places on its collectives.
type World interface {
	// Rank returns this process's position within the communicator,
	// 0-based.
	Rank() int
	// Size returns the number of ranks in the communicator.
	Size() int
	// Barrier blocks until every rank in the communicator has called
	// Barrier.
	Barrier(ctx context.Context) error
	// Gather sends payload to root and, on root only, returns every
	// rank's payload ordered by rank. Non-root callers receive a nil
	// slice.
	Gather(ctx context.Context, root int, payload []byte) ([][]byte, error)
	// Broadcast sends root's payload to every rank in the communicator,
	// root included. Only root's payload argument is meaningful; other
	// ranks should pass nil.
	Broadcast(ctx context.Context, root int, payload []byte) ([]byte, error)
	// Sub returns a new World scoped to ranks, a subset of this
	// communicator's global ranks. Every rank named in ranks must call
	// Sub with an identical ranks slice; a rank that calls Sub without
	// appearing in ranks gets an error. This mirrors MPI_Group_incl
	// followed by MPI_Comm_create.
	Sub(ranks []int) (World, error)
}
