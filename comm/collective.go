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
	"sync"

	"github.com/hpc-io/rangekv/rkerr"
)

// collective is a reusable n-party rendezvous: every participant calls
// join with its rank and payload, and blocks until all n participants for
// the current round have joined, at which point every participant's call
// returns the full set of payloads ordered by rank. It then resets for
// the next round, so a collective can be reused across repeated
// Barrier/Gather/Broadcast calls the way a single MPI communicator is.
type collective struct {
	mu       sync.Mutex
	n        int
	arrived  int
	payloads [][]byte
	result   [][]byte
	done     chan struct{}
}

func newCollective(n int) *collective {
	return &collective{n: n, payloads: make([][]byte, n), done: make(chan struct{})}
}

func (c *collective) join(ctx context.Context, rank int, payload []byte) ([][]byte, error) {
	if rank < 0 || rank >= c.n {
		return nil, rkerr.E(rkerr.InvalidArgument, "rank %d out of range for communicator of size %d", rank, c.n)
	}

	c.mu.Lock()
	c.payloads[rank] = payload
	c.arrived++
	if c.arrived == c.n {
		res := c.payloads
		myDone := c.done
		c.payloads = make([][]byte, c.n)
		c.arrived = 0
		c.result = res
		c.done = make(chan struct{})
		close(myDone)
		c.mu.Unlock()
		return res, nil
	}
	myDone := c.done
	c.mu.Unlock()

	select {
	case <-myDone:
		c.mu.Lock()
		res := c.result
		c.mu.Unlock()
		return res, nil
	case <-ctx.Done():
		return nil, rkerr.Wrap(rkerr.CommunicationError, ctx.Err(), "waiting on rank %d's collective", rank)
	}
}
