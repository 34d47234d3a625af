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
	"net/rpc"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/hpc-io/rangekv/rkerr"
)

const (
	opBarrier   = "barrier"
	opGather    = "gather"
	opBroadcast = "broadcast"
)

// JoinArgs is the payload of one rank's call into the coordinator for one
// collective operation of one round.
type JoinArgs struct {
	Group   string
	Op      string
	Rank    int
	Size    int
	Payload []byte
}

// JoinReply carries back every participant's payload for the round,
// ordered by rank within Group.
type JoinReply struct {
	Results [][]byte
}

// coordinator hosts the collectives for every group any rank has joined.
// Exactly one rank in an RPC World runs a coordinator; every rank,
// including that one, talks to it exclusively through RPC calls, so the
// collective logic never special-cases the local case.
type coordinator struct {
	mu     sync.Mutex
	groups map[string]*rpcGroup
}

type rpcGroup struct {
	barrier *collective
	gather  *collective
	bcast   *collective
}

func (c *coordinator) group(key string, size int) *rpcGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.groups[key]
	if !ok {
		g = &rpcGroup{
			barrier: newCollective(size),
			gather:  newCollective(size),
			bcast:   newCollective(size),
		}
		c.groups[key] = g
	}
	return g
}

// Join is the sole RPC-exposed method: every collective call from every
// rank, for every group, funnels through it.
func (c *coordinator) Join(args *JoinArgs, reply *JoinReply) error {
	g := c.group(args.Group, args.Size)
	var col *collective
	switch args.Op {
	case opBarrier:
		col = g.barrier
	case opGather:
		col = g.gather
	case opBroadcast:
		col = g.bcast
	default:
		return rkerr.E(rkerr.InvalidArgument, "unknown collective op %q", args.Op)
	}
	res, err := col.join(context.Background(), args.Rank, args.Payload)
	if err != nil {
		return err
	}
	reply.Results = res
	return nil
}

// rpcWorld is a World whose collectives are coordinated by a single rank
// (always global rank 0 of the job) reachable over net/rpc. Every call,
// including rank 0's own, is dispatched as an RPC so the wire protocol is
// exercised uniformly.
type rpcWorld struct {
	globalRank int
	pos        int      // position within the current group's ranks
	members    []int    // global ranks in this group, in Sub-call order
	groupKey   string
	client     *rpc.Client
}

// NewRPC starts (on rank 0) or connects to (on every other rank) the
// coordinator for a communicator of len(peers) ranks. peers[0] must be a
// dialable "host:port" address; it is the coordinator's address,
// regardless of which rank happens to own it.
func NewRPC(selfRank int, peers []string) (World, error) {
	if selfRank < 0 || selfRank >= len(peers) {
		return nil, rkerr.E(rkerr.InvalidArgument, "self rank %d out of range for %d peers", selfRank, len(peers))
	}
	coordAddr := peers[0]

	if selfRank == 0 {
		if err := serveCoordinator(coordAddr); err != nil {
			return nil, err
		}
	}

	client, err := rpc.Dial("tcp", coordAddr)
	if err != nil {
		return nil, rkerr.Wrap(rkerr.CommunicationError, err, "dialing coordinator at %s", coordAddr)
	}

	members := make([]int, len(peers))
	for i := range members {
		members[i] = i
	}
	return &rpcWorld{
		globalRank: selfRank,
		pos:        selfRank,
		members:    members,
		groupKey:   "root",
		client:     client,
	}, nil
}

func serveCoordinator(addr string) error {
	srv := rpc.NewServer()
	coord := &coordinator{groups: make(map[string]*rpcGroup)}
	if err := srv.RegisterName("Collective", coord); err != nil {
		return rkerr.Wrap(rkerr.CommunicationError, err, "registering collective coordinator")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return rkerr.Wrap(rkerr.CommunicationError, err, "listening on %s", addr)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				glog.Warningf("comm: coordinator accept error: %v", err)
				return
			}
			go srv.ServeConn(conn)
		}
	}()
	return nil
}

func (w *rpcWorld) Rank() int { return w.pos }
func (w *rpcWorld) Size() int { return len(w.members) }

func (w *rpcWorld) call(op string, payload []byte) ([][]byte, error) {
	args := &JoinArgs{Group: w.groupKey, Op: op, Rank: w.pos, Size: len(w.members), Payload: payload}
	reply := &JoinReply{}
	if err := w.client.Call("Collective.Join", args, reply); err != nil {
		return nil, rkerr.Wrap(rkerr.CommunicationError, err, "rank %d calling %s", w.globalRank, op)
	}
	return reply.Results, nil
}

func (w *rpcWorld) Barrier(ctx context.Context) error {
	_, err := w.call(opBarrier, nil)
	return err
}

func (w *rpcWorld) Gather(ctx context.Context, root int, payload []byte) ([][]byte, error) {
	res, err := w.call(opGather, payload)
	if err != nil {
		return nil, err
	}
	if w.pos != root {
		return nil, nil
	}
	return res, nil
}

func (w *rpcWorld) Broadcast(ctx context.Context, root int, payload []byte) ([]byte, error) {
	var send []byte
	if w.pos == root {
		send = payload
	}
	res, err := w.call(opBroadcast, send)
	if err != nil {
		return nil, err
	}
	if root < 0 || root >= len(res) {
		return nil, rkerr.E(rkerr.InvalidArgument, "broadcast root %d out of range", root)
	}
	return res[root], nil
}

// Sub builds a new World scoped to ranks, coordinated by the same
// coordinator under a derived group key so independent Sub calls for the
// same membership converge without any extra handshake.
func (w *rpcWorld) Sub(ranks []int) (World, error) {
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
	parts := make([]string, len(ranks))
	for i, r := range ranks {
		parts[i] = fmt.Sprintf("%d", r)
	}
	return &rpcWorld{
		globalRank: w.globalRank,
		pos:        pos,
		members:    append([]int(nil), ranks...),
		groupKey:   w.groupKey + "/" + strings.Join(parts, ","),
		client:     w.client,
	}, nil
}
