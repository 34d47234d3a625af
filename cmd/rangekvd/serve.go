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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hpc-io/rangekv/client"
	"github.com/hpc-io/rangekv/comm"
	"github.com/hpc-io/rangekv/index"
	"github.com/hpc-io/rangekv/rangekvcfg"
	"github.com/hpc-io/rangekv/reconcile"
)

func newServeCmd() *cobra.Command {
	o := rangekvcfg.Defaults()
	var rank, size int
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start a rangekv node by joining (or simulating) a job communicator",
		Long: `
Start a rangekv node. With -rpc_addr and -peers set, the node joins a
networked job over the RPC communicator backend, one process per rank.
Without them, serve simulates the whole job in a single process: -size
ranks run as goroutines sharing an in-process communicator, which is
the easiest way to exercise a multi-rank job without standing up
multiple hosts.

A node exports an HTTP debug interface with the following endpoints,
when -http_addr is set:

  Health check:  /healthz
  Stat summary:  /debug/stats
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.ResolveNames(); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)
			go func() {
				<-c
				glog.Info("received interrupt, shutting down")
				cancel()
			}()

			if o.RPCAddr != "" && len(o.Peers) > 0 {
				return runNetworked(ctx, o, rank, httpAddr)
			}
			return runLocalSimulation(ctx, o, size, httpAddr)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&o.DBPath, "db_path", o.DBPath, "directory each rank stores its engine and manifest files under")
	fs.StringVar(&o.DBName, "db_name", o.DBName, "name of the index")
	fs.StringVar(&o.EngineName, "engine", o.EngineName, "storage back end: mem or file")
	fs.StringVar(&o.KeyTypeName, "key_type", o.KeyTypeName, "key comparator: int32, int64, float32, float64, byte, or unicode")
	fs.Uint32Var(&o.ServerFactor, "server_factor", o.ServerFactor, "rank spacing between consecutive range servers")
	fs.Uint64Var(&o.SliceSize, "slice_size", o.SliceSize, "number of normalized key values per slice")
	fs.StringVar(&o.RPCAddr, "rpc_addr", "", "host:port this rank's RPC communicator listens on; empty runs the in-process simulation")
	var peers string
	fs.StringVar(&peers, "peers", "", "comma-separated host:port list of every rank's rpc_addr, ordered by rank")
	fs.IntVar(&rank, "rank", 0, "this process's rank, used with -rpc_addr")
	fs.IntVar(&size, "size", 4, "number of ranks to simulate in-process when -rpc_addr is unset")
	fs.StringVar(&httpAddr, "http_addr", "", "host:port to bind for the debug HTTP interface; empty disables it")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if peers != "" {
			o.Peers = splitPeers(peers)
		}
		return nil
	}

	return cmd
}

func splitPeers(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// runNetworked joins a single rank to a networked job over comm.RPC.
func runNetworked(ctx context.Context, o rangekvcfg.Options, rank int, httpAddr string) error {
	world, err := comm.NewRPC(rank, o.Peers)
	if err != nil {
		return fmt.Errorf("joining RPC communicator: %w", err)
	}
	reg, idx, err := createAndServe(ctx, world, o, httpAddr)
	if err != nil {
		return err
	}
	glog.Infof("rank %d serving index %q (range server: %v)", rank, o.DBName, idx.IsMine())
	<-ctx.Done()
	return reg.Release()
}

// runLocalSimulation runs the whole job as goroutines sharing an
// in-process communicator, the way a single developer box can stand in
// for a multi-host gossip network during development.
func runLocalSimulation(ctx context.Context, o rangekvcfg.Options, size int, httpAddr string) error {
	worlds := comm.NewLocal(size)
	regs := make([]*index.Registry, size)

	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < size; rank++ {
		rank := rank
		g.Go(func() error {
			rankOpts := o
			rankOpts.DBPath = filepath.Join(o.DBPath, "rank"+strconv.Itoa(rank))
			if err := os.MkdirAll(rankOpts.DBPath, 0755); err != nil {
				return fmt.Errorf("rank %d: creating db path: %w", rank, err)
			}
			addr := ""
			if httpAddr != "" && rank == 0 {
				addr = httpAddr
			}
			reg, _, err := createAndServe(gctx, worlds[rank], rankOpts, addr)
			regs[rank] = reg
			if err != nil {
				return fmt.Errorf("rank %d: %w", rank, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	glog.Infof("simulated job of %d ranks running; serving on %s if set", size, httpAddr)

	<-ctx.Done()
	for rank, reg := range regs {
		if reg != nil {
			if err := reg.Release(); err != nil {
				glog.Warningf("rank %d: error releasing index: %v", rank, err)
			}
		}
	}
	return nil
}

// createAndServe creates (or reopens) the index collectively over world,
// starts the debug HTTP server if addr is non-empty, and performs one
// stat-flush round so every rank's view of slice extrema is current
// before the node begins serving.
func createAndServe(ctx context.Context, world comm.World, o rangekvcfg.Options, addr string) (*index.Registry, *index.Index, error) {
	reg := index.NewRegistry()
	idx, err := reg.CreateRemote(ctx, world, index.CreateRemoteOptions{
		KeyType:      o.KeyType,
		EngineType:   o.EngineType,
		ServerFactor: o.ServerFactor,
		SliceSize:    o.SliceSize,
		DBPath:       o.DBPath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating index: %w", err)
	}

	if err := reconcile.Flush(ctx, world, idx); err != nil {
		return nil, nil, fmt.Errorf("initial stat flush: %w", err)
	}

	if addr != "" {
		router := client.NewRouter(idx)
		srv := newAdminServer(idx, router)
		go func() {
			if err := srv.ListenAndServe(addr); err != nil {
				glog.Warningf("admin server on %s exited: %v", addr, err)
			}
		}()
	}

	return reg, idx, nil
}
