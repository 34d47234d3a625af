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

// Command rangekvd starts a rangekv node, the way the cockroach binary
// starts a node by joining the gossip network and exporting key ranges.
package main

import (
	"flag"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	// glog registers its flags (-v, -logtostderr, ...) on the stdlib
	// flag.CommandLine set; fold them into the cobra root's pflag set so
	// -v works the same whether the binary is invoked directly or via
	// the cobra command tree, the way runStart's callers expect the
	// standard flag package to already have parsed glog's flags.
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	root := &cobra.Command{
		Use:   "rangekvd",
		Short: "rangekvd runs a range-partitioned key-value index node",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newStatCmd())
	root.AddCommand(newManifestDumpCmd())

	if err := root.Execute(); err != nil {
		glog.Errorf("rangekvd exited with error: %v", err)
		os.Exit(1)
	}
}
