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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hpc-io/rangekv/manifest"
	"github.com/hpc-io/rangekv/rangekvcfg"
)

func newManifestDumpCmd() *cobra.Command {
	var dir, name, writeConfig string

	cmd := &cobra.Command{
		Use:   "manifest-dump",
		Short: "print an index's on-disk manifest, optionally emitting a matching config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Read(dir, name)
			if err != nil {
				return err
			}
			fmt.Printf("num_range_servers: %d\n", m.NumRangeServers)
			fmt.Printf("key_type: %s\n", m.KeyType)
			fmt.Printf("engine_type: %s\n", m.EngineType)
			fmt.Printf("server_factor: %d\n", m.ServerFactor)
			fmt.Printf("slice_size: %d\n", m.SliceSize)
			fmt.Printf("num_ranks: %d\n", m.NumRanks)

			if writeConfig == "" {
				return nil
			}

			o := rangekvcfg.Defaults()
			o.DBPath = dir
			o.KeyType = m.KeyType
			o.EngineType = m.EngineType
			o.ServerFactor = m.ServerFactor
			o.SliceSize = m.SliceSize
			switch m.KeyType.String() {
			case "SignedInt32":
				o.KeyTypeName = "int32"
			case "SignedInt64":
				o.KeyTypeName = "int64"
			case "Float32":
				o.KeyTypeName = "float32"
			case "Float64":
				o.KeyTypeName = "float64"
			case "ByteString":
				o.KeyTypeName = "byte"
			case "UnicodeString":
				o.KeyTypeName = "unicode"
			}
			if m.EngineType.String() == "FileEngine" {
				o.EngineName = "file"
			} else {
				o.EngineName = "mem"
			}

			if err := rangekvcfg.WriteFile(writeConfig, o); err != nil {
				return err
			}
			fmt.Printf("wrote config to %s\n", writeConfig)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&dir, "dir", ".", "directory containing the manifest file")
	fs.StringVar(&name, "name", "", "manifest file name, e.g. p0_1")
	fs.StringVar(&writeConfig, "write_config", "", "if set, write a rangekvcfg YAML config matching this manifest to this path")
	cmd.MarkFlagRequired("name")

	return cmd
}
