// Copyright 2019 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sdnfv/nfresmgr/pkg/config"
	"github.com/sdnfv/nfresmgr/pkg/instrumentation"
	logger "github.com/sdnfv/nfresmgr/pkg/log"
	"github.com/sdnfv/nfresmgr/pkg/manager"
	"github.com/sdnfv/nfresmgr/pkg/version"
)

var log = logger.Default()

func main() {
	configHelp := flag.Bool("config-help", false, "Print configuration help and exit.")
	flag.Parse()

	if opt.configFile != "" {
		if err := config.ParseYAMLFile(opt.configFile); err != nil {
			log.Fatal("failed to load configuration file '%s': %v", opt.configFile, err)
		}
	}

	if *configHelp {
		config.Help()
		os.Exit(0)
	}

	if args := flag.Args(); len(args) > 0 {
		log.Error("unknown command line arguments: %s", strings.Join(args, ","))
		flag.Usage()
		os.Exit(1)
	}

	log.Info("nf-resmgr (version %s, build %s) starting...", version.Version, version.Build)

	if err := instrumentation.Setup(); err != nil {
		log.Fatal("failed to set up instrumentation: %v", err)
	}
	defer instrumentation.Finish()

	m := manager.New(manager.DefaultConfig(), new(discardingFreer), nil)
	if err := m.Start(); err != nil {
		log.Fatal("failed to start manager: %v", err)
	}
	defer m.Stop()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	log.Info("got signal %v, shutting down...", sig)
}

// discardingFreer is the default packet freer: the external dataplane
// router that would otherwise consume rx/tx ring payloads is out of
// scope for this module (spec.md §2 Non-goals), so packets handed back
// here are simply dropped.
type discardingFreer struct{}

func (*discardingFreer) FreePacket(interface{}) {}
