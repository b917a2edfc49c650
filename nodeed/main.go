// Copyright 2026 The Nodee Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudname/nodee"
	"github.com/cloudname/nodee/rest"
)

var confFile string = ""
var addr string = ""
var baseDir string = ""
var scriptDir string = ""
var procDir string = ""

func main() {
	// Children start as copies of this program; they must become their
	// startup scripts before anything else happens.
	nodee.RunExecHelper()

	flag.StringVar(&confFile, "c", confFile, "configuration file")
	flag.StringVar(&addr, "a", addr, "listen address (overrides config)")
	flag.StringVar(&baseDir, "d", baseDir, "base directory (overrides config)")
	flag.StringVar(&scriptDir, "s", scriptDir, "script directory (overrides config)")
	flag.StringVar(&procDir, "p", procDir, "proc filesystem mount point")
	flag.Parse()

	conf := nodee.DefaultConfig()
	if confFile != "" {
		var e error
		if conf, e = nodee.LoadConfig(confFile); e != nil {
			log.Fatalf("Failed to load configuration: %v", e)
		}
	}
	if addr != "" {
		conf.Listen = addr
	}
	if baseDir != "" {
		conf.BaseDir = baseDir
	}
	if scriptDir != "" {
		conf.ScriptDir = scriptDir
	}
	if e := conf.Validate(); e != nil {
		log.Fatalf("%v", e)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	forker, e := nodee.NewExecForker(logger)
	if e != nil {
		log.Fatalf("Failed to set up forking: %v", e)
	}
	sup := nodee.NewSupervisor(forker, nodee.NewReaper(conf.ReapIdle))
	sup.SetLogger(logger)
	if fl, closer := nodee.NewFileLogger(conf.Log); fl != nil {
		sup.AddLogger(fl)
		defer closer.Close()
	}

	metrics := nodee.NewMetrics("nodee")
	sup.SetMetrics(metrics)

	ids := nodee.NewIdentityAllocator(conf.UIDs, conf.GIDs)
	metrics.WatchIdentities(ids)
	launcher := nodee.NewLauncher(sup, ids, conf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)

	h := rest.NewHandler(sup, launcher)
	h.SetMetrics(metrics)
	h.SetAuth(conf.Auth.User, conf.Auth.PasswordHash)

	if coll, e := nodee.NewCollector(sup, procDir, conf.CollectInterval); e != nil {
		sup.Logger().Printf("No process statistics: %v", e)
	} else {
		h.SetCollector(coll)
		go coll.Run(ctx)
	}

	arts := nodee.NewArtifactIndex(conf.ArtifactDir, sup.Logger())
	h.SetArtifacts(arts)
	go func() {
		if e := arts.Run(ctx); e != nil {
			sup.Logger().Printf("Artifact index stopped: %v", e)
		}
	}()

	srv := &http.Server{Addr: conf.Listen, Handler: h}
	go func() {
		if e := srv.ListenAndServe(); e != http.ErrServerClosed {
			log.Fatal(e)
		}
	}()
	sup.Logger().Printf("Listening on %s", conf.Listen)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Wait for a termination signal, and shutdown cleanly if we get it.
	// Supervised services keep running; the orchestrator decides their fate.
	s := <-sigs
	sup.Logger().Printf("Received %v, shutting down", s)
	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	srv.Shutdown(sctx)
	scancel()
	cancel()
	sup.Close()
}
