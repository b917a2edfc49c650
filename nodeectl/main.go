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

// Command nodeectl talks to nodeed over its REST API.  It uses
// subcommands.
//
// The flags are
//
//	-a <address>	- server address, default is http://127.0.0.1:8321
//	-u <user:pass>	- user name & password for basic auth
//	-l <file>	- log file for the interactive display
//
// Subcommands are
//
//	list                - list every supervised process
//	start <file>|-      - launch the service described by a JSON spec
//	stop <pid>          - stop the process running as pid
//	info <pid>          - show detail for the process running as pid
//	status              - show host load, memory and per service use
//	artifacts           - list the artifacts on the node
//	log                 - show the supervisor log
//	ui                  - interactive display (the default)
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudname/nodee"
	"github.com/cloudname/nodee/nodeectl/ui"
	"github.com/cloudname/nodee/nodeectl/util"
	"github.com/cloudname/nodee/rest"
)

var addr string = "http://127.0.0.1:8321"
var auth string = ""
var logFile string = ""

func usage() {
	log.Fatalf("Usage: %s [-a <address>] [-u <user:pass>] <subcommand>",
		os.Args[0])
}

func showProcess(p *nodee.ProcessInfo) {
	up := "-"
	if p.Pid != 0 && !p.ExecAt.IsZero() {
		d := time.Since(p.ExecAt)
		// for printing second resolution is sufficient
		d -= d % time.Second
		up = d.String()
	}
	fmt.Printf("%-28s %-8s %7d %-8s %7s %4d %10s\n", p.Name, p.Kind,
		p.Pid, util.State(p), util.FormatKB(p.Rss), p.Starts, up)
}

func findPid(client *rest.Client, pid int) *nodee.ProcessInfo {
	items, e := client.Services()
	if e != nil {
		log.Fatalf("Failed: %v", e)
	}
	for i := range items {
		if items[i].Pid == pid {
			return &items[i]
		}
	}
	log.Fatalf("Failed: %v", nodee.ErrNotFound)
	return nil
}

func parsePid(s string) int {
	pid, e := strconv.Atoi(s)
	if e != nil || pid <= 0 {
		log.Fatalf("Bad pid: %q", s)
	}
	return pid
}

func readSpec(name string) *nodee.LaunchSpec {
	var r io.Reader = os.Stdin
	if name != "-" {
		f, e := os.Open(name)
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		defer f.Close()
		r = f
	}
	spec, e := nodee.ParseSpec(r)
	if e != nil {
		log.Fatalf("Failed to parse spec: %v", e)
	}
	return spec
}

func doUI(client *rest.Client, url string) {
	app := ui.NewApp(client, url)
	if logFile != "" {
		logger, closer := nodee.NewFileLogger(nodee.LogConfig{File: logFile})
		defer closer.Close()
		app.SetLogger(logger)
	}
	if e := app.Run(); e != nil {
		log.Fatalf("Failed: %v", e)
	}
}

func main() {
	flag.StringVar(&addr, "a", addr, "nodeed address")
	flag.StringVar(&auth, "u", auth, "user:pass authentication")
	flag.StringVar(&logFile, "l", logFile, "log file for the ui")
	flag.Parse()

	client := rest.NewClient(nil, addr)
	if auth != "" {
		a := strings.SplitN(auth, ":", 2)
		if len(a) != 2 {
			log.Fatalf("Bad user:pass supplied")
		}
		client.SetAuth(a[0], a[1])
	}

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"ui"}
	}

	switch args[0] {
	case "list", "services":
		if len(args) != 1 {
			usage()
		}
		items, e := client.Services()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		util.SortServices(items)
		for i := range items {
			showProcess(&items[i])
		}

	case "start":
		if len(args) != 2 {
			usage()
		}
		spec, e := client.StartService(readSpec(args[1]))
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		fmt.Printf("Launching %s\n", spec.Name())

	case "stop":
		if len(args) != 2 {
			usage()
		}
		spec, e := client.StopService(parsePid(args[1]))
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		fmt.Printf("Stopping %s\n", spec.Name())

	case "info":
		if len(args) != 2 {
			usage()
		}
		p := findPid(client, parsePid(args[1]))
		fmt.Printf("Name:       %s\n", p.Name)
		fmt.Printf("Stage:      %s\n", p.Kind)
		fmt.Printf("State:      %s\n", util.State(p))
		fmt.Printf("Pid:        %d\n", p.Pid)
		fmt.Printf("Uid/Gid:    %d/%d\n", p.Uid, p.Gid)
		fmt.Printf("Root:       %s\n", p.Root)
		fmt.Printf("Starts:     %d\n", p.Starts)
		fmt.Printf("Exits:      %d\n", p.Exits)
		fmt.Printf("RSS:        %s\n", util.FormatKB(p.Rss))
		fmt.Printf("Faults:     %d (%d recent)\n", p.PageFaults,
			p.RecentPageFaults)
		if p.Spec != nil {
			fmt.Printf("Artifact:   %s\n", p.Spec.ArtifactURL)
			fmt.Printf("Startup:   ")
			fmt.Printf(" %s", p.Spec.StartupScript)
			for _, o := range p.Spec.StartupOptions {
				fmt.Printf(" %s %s", o.Flag, o.Value)
			}
			fmt.Printf("\n")
		}

	case "status":
		if len(args) != 1 {
			usage()
		}
		hs, e := client.HostStatus()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		fmt.Printf("Host:       %s (supervisor pid %d)\n", hs.Hostname,
			hs.SupervisorPid)
		fmt.Printf("Load:       %.2f %.2f %.2f\n", hs.Load1, hs.Load5,
			hs.Load15)
		fmt.Printf("Memory:     %s total, %s free, %s available\n",
			util.FormatKB(int64(hs.MemTotal)),
			util.FormatKB(int64(hs.MemFree)),
			util.FormatKB(int64(hs.MemAvailable)))
		fmt.Printf("Running:    %d\n", hs.Running)
		for _, s := range hs.Services {
			fmt.Printf("%-28s %-8s %7d %6d %7s %7d\n", s.Name, s.Kind,
				s.Pid, s.Uid, util.FormatKB(s.Rss), s.RecentPageFaults)
		}

	case "artifacts":
		if len(args) != 1 {
			usage()
		}
		names, e := client.Artifacts()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		for _, name := range names {
			fmt.Println(name)
		}

	case "log":
		if len(args) != 1 {
			usage()
		}
		info, e := client.GetLog()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		for _, r := range info.Records {
			fmt.Printf("%s %s\n", r.Time.Format(time.StampMilli), r.Text)
		}

	case "ui", "top":
		doUI(client, addr)

	default:
		usage()
	}
}
