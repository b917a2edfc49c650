//go:build unix

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

package nodee

import (
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"
)

// ExecHelperName is argv[0] of a child that has not yet become its
// startup script.
const ExecHelperName = "nodee-exec"

// exitNoInput is EX_NOINPUT from sysexits.h.
const exitNoInput = 66

// RunExecHelper turns the process into the requested startup script if it
// was started by an ExecForker, and returns otherwise.  Programs using
// ExecForker (including test binaries) must call it first thing in main
// or TestMain.
//
// The helper sleeps until the requested time, then execs.  If exec fails
// the process exits with status 66.
func RunExecHelper() {
	if len(os.Args) < 3 || os.Args[0] != ExecHelperName {
		return
	}
	if ns, e := strconv.ParseInt(os.Args[1], 10, 64); e == nil && ns > 0 {
		if d := time.Until(time.Unix(0, ns)); d > 0 {
			time.Sleep(d)
		}
	}
	e := syscall.Exec(os.Args[2], os.Args[2:], os.Environ())
	fmt.Fprintf(os.Stderr, "exec %s: %v\n", os.Args[2], e)
	os.Exit(exitNoInput)
}
