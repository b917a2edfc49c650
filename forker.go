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
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ForkRequest is everything needed to start one child process.
type ForkRequest struct {
	Path      string    // startup script, already resolved
	Args      []string  // argv, Args[0] is Path
	Env       []string  // environment; nil means inherit
	Uid       int       // 0 leaves the uid alone
	Gid       int       // 0 leaves the gid alone
	NotBefore time.Time // the child waits until then before exec
	Logger    *log.Logger
	Prefix    string // prefix for lines of child output
}

// Forker creates OS processes.  Fork returns the pid of the new child, or
// an error if no child could be created.  It must not wait for the child;
// exits are observed by the Reaper.
type Forker interface {
	Fork(req *ForkRequest) (int, error)
}

// ExecForker forks a copy of the running executable in exec helper mode,
// which drops privileges, sleeps until the request's NotBefore and then
// replaces itself with the startup script.  The helper keeps the pid, so
// the pid returned by Fork is the pid of the service.
type ExecForker struct {
	self   string
	logger *log.Logger
	devnul *os.File
}

// NewExecForker returns a Forker based on the current executable.  The
// executable must call RunExecHelper before doing anything else.
func NewExecForker(logger *log.Logger) (*ExecForker, error) {
	self, e := os.Executable()
	if e != nil {
		return nil, e
	}
	devnul, e := os.Open(os.DevNull)
	if e != nil {
		return nil, e
	}
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &ExecForker{self: self, logger: logger, devnul: devnul}, nil
}

func (f *ExecForker) doLog(r io.ReadCloser, logger *log.Logger, prefix string) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) != 0 {
			logger.Print(prefix, strings.TrimRight(line, "\n"))
		}
		if err != nil {
			r.Close()
			return
		}
	}
}

// Fork implements Forker.
func (f *ExecForker) Fork(req *ForkRequest) (int, error) {
	if len(req.Args) == 0 {
		return 0, fmt.Errorf("%w: empty argument vector", ErrForkFailed)
	}
	logger := req.Logger
	if logger == nil {
		logger = f.logger
	}

	var notBefore int64
	if !req.NotBefore.IsZero() {
		notBefore = req.NotBefore.UnixNano()
	}
	argv := make([]string, 0, len(req.Args)+2)
	argv = append(argv, ExecHelperName, strconv.FormatInt(notBefore, 10))
	argv = append(argv, req.Args...)

	env := req.Env
	if env == nil {
		env = os.Environ()
	}

	r, w, e := os.Pipe()
	if e != nil {
		return 0, fmt.Errorf("%w: %v", ErrForkFailed, e)
	}
	sys := &syscall.SysProcAttr{Setpgid: true}
	if req.Uid != 0 || req.Gid != 0 {
		sys.Credential = &syscall.Credential{
			Uid: uint32(req.Uid),
			Gid: uint32(req.Gid),
		}
	}
	attr := &syscall.ProcAttr{
		Env:   env,
		Files: []uintptr{f.devnul.Fd(), w.Fd(), w.Fd()},
		Sys:   sys,
	}

	pid, e := syscall.ForkExec(f.self, argv, attr)
	if e == syscall.EPERM && sys.Credential != nil {
		// Typically we are not root, e.g. under a debugger or in tests.
		logger.Printf("%scannot switch to uid %d gid %d: %v; running as %d",
			req.Prefix, req.Uid, req.Gid, e, os.Getuid())
		sys.Credential = nil
		pid, e = syscall.ForkExec(f.self, argv, attr)
	}
	w.Close()
	if e != nil {
		r.Close()
		return 0, fmt.Errorf("%w: %v", ErrForkFailed, e)
	}
	go f.doLog(r, logger, req.Prefix)
	return pid, nil
}
