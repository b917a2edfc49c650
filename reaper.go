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
	"context"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"
)

// Exit describes the termination of one child process.  Status is the
// exit status, or -1 if the child did not exit normally.  Signal is the
// signal that killed it, or 0.
type Exit struct {
	Pid    int
	Status int
	Signal int
}

// Reaper waits for child processes to terminate and reports each one on
// the channel exactly once.  Run returns when ctx is done.  Kick is a hint
// that a child was just created and may be called at any time.
type Reaper interface {
	Run(ctx context.Context, exits chan<- Exit)
	Kick()
}

// UnixReaper reaps every child of this process using wait4.  Nothing else
// in the process may wait for children, or their exits will be lost.
type UnixReaper struct {
	idle time.Duration
	kick chan struct{}
}

// NewReaper returns a Reaper that, when there are no children, rechecks at
// least every idle period.
func NewReaper(idle time.Duration) *UnixReaper {
	if idle <= 0 {
		idle = 2 * time.Second
	}
	return &UnixReaper{idle: idle, kick: make(chan struct{}, 1)}
}

// Kick implements Reaper.
func (r *UnixReaper) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

func decodeStatus(ws unix.WaitStatus) (status int, sig int) {
	status = -1
	if ws.Exited() {
		status = ws.ExitStatus()
	}
	if ws.Signaled() {
		sig = int(ws.Signal())
	}
	return status, sig
}

// reap collects every child that has already exited.
func (r *UnixReaper) reap(ctx context.Context, exits chan<- Exit) {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		switch err {
		case nil:
		case unix.EINTR:
			continue
		default:
			// ECHILD: we have no children to wait for.
			return
		}
		if pid <= 0 {
			return
		}
		if ws.Stopped() || ws.Continued() {
			continue
		}
		status, sig := decodeStatus(ws)
		select {
		case exits <- Exit{Pid: pid, Status: status, Signal: sig}:
		case <-ctx.Done():
			return
		}
	}
}

// Run implements Reaper.
func (r *UnixReaper) Run(ctx context.Context, exits chan<- Exit) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGCHLD)
	defer signal.Stop(sigs)

	timer := time.NewTimer(r.idle)
	defer timer.Stop()

	for {
		r.reap(ctx, exits)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.idle)

		select {
		case <-ctx.Done():
			return
		case <-sigs:
		case <-r.kick:
		case <-timer.C:
		}
	}
}

func killProcess(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}
