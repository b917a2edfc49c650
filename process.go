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
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Kinds of process.  A service is launched as a chain of download,
// install and service; shutdown processes run a service's shutdown script.
const (
	KindDownload = "download"
	KindInstall  = "install"
	KindService  = "service"
	KindShutdown = "shutdown"
)

// Process is the record of one (potential) child process: what it runs,
// as whom, how often it has started, and what it costs.  A Process is
// owned by a Supervisor once managed, and all of its methods are called
// with the Supervisor's lock held.
type Process struct {
	id        uint64
	sup       *Supervisor
	kind      string
	spec      *LaunchSpec
	conf      *Config
	tenant    *Tenant
	env       []string
	pid       int
	mpid      int
	chain     *chain
	stage     int
	starts    int
	notBefore time.Time
	forkedAt  time.Time
	execAt    time.Time
	stopping  bool
	exits     int
	lastExit  Exit

	rss        int64
	faults     int64
	prevFaults int64
}

// ProcessInfo is a snapshot of a Process.  Changing it changes nothing.
type ProcessInfo struct {
	ID               uint64      `json:"id"`
	Kind             string      `json:"kind"`
	Name             string      `json:"name"`
	Pid              int         `json:"pid"`
	SupervisorPid    int         `json:"supervisorPid"`
	Uid              int         `json:"uid"`
	Gid              int         `json:"gid"`
	Root             string      `json:"root"`
	Starts           int         `json:"starts"`
	NotBefore        time.Time   `json:"notBefore"`
	ForkedAt         time.Time   `json:"forkedAt"`
	ExecAt           time.Time   `json:"execAt"`
	Stopping         bool        `json:"stopping"`
	Exits            int         `json:"exits"`
	LastStatus       int         `json:"lastStatus"`
	LastSignal       int         `json:"lastSignal"`
	Rss              int64       `json:"rss"`
	PageFaults       int64       `json:"pageFaults"`
	RecentPageFaults int64       `json:"recentPageFaults"`
	Spec             *LaunchSpec `json:"spec"`
}

// NewProcess returns an unmanaged service Process for spec.  Paths are
// resolved against conf.
func NewProcess(spec *LaunchSpec, conf *Config) *Process {
	return newProcess(KindService, spec, conf)
}

func newProcess(kind string, spec *LaunchSpec, conf *Config) *Process {
	return &Process{
		kind: kind,
		spec: spec,
		conf: conf,
		mpid: os.Getpid(),
	}
}

// derive returns a chore Process sharing our tenant and root, running
// script with opts.
func (p *Process) derive(kind string, script string, opts Options) *Process {
	d := newProcess(kind, p.spec.WithStartup(script, opts), p.conf)
	d.tenant = p.tenant
	return d
}

// assignIdentity gets a free uid and gid for the service.  It is called
// once, before anything in the service's chain forks.
func (p *Process) assignIdentity(a *IdentityAllocator) error {
	if p.tenant != nil {
		return nil
	}
	t, e := a.Allocate()
	if e != nil {
		return e
	}
	p.tenant = t
	return nil
}

func (p *Process) uid() int {
	if p.tenant == nil {
		return 0
	}
	return p.tenant.Uid
}

func (p *Process) gid() int {
	if p.tenant == nil {
		return 0
	}
	return p.tenant.Gid
}

// root is the working directory of the service this process belongs to.
func (p *Process) root() string {
	return p.conf.ServiceRoot(p.spec.Coordinate, p.spec.Port)
}

func (p *Process) name() string {
	return p.spec.Name() + "/" + p.kind
}

// script resolves the startup script.  Absolute paths are used as they
// are, relative ones live under the root, and no script at all means the
// root's scripts/startup.
func (p *Process) script() string {
	s := p.spec.StartupScript
	switch {
	case filepath.IsAbs(s):
		return s
	case s == "":
		return filepath.Join(p.root(), "scripts", "startup")
	default:
		return filepath.Join(p.root(), s)
	}
}

// argv is the script followed by each flag and its value, in order.
func (p *Process) argv() []string {
	opts := p.spec.StartupOptions
	if len(opts) > MaxOptionPairs {
		opts = opts[:MaxOptionPairs]
	}
	args := make([]string, 0, 1+2*len(opts))
	args = append(args, p.script())
	for _, o := range opts {
		args = append(args, o.Flag, o.Value)
	}
	return args
}

func (p *Process) environ() []string {
	env := append([]string{}, os.Environ()...)
	env = append(env, "NODEE_ROOT="+p.root())
	return append(env, p.env...)
}

func (p *Process) logger() *log.Logger {
	if p.sup != nil {
		return p.sup.logger
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

func (p *Process) logf(format string, v ...interface{}) {
	p.logger().Printf("[%s] "+format, append([]interface{}{p.name()}, v...)...)
}

// fork starts the process unless it is already running.  The child
// waits until notBefore before it execs, so a restart never comes sooner
// than one restart period after the previous start.
func (p *Process) fork() error {
	if p.pid != 0 {
		return nil
	}
	if p.sup == nil {
		return ErrNotFound
	}
	now := p.sup.now()
	p.starts++

	req := &ForkRequest{
		Path:      p.script(),
		Args:      p.argv(),
		Env:       p.environ(),
		Uid:       p.uid(),
		Gid:       p.gid(),
		NotBefore: p.notBefore,
		Logger:    p.sup.logger,
		Prefix:    "[" + p.name() + "] stdout> ",
	}
	pid, e := p.sup.forker.Fork(req)
	if e != nil {
		p.logf("Failed to fork %s: %v", req.Path, e)
		p.sup.metrics.forkFailed(p.kind)
		return fmt.Errorf("%w: %s: %v", ErrForkFailed, p.name(), e)
	}
	// Samples of the previous process mean nothing for this one.
	p.pid = pid
	p.rss = 0
	p.faults = 0
	p.prevFaults = 0
	p.forkedAt = now
	p.execAt = now
	p.notBefore = now.Add(p.spec.RestartPeriod)
	p.sup.tracked(p)

	delay := ""
	if d := req.NotBefore.Sub(now); d > 0 {
		p.execAt = req.NotBefore
		delay = " after " + d.String()
	}
	p.logf("Started pid %d (start %d)%s: %s", pid, p.starts, delay, req.Path)
	return nil
}

// restartable reports whether another restart is allowed.  The first
// start is not a restart.
func (p *Process) restartable() bool {
	return p.starts-1 < p.spec.MaxRestarts
}

// handleExit is told that our process has terminated.  It advances the
// chain, restarts, or leaves the process terminal.  Exit status does not
// matter for chain advancement: a failed download still leads to install.
func (p *Process) handleExit(ex Exit) {
	p.pid = 0
	p.exits++
	p.lastExit = ex
	if ex.Signal != 0 {
		p.logf("Killed by signal %d", ex.Signal)
	} else {
		p.logf("Exited with status %d", ex.Status)
	}

	if p.stopping {
		p.abandonChain()
		return
	}
	if next := p.next(); next != nil {
		p.chain.advanceTo(next)
		p.sup.metrics.chainAdvanced(next.kind)
		if e := next.fork(); e != nil {
			next.abandonChain()
			p.sup.retire(next)
		}
		return
	}
	if p.restartable() {
		p.sup.metrics.restarted(p.kind)
		p.fork()
	}
}

// next is the chain stage that follows this one, if any.
func (p *Process) next() *Process {
	if p.chain == nil {
		return nil
	}
	return p.chain.after(p)
}

// abandonChain retires the chain stages after this one, which will now
// never run.
func (p *Process) abandonChain() {
	if p.chain == nil {
		return
	}
	for _, q := range p.chain.rest(p) {
		if q.pid == 0 {
			p.sup.retire(q)
		}
	}
}

// stop asks the process to terminate and returns without waiting.  With a
// shutdown script, the script is run as the service's tenant with the pid
// in $PID.  Without one, or if the script cannot be started, the process
// is killed outright.
func (p *Process) stop() bool {
	if p.pid == 0 {
		return false
	}
	if p.stopping {
		return true
	}
	p.stopping = true
	if script := p.spec.ShutdownScript; script != "" {
		sd := p.shutdownProcess()
		p.sup.manage(sd)
		if e := sd.fork(); e == nil {
			p.logf("Stopping pid %d via %s", p.pid, sd.spec.StartupScript)
			return true
		}
		p.sup.retire(sd)
	}
	p.logf("Killing pid %d", p.pid)
	if e := p.sup.kill(p.pid); e != nil {
		p.logf("Failed to kill pid %d: %v", p.pid, e)
	}
	return true
}

func (p *Process) shutdownProcess() *Process {
	sd := p.derive(KindShutdown, p.spec.ShutdownScript, nil)
	sd.spec.ShutdownScript = ""
	sd.spec.MaxRestarts = 0
	sd.spec.RestartPeriod = 0
	sd.env = []string{"PID=" + strconv.Itoa(p.pid)}
	return sd
}

func (p *Process) setCurrentRss(kb int64) {
	p.rss = kb
}

func (p *Process) currentRss() int64 {
	return p.rss
}

func (p *Process) setPageFaults(n int64) {
	p.prevFaults = p.faults
	p.faults = n
}

func (p *Process) recentPageFaults() int64 {
	return p.faults - p.prevFaults
}

func (p *Process) info() ProcessInfo {
	return ProcessInfo{
		ID:               p.id,
		Kind:             p.kind,
		Name:             p.spec.Name(),
		Pid:              p.pid,
		SupervisorPid:    p.mpid,
		Uid:              p.uid(),
		Gid:              p.gid(),
		Root:             p.root(),
		Starts:           p.starts,
		NotBefore:        p.notBefore,
		ForkedAt:         p.forkedAt,
		ExecAt:           p.execAt,
		Stopping:         p.stopping,
		Exits:            p.exits,
		LastStatus:       p.lastExit.Status,
		LastSignal:       p.lastExit.Signal,
		Rss:              p.rss,
		PageFaults:       p.faults,
		RecentPageFaults: p.recentPageFaults(),
		Spec:             p.spec.Clone(),
	}
}
