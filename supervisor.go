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
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// Supervisor owns every Process it manages.  It starts them through a
// Forker, learns of their termination from a Reaper, and applies each exit
// to the right record.  All state is guarded by one lock, which is held
// across forks so that a pid is always indexed before its exit can be
// applied.
type Supervisor struct {
	procs   map[uint64]*Process
	byPid   map[int]uint64
	nextID  uint64
	forker  Forker
	reaper  Reaper
	kill    func(pid int) error
	now     func() time.Time
	logger  *log.Logger
	stderr  *log.Logger
	mlog    *MultiLogger
	log     *Log
	metrics *Metrics
	exits   chan Exit
	serial  int64
	cvs     map[*sync.Cond]bool
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mx      sync.Mutex
}

func (s *Supervisor) lock() {
	s.mx.Lock()
}

func (s *Supervisor) unlock() {
	s.mx.Unlock()
}

// bumpSerial notes a change of state and wakes watchers.  Call with
// lock held.
func (s *Supervisor) bumpSerial() {
	s.serial++
	for cv := range s.cvs {
		cv.Broadcast()
	}
}

// WatchSerial waits until the serial number differs from old, or until
// expire has passed, and returns the current serial.  An expire of 0
// just polls.
func (s *Supervisor) WatchSerial(old int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&s.mx)
	var timer *time.Timer

	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			s.lock()
			expired = true
			cv.Broadcast()
			s.unlock()
		})
	} else {
		expired = true
	}

	s.lock()
	s.cvs[cv] = true
	rv := s.serial
	for rv == old && !expired {
		cv.Wait()
		rv = s.serial
	}
	delete(s.cvs, cv)
	s.unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}

// Serial changes every time a process is forked, exits or is retired.
func (s *Supervisor) Serial() int64 {
	s.lock()
	defer s.unlock()
	return s.serial
}

// SetLogger replaces the default stderr logger.  Other destinations and
// the in-memory log are unaffected.
func (s *Supervisor) SetLogger(l *log.Logger) {
	if s.stderr != nil {
		s.mlog.DelLogger(s.stderr)
	}
	s.stderr = l
	if l != nil {
		s.mlog.AddLogger(l)
	}
}

// AddLogger adds another destination for log messages.
func (s *Supervisor) AddLogger(l *log.Logger) {
	s.mlog.AddLogger(l)
}

// Logger returns the logger everything supervised logs through.
func (s *Supervisor) Logger() *log.Logger {
	return s.logger
}

// SetKiller replaces the function used to kill processes that have no
// shutdown script.
func (s *Supervisor) SetKiller(kill func(pid int) error) {
	s.lock()
	s.kill = kill
	s.unlock()
}

// SetMetrics arranges for this supervisor to record metrics in m.
func (s *Supervisor) SetMetrics(m *Metrics) {
	s.lock()
	s.metrics = m
	s.unlock()
}

// GetLog returns the log records newer than lastid, see Log.GetRecords.
func (s *Supervisor) GetLog(lastid int64) ([]LogRecord, int64) {
	return s.log.GetRecords(lastid)
}

// WatchLog waits for new log records, see Log.Watch.
func (s *Supervisor) WatchLog(old int64, expire time.Duration) int64 {
	return s.log.Watch(old, expire)
}

func (s *Supervisor) logf(format string, v ...interface{}) {
	s.logger.Printf(format, v...)
}

// Start runs the reaper and applies the exits it reports, until ctx is
// done or Close is called.  Calling Start more than once does nothing.
func (s *Supervisor) Start(ctx context.Context) {
	s.lock()
	defer s.unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.reaper.Run(ctx, s.exits)
	}()
	go func() {
		defer s.wg.Done()
		s.dispatch(ctx)
	}()
	s.logf("*** Supervisor %d started ***", os.Getpid())
}

// Close stops reaping and dispatching.  Running children are left alone.
func (s *Supervisor) Close() {
	s.lock()
	if s.closed {
		s.unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logf("*** Supervisor %d stopped ***", os.Getpid())
}

func (s *Supervisor) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ex := <-s.exits:
			s.deliver(ex)
		}
	}
}

// deliver applies one exit.  A failure handling it is logged, and does
// not stop later exits from being applied.  A record left without a pid
// by the failure is retired.
func (s *Supervisor) deliver(ex Exit) {
	s.lock()
	defer s.unlock()

	id, ok := s.byPid[ex.Pid]
	if !ok {
		s.logf("Reaped pid %d, which is not ours (status %d signal %d)",
			ex.Pid, ex.Status, ex.Signal)
		return
	}
	delete(s.byPid, ex.Pid)
	p := s.procs[id]
	defer func() {
		if r := recover(); r != nil {
			s.logf("Failure handling exit of pid %d: %v", ex.Pid, r)
			if p.pid == ex.Pid {
				p.pid = 0
			}
			if p.pid == 0 {
				s.retire(p)
			}
			s.bumpSerial()
		}
	}()
	s.metrics.exited(p.kind, ex)
	p.handleExit(ex)
	if p.pid == 0 {
		s.retire(p)
	}
	s.bumpSerial()
}

// Manage takes ownership of p and returns its handle.  Managing the same
// Process twice is a programming error.
func (s *Supervisor) Manage(p *Process) Handle {
	s.lock()
	defer s.unlock()
	return s.manage(p)
}

func (s *Supervisor) manage(p *Process) Handle {
	if p.sup != nil {
		panic("process already managed")
	}
	s.nextID++
	p.id = s.nextID
	p.sup = s
	s.procs[p.id] = p
	if p.tenant != nil {
		p.tenant.refs++
	}
	s.bumpSerial()
	return Handle{s: s, id: p.id}
}

// tracked is called once p has been forked.
func (s *Supervisor) tracked(p *Process) {
	s.byPid[p.pid] = p.id
	if s.reaper != nil {
		s.reaper.Kick()
	}
	s.metrics.forked(p.kind)
	s.bumpSerial()
}

// retire forgets p.  The last record of a tenant to retire gives the
// tenant's uid and gid back.
func (s *Supervisor) retire(p *Process) {
	if _, ok := s.procs[p.id]; !ok || p.sup != s {
		return
	}
	delete(s.procs, p.id)
	if p.pid != 0 {
		delete(s.byPid, p.pid)
	}
	if t := p.tenant; t != nil {
		t.refs--
		if t.refs <= 0 && t.alloc != nil {
			t.alloc.Release(t)
		}
	}
	s.metrics.forget(p)
	s.bumpSerial()
}

// named reports whether any managed record belongs to the service called
// name.  Call with lock held.
func (s *Supervisor) named(name string) bool {
	for _, p := range s.procs {
		if p.spec.Name() == name {
			return true
		}
	}
	return false
}

// Find returns the handle of the process running as pid.
func (s *Supervisor) Find(pid int) (Handle, bool) {
	s.lock()
	defer s.unlock()
	id, ok := s.byPid[pid]
	if !ok || pid == 0 {
		return Handle{}, false
	}
	return Handle{s: s, id: id}, true
}

// Handles returns handles for all managed processes, oldest first.
func (s *Supervisor) Handles() []Handle {
	s.lock()
	defer s.unlock()
	ids := make([]uint64, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	rv := make([]Handle, 0, len(ids))
	for _, id := range ids {
		rv = append(rv, Handle{s: s, id: id})
	}
	return rv
}

// Processes returns a snapshot of every managed process, oldest first.
func (s *Supervisor) Processes() []ProcessInfo {
	s.lock()
	defer s.unlock()
	rv := make([]ProcessInfo, 0, len(s.procs))
	for _, p := range s.procs {
		rv = append(rv, p.info())
	}
	sort.Slice(rv, func(i, j int) bool { return rv[i].ID < rv[j].ID })
	return rv
}

// Running reports how many managed processes currently have a pid.
func (s *Supervisor) Running() int {
	s.lock()
	defer s.unlock()
	return len(s.byPid)
}

// NewSupervisor returns a Supervisor that forks with f and reaps with r.
// It does nothing until Start is called.
func NewSupervisor(f Forker, r Reaper) *Supervisor {
	s := &Supervisor{
		procs:  make(map[uint64]*Process),
		byPid:  make(map[int]uint64),
		forker: f,
		reaper: r,
		kill:   killProcess,
		now:    time.Now,
		exits:  make(chan Exit, 64),
		serial: time.Now().UnixNano(),
		cvs:    make(map[*sync.Cond]bool),
		mlog:   NewMultiLogger(),
		log:    NewLog(),
	}
	s.mlog.AddLogger(log.New(s.log, "", 0))
	s.logger = s.mlog.Logger()
	s.SetLogger(log.New(os.Stderr, "", log.LstdFlags))
	return s
}

// Handle refers to a Process owned by a Supervisor.  Handles stay valid
// to use after the process is retired; they then report ErrNotFound.
type Handle struct {
	s  *Supervisor
	id uint64
}

// get returns the process, or nil if it has been retired.  Call with the
// lock held.
func (h Handle) get() *Process {
	if h.s == nil {
		return nil
	}
	return h.s.procs[h.id]
}

func (h Handle) with(fn func(p *Process) error) error {
	if h.s == nil {
		return ErrNotFound
	}
	h.s.lock()
	defer h.s.unlock()
	p := h.get()
	if p == nil {
		return ErrNotFound
	}
	return fn(p)
}

// ID identifies the process within its Supervisor.
func (h Handle) ID() uint64 {
	return h.id
}

// Valid reports whether the process is still managed.
func (h Handle) Valid() bool {
	return h.with(func(*Process) error { return nil }) == nil
}

// Pid returns the pid of the process, or 0 if it is not running.
func (h Handle) Pid() int {
	pid := 0
	h.with(func(p *Process) error {
		pid = p.pid
		return nil
	})
	return pid
}

// Info returns a snapshot of the process.
func (h Handle) Info() (ProcessInfo, error) {
	var info ProcessInfo
	e := h.with(func(p *Process) error {
		info = p.info()
		return nil
	})
	return info, e
}

// Fork starts the process if it is not already running.  A stage of a
// launch chain can only be started when it is the current stage.
func (h Handle) Fork() error {
	return h.with(func(p *Process) error {
		if h.s.closed {
			return ErrClosed
		}
		if p.chain != nil && p.chain.current() != p {
			return ErrNotRunning
		}
		return p.fork()
	})
}

// Stop terminates the process, or whichever stage of its launch chain is
// running.  It does not wait for the process to exit.
func (h Handle) Stop() error {
	return h.with(func(p *Process) error {
		target := p
		if p.chain != nil {
			if live := p.chain.live(); live != nil {
				target = live
			}
		}
		if !target.stop() {
			return ErrNotRunning
		}
		h.s.bumpSerial()
		return nil
	})
}

// SetCurrentRss records the resident set size in kB.
func (h Handle) SetCurrentRss(kb int64) error {
	return h.with(func(p *Process) error {
		p.setCurrentRss(kb)
		h.s.metrics.observe(p)
		return nil
	})
}

// SetPageFaults records the total page faults of the process so far.
func (h Handle) SetPageFaults(n int64) error {
	return h.with(func(p *Process) error {
		p.setPageFaults(n)
		h.s.metrics.observe(p)
		return nil
	})
}

// CurrentRss returns the last recorded resident set size in kB.
func (h Handle) CurrentRss() int64 {
	var rv int64
	h.with(func(p *Process) error {
		rv = p.currentRss()
		return nil
	})
	return rv
}

// RecentPageFaults returns the page faults between the last two samples.
func (h Handle) RecentPageFaults() int64 {
	var rv int64
	h.with(func(p *Process) error {
		rv = p.recentPageFaults()
		return nil
	})
	return rv
}

// sample records rss and faults, but only if the process is still running
// as pid; a sample taken just before an exit or restart is dropped.
func (h Handle) sample(pid int, rssKB, faults int64) bool {
	ok := false
	h.with(func(p *Process) error {
		if p.pid == 0 || p.pid != pid {
			return nil
		}
		p.setCurrentRss(rssKB)
		p.setPageFaults(faults)
		h.s.metrics.observe(p)
		ok = true
		return nil
	})
	return ok
}
