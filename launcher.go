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
	"strconv"
)

// Launcher starts services the way a node does: download the artifact,
// install it, then run it, all as one newly allocated tenant.
type Launcher struct {
	sup  *Supervisor
	ids  *IdentityAllocator
	conf *Config
}

// NewLauncher returns a Launcher that hands its processes to sup.
func NewLauncher(sup *Supervisor, ids *IdentityAllocator, conf *Config) *Launcher {
	return &Launcher{sup: sup, ids: ids, conf: conf}
}

// Launch validates spec and starts the download stage of its chain.  The
// install and service stages follow as each predecessor exits.  The
// returned handle refers to the service stage.
func (l *Launcher) Launch(spec *LaunchSpec) (Handle, error) {
	if e := spec.ValidateLaunch(); e != nil {
		return Handle{}, e
	}
	spec = spec.Clone()

	svc := NewProcess(spec, l.conf)
	if e := svc.assignIdentity(l.ids); e != nil {
		l.sup.logf("Cannot launch %s: %v", spec.Name(), e)
		return Handle{}, e
	}

	inst := svc.derive(KindInstall, l.conf.Script("install"), Options{
		{"--filename", spec.ArtifactFilename},
		{"--uid", strconv.Itoa(svc.uid())},
		{"--gid", strconv.Itoa(svc.gid())},
		{"--rootdir", svc.root()},
	})
	dl := svc.derive(KindDownload, l.conf.Script("download"), Options{
		{"--url", spec.ArtifactURL},
		{"--filename", spec.ArtifactFilename},
	})
	// Chores run once; only the service itself restarts.
	for _, p := range []*Process{inst, dl} {
		p.spec.MaxRestarts = 0
		p.spec.RestartPeriod = 0
		p.spec.ShutdownScript = ""
	}
	newChain(dl, inst, svc)

	l.sup.lock()
	defer l.sup.unlock()
	if l.sup.closed {
		l.ids.Release(svc.tenant)
		return Handle{}, ErrClosed
	}
	if l.sup.named(spec.Name()) {
		l.ids.Release(svc.tenant)
		l.sup.logf("Cannot launch %s: already supervised", spec.Name())
		return Handle{}, fmt.Errorf("%w: %s", ErrDuplicate, spec.Name())
	}
	l.sup.manage(dl)
	l.sup.manage(inst)
	h := l.sup.manage(svc)
	if e := dl.fork(); e != nil {
		l.sup.retire(dl)
		l.sup.retire(inst)
		l.sup.retire(svc)
		return Handle{}, e
	}
	l.sup.logf("Launching %s as uid %d gid %d in %s",
		spec.Name(), svc.uid(), svc.gid(), svc.root())
	return h, nil
}
