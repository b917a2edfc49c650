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
	"os/user"
	"strconv"
	"sync"
)

// Tenant is the uid/gid pair a service and all its chores run as.
// A zero Tenant means "run as the supervisor".
type Tenant struct {
	Uid int
	Gid int

	refs  int
	alloc *IdentityAllocator
}

// idPool hands out ids from [min, max], round robin, never reusing an id
// that is still held.
type idPool struct {
	min   int
	max   int
	next  int
	inUse map[int]struct{}
	taken func(int) bool
}

func (p *idPool) alloc() (int, bool) {
	if p.next < p.min || p.next > p.max {
		p.next = p.min
	}
	start := p.next
	for {
		id := p.next
		p.next++
		if p.next > p.max {
			p.next = p.min
		}
		if _, used := p.inUse[id]; !used && (p.taken == nil || !p.taken(id)) {
			p.inUse[id] = struct{}{}
			return id, true
		}
		if p.next == start {
			return 0, false
		}
	}
}

func (p *idPool) release(id int) {
	delete(p.inUse, id)
}

// IdentityAllocator gives every launched service a uid and gid that no
// other running service and no local account uses.  It is safe for
// concurrent use.
type IdentityAllocator struct {
	uids idPool
	gids idPool
	mx   sync.Mutex
}

// Allocate returns a fresh Tenant, or ErrNoIdentity when either range is
// exhausted.
func (a *IdentityAllocator) Allocate() (*Tenant, error) {
	a.mx.Lock()
	defer a.mx.Unlock()

	uid, ok := a.uids.alloc()
	if !ok {
		return nil, ErrNoIdentity
	}
	gid, ok := a.gids.alloc()
	if !ok {
		a.uids.release(uid)
		return nil, ErrNoIdentity
	}
	return &Tenant{Uid: uid, Gid: gid, alloc: a}, nil
}

// Release returns the tenant's ids to the pool.  Releasing a tenant twice,
// or one that came from another allocator, does nothing.
func (a *IdentityAllocator) Release(t *Tenant) {
	if t == nil || t.alloc != a {
		return
	}
	a.mx.Lock()
	a.uids.release(t.Uid)
	a.gids.release(t.Gid)
	t.alloc = nil
	a.mx.Unlock()
}

// InUse reports how many tenants are currently allocated.
func (a *IdentityAllocator) InUse() int {
	a.mx.Lock()
	defer a.mx.Unlock()
	return len(a.uids.inUse)
}

// SetTakenFuncs overrides the checks for ids that already belong to local
// accounts.  Either may be nil to disable the check.
func (a *IdentityAllocator) SetTakenFuncs(uid, gid func(int) bool) {
	a.mx.Lock()
	a.uids.taken = uid
	a.gids.taken = gid
	a.mx.Unlock()
}

func uidTaken(id int) bool {
	_, e := user.LookupId(strconv.Itoa(id))
	return e == nil
}

func gidTaken(id int) bool {
	_, e := user.LookupGroupId(strconv.Itoa(id))
	return e == nil
}

// NewIdentityAllocator returns an allocator for the given ranges.
func NewIdentityAllocator(uids, gids IDRange) *IdentityAllocator {
	return &IdentityAllocator{
		uids: idPool{
			min:   uids.Min,
			max:   uids.Max,
			next:  uids.Min,
			inUse: make(map[int]struct{}),
			taken: uidTaken,
		},
		gids: idPool{
			min:   gids.Min,
			max:   gids.Max,
			next:  gids.Min,
			inUse: make(map[int]struct{}),
			taken: gidTaken,
		},
	}
}
