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

	"github.com/fsnotify/fsnotify"
)

// ArtifactIndex lists the regular files in the artifact directory.  Run
// keeps the list current as downloads land and are removed.
type ArtifactIndex struct {
	dir      string
	names    []string
	debounce time.Duration
	logger   *log.Logger
	mx       sync.Mutex
}

// NewArtifactIndex returns an index of dir.  It is empty until Refresh or
// Run is called.
func NewArtifactIndex(dir string, logger *log.Logger) *ArtifactIndex {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &ArtifactIndex{
		dir:      dir,
		debounce: 250 * time.Millisecond,
		logger:   logger,
	}
}

// Dir is the directory being indexed.
func (a *ArtifactIndex) Dir() string {
	return a.dir
}

// Refresh rereads the directory.  A missing directory is an empty index.
func (a *ArtifactIndex) Refresh() error {
	ents, e := os.ReadDir(a.dir)
	if e != nil && !os.IsNotExist(e) {
		return e
	}
	names := make([]string, 0, len(ents))
	for _, ent := range ents {
		if ent.Type().IsRegular() {
			names = append(names, ent.Name())
		}
	}
	sort.Strings(names)
	a.mx.Lock()
	a.names = names
	a.mx.Unlock()
	return nil
}

// List returns the artifact file names, sorted.
func (a *ArtifactIndex) List() []string {
	a.mx.Lock()
	defer a.mx.Unlock()
	return append([]string{}, a.names...)
}

// Run refreshes the index whenever the directory changes, until ctx is
// done.  Bursts of events cause a single refresh.
func (a *ArtifactIndex) Run(ctx context.Context) error {
	if e := os.MkdirAll(a.dir, 0755); e != nil {
		return e
	}
	w, e := fsnotify.NewWatcher()
	if e != nil {
		return e
	}
	defer w.Close()
	if e := w.Add(a.dir); e != nil {
		return e
	}
	if e := a.Refresh(); e != nil {
		a.logger.Printf("Artifact index %s: %v", a.dir, e)
	}

	var t *time.Timer
	defer func() {
		if t != nil {
			t.Stop()
		}
	}()
	refresh := func() {
		if e := a.Refresh(); e != nil {
			a.logger.Printf("Artifact index %s: %v", a.dir, e)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Chmod) && !(ev.Has(fsnotify.Create) ||
				ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
				continue
			}
			if t != nil {
				t.Stop()
			}
			t = time.AfterFunc(a.debounce, refresh)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			a.logger.Printf("Artifact watch %s: %v", a.dir, err)
		}
	}
}
