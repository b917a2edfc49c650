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
	"strings"
	"sync"
	"time"
)

// MaxLogRecords is how many lines the in-memory log keeps.
const MaxLogRecords = 1000

// LogRecord is one line of the supervisor's log.
type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Log is an in-memory ring of the most recent log lines.  It is an
// io.Writer, so it can sit behind a log.Logger.  Every line gets an id
// one greater than the previous; the last id doubles as an Etag.
type Log struct {
	ring  []LogRecord
	head  int // index of the oldest record
	count int
	id    int64
	cvs   map[*sync.Cond]bool
	mx    sync.Mutex
}

// Write implements io.Writer, storing one record per line.
func (l *Log) Write(b []byte) (int, error) {
	now := time.Now()
	l.mx.Lock()
	for _, line := range strings.Split(strings.Trim(string(b), "\n"), "\n") {
		l.id++
		rec := LogRecord{Id: l.id, Time: now, Text: line}
		if l.count < len(l.ring) {
			l.ring[(l.head+l.count)%len(l.ring)] = rec
			l.count++
		} else {
			l.ring[l.head] = rec
			l.head = (l.head + 1) % len(l.ring)
		}
	}
	for cv := range l.cvs {
		cv.Broadcast()
	}
	l.mx.Unlock()
	return len(b), nil
}

// Clear discards all records.  Ids restart from the current time, so that
// clients holding an old id notice the change.
func (l *Log) Clear() {
	l.mx.Lock()
	l.head = 0
	l.count = 0
	l.id = time.Now().UnixNano()
	for cv := range l.cvs {
		cv.Broadcast()
	}
	l.mx.Unlock()
}

// GetRecords returns the stored records, oldest first, and the id of the
// newest.  If last is that id already, nothing has changed and nil is
// returned.
func (l *Log) GetRecords(last int64) ([]LogRecord, int64) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.id == last {
		return nil, last
	}
	recs := make([]LogRecord, 0, l.count)
	for i := 0; i < l.count; i++ {
		recs = append(recs, l.ring[(l.head+i)%len(l.ring)])
	}
	return recs, l.id
}

// Watch waits until the newest id differs from last or expire has passed,
// and returns the newest id.
func (l *Log) Watch(last int64, expire time.Duration) int64 {
	expired := expire <= 0
	cv := sync.NewCond(&l.mx)
	var timer *time.Timer
	if !expired {
		timer = time.AfterFunc(expire, func() {
			l.mx.Lock()
			expired = true
			cv.Broadcast()
			l.mx.Unlock()
		})
	}

	l.mx.Lock()
	l.cvs[cv] = true
	for l.id == last && !expired {
		cv.Wait()
	}
	delete(l.cvs, cv)
	id := l.id
	l.mx.Unlock()
	if timer != nil {
		timer.Stop()
	}
	return id
}

// NewLog returns a Log holding up to MaxLogRecords lines.
func NewLog() *Log {
	return &Log{
		ring: make([]LogRecord, MaxLogRecords),
		id:   time.Now().UnixNano(),
		cvs:  make(map[*sync.Cond]bool),
	}
}
