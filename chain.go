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

// chain is the ordered list of stages that together launch one service.
// Only the current stage may be running; the stages before it are done.
type chain struct {
	stages []*Process
	cur    int
}

func newChain(stages ...*Process) *chain {
	c := &chain{stages: stages}
	for i, p := range stages {
		p.chain = c
		p.stage = i
	}
	return c
}

// current is the stage that is running or about to run.
func (c *chain) current() *Process {
	if c.cur >= len(c.stages) {
		return nil
	}
	return c.stages[c.cur]
}

// after returns the stage following p, or nil if p is the last.
func (c *chain) after(p *Process) *Process {
	if p.stage+1 >= len(c.stages) {
		return nil
	}
	return c.stages[p.stage+1]
}

// rest returns the stages following p.
func (c *chain) rest(p *Process) []*Process {
	return c.stages[p.stage+1:]
}

// advanceTo makes p the current stage.
func (c *chain) advanceTo(p *Process) {
	c.cur = p.stage
}

// live is the one stage with a running process, if any.
func (c *chain) live() *Process {
	for _, p := range c.stages {
		if p.pid != 0 {
			return p
		}
	}
	return nil
}
