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

package ui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"

	"github.com/cloudname/nodee"
	"github.com/cloudname/nodee/nodeectl/util"
)

type InfoPanel struct {
	text *views.TextArea
	info *nodee.ProcessInfo
	id   uint64
	err  error

	Panel
}

func NewInfoPanel(app *App) *InfoPanel {
	p := &InfoPanel{}

	p.Panel.Init(app)
	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(lineStyles[Normal])
	p.SetContent(p.text)
	p.SetKeys([]string{"[ESC] Main", "[H] Help"})

	return p
}

func (p *InfoPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *InfoPanel) HandleEvent(ev tcell.Event) bool {
	info := p.info
	app := p.App()
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			app.ShowMain()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.ShowMain()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'L', 'l':
				app.ShowLog()
				return true
			case 'S', 's':
				if info != nil && info.Pid != 0 {
					app.StopService(info.Pid)
					return true
				}
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *InfoPanel) SetID(id uint64) {
	p.id = id
	p.info = nil
	p.err = nil
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.Stamp)
}

// update runs on the application goroutine.
func (p *InfoPanel) update() {

	s, e := p.App().GetItem(p.id)
	p.info = s
	p.err = e
	words := []string{"[ESC] Main", "[H] Help", "[L] Log"}

	if s == nil {
		p.SetTitle("Details")
		if e != nil {
			p.SetStatus(fmt.Sprintf("No data: %v", e))
			p.SetHealth(Bad)
		} else {
			p.SetStatus("Loading...")
			p.SetHealth(Normal)
		}
		p.text.SetLines(nil)
		p.SetKeys(words)
		return
	}

	p.SetTitle("Details for " + s.Name)
	p.SetStatus(util.State(s))
	p.SetHealth(health(s))

	lines := []string{
		fmt.Sprintf("%13s %s", "Name:", s.Name),
		fmt.Sprintf("%13s %s", "Stage:", s.Kind),
		fmt.Sprintf("%13s %s", "State:", util.State(s)),
		fmt.Sprintf("%13s %d", "Pid:", s.Pid),
		fmt.Sprintf("%13s %d/%d", "Uid/Gid:", s.Uid, s.Gid),
		fmt.Sprintf("%13s %s", "Root:", s.Root),
		fmt.Sprintf("%13s %d", "Starts:", s.Starts),
		fmt.Sprintf("%13s %s", "Forked:", stamp(s.ForkedAt)),
		fmt.Sprintf("%13s %s", "Exec:", stamp(s.ExecAt)),
		fmt.Sprintf("%13s %s", "Not Before:", stamp(s.NotBefore)),
		fmt.Sprintf("%13s %d (status %d, signal %d)", "Exits:",
			s.Exits, s.LastStatus, s.LastSignal),
		fmt.Sprintf("%13s %s", "RSS:", util.FormatKB(s.Rss)),
		fmt.Sprintf("%13s %d (%d recent)", "Page Faults:",
			s.PageFaults, s.RecentPageFaults),
	}
	if spec := s.Spec; spec != nil {
		lines = append(lines,
			fmt.Sprintf("%13s %s", "Artifact:", spec.ArtifactURL),
			fmt.Sprintf("%13s %s", "Startup:", spec.StartupScript),
			fmt.Sprintf("%13s %s", "Coordinate:", spec.Coordinate),
			fmt.Sprintf("%13s %d", "Port:", spec.Port))
		for _, opt := range spec.StartupOptions {
			lines = append(lines, fmt.Sprintf("%13s %s %s", "Option:",
				opt.Flag, opt.Value))
		}
	}
	p.text.SetLines(lines)

	if s.Pid != 0 {
		words = append(words, "[S] Stop")
	}
	p.SetKeys(words)
}
