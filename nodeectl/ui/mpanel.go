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
	"errors"
	"fmt"
	"time"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"

	"github.com/cloudname/nodee"
	"github.com/cloudname/nodee/nodeectl/util"
	"github.com/cloudname/nodee/rest"
)

// health maps a process state onto a line color.
func health(p *nodee.ProcessInfo) Health {
	switch util.State(p) {
	case "running":
		return Good
	case "backoff", "stopping":
		return Warn
	case "exited":
		if p.LastSignal != 0 || p.LastStatus != 0 {
			return Bad
		}
	}
	return Normal
}

// MainPanel shows one line per supervised process, with the
// host's load and memory in the status bar.
type MainPanel struct {
	content  *views.CellView
	selected *nodee.ProcessInfo
	width    int
	height   int
	curx     int
	cury     int
	lines    []string
	styles   []tcell.Style
	items    []nodee.ProcessInfo

	Panel
}

type mainModel struct {
	m *MainPanel
}

func NewMainPanel(app *App, server string) *MainPanel {
	m := &MainPanel{}

	m.Panel.Init(app)
	m.content = views.NewCellView()
	m.SetContent(m.content)

	m.content.SetModel(&mainModel{m})
	m.content.SetStyle(lineStyles[Normal])

	m.SetTitle(server)
	m.SetKeys([]string{"[Q] Quit"})

	return m
}

func (m *MainPanel) Draw() {
	m.update()
	m.Panel.Draw()
}

func (m *MainPanel) HandleEvent(ev tcell.Event) bool {
	app := m.App()
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			m.unselect()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyEnter:
			if m.selected != nil {
				app.ShowInfo(m.selected.ID)
				return true
			}
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.Quit()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'L', 'l':
				app.ShowLog()
				return true
			case 'I', 'i':
				if m.selected != nil {
					app.ShowInfo(m.selected.ID)
					return true
				}
			case 'S', 's':
				if m.selected != nil && m.selected.Pid != 0 {
					app.StopService(m.selected.Pid)
					return true
				}
			}
		}
	}
	return m.Panel.HandleEvent(ev)
}

func (model *mainModel) GetCell(x, y int) (rune, tcell.Style, []rune, int) {
	m := model.m

	if y < 0 || y >= len(m.lines) {
		return 0, lineStyles[Normal], nil, 1
	}

	ch := ' '
	if x >= 0 && x < len(m.lines[y]) {
		ch = rune(m.lines[y][x])
	}
	style := m.styles[y]
	if m.selected != nil && m.items[y].ID == m.selected.ID {
		style = style.Reverse(true)
	}
	return ch, style, nil, 1
}

func (model *mainModel) GetBounds() (int, int) {
	// All content is ASCII.
	m := model.m
	x := 0
	for _, l := range m.lines {
		if x < len(l) {
			x = len(l)
		}
	}
	return x, len(m.lines)
}

func (model *mainModel) GetCursor() (int, int, bool, bool) {
	m := model.m
	return m.curx, m.cury, true, false
}

func (model *mainModel) MoveCursor(offx, offy int) {
	m := model.m
	m.curx += offx
	m.cury += offy
	m.updateCursor(true)
}

func (model *mainModel) SetCursor(x, y int) {
	m := model.m
	m.curx = x
	m.cury = y
	m.updateCursor(true)
}

func (m *MainPanel) unselect() {
	m.cury = 0
	m.curx = 0
	m.updateCursor(false)
}

func (m *MainPanel) updateCursor(selected bool) {
	if m.curx > m.width-1 {
		m.curx = m.width - 1
	}
	if m.cury > m.height-1 {
		m.cury = m.height - 1
	}
	if m.curx < 0 {
		m.curx = 0
	}
	if m.cury < 0 {
		m.cury = 0
	}
	if selected && m.height > 0 {
		if m.selected == nil {
			m.curx = 0
			m.cury = 0
		}
		m.selected = &m.items[m.cury]
	} else {
		m.selected = nil
	}
}

// update refreshes the content.  It runs on the application goroutine.
func (m *MainPanel) update() {

	items, host, err := m.App().GetItems()
	m.items = items

	// Keep the selection on the same record as the list moves.
	if sel := m.selected; sel != nil {
		m.selected = nil
		for i := range m.items {
			if m.items[i].ID == sel.ID {
				m.selected = &m.items[i]
				m.cury = i
			}
		}
	}
	if err != nil {
		var re *rest.Error
		if errors.As(err, &re) && re.Code == 401 {
			m.SetStatus("Not authorized; use -u user:password")
		} else {
			m.SetStatus(fmt.Sprintf("Cannot load items: %v", err))
		}
		m.SetHealth(Bad)
		m.lines = nil
		m.styles = nil
		m.height = 0
		m.width = 0
		return
	}

	lines := make([]string, 0, len(items))
	styles := make([]tcell.Style, 0, len(items))
	m.height = 0
	m.width = 0
	nrunning := 0
	nbackoff := 0

	for i := range items {
		p := &items[i]
		up := ""
		if p.Pid != 0 && !p.ExecAt.IsZero() {
			d := time.Since(p.ExecAt)
			if d < 0 {
				d = 0
			}
			up = util.FormatDuration(d - d%time.Second)
		}
		pid := "-"
		if p.Pid != 0 {
			pid = fmt.Sprint(p.Pid)
		}
		line := fmt.Sprintf("%-28s %-8s %7s %6d %-8s %7s %7d %4d %10s",
			p.Name, p.Kind, pid, p.Uid, util.State(p),
			util.FormatKB(p.Rss), p.RecentPageFaults, p.Starts, up)

		if len(line) > m.width {
			m.width = len(line)
		}
		m.height++
		switch util.State(p) {
		case "running":
			nrunning++
		case "backoff":
			nbackoff++
		}

		lines = append(lines, line)
		styles = append(styles, lineStyles[health(p)])
	}
	m.lines = lines
	m.styles = styles

	status := fmt.Sprintf("%5d Processes %5d Running %5d Backoff",
		len(items), nrunning, nbackoff)
	if host != nil {
		status = fmt.Sprintf("%s  %s load %.2f %.2f %.2f  free %s of %s",
			status, host.Hostname, host.Load1, host.Load5, host.Load15,
			util.FormatKB(int64(host.MemAvailable)),
			util.FormatKB(int64(host.MemTotal)))
	}
	m.SetStatus(status)

	switch {
	case nbackoff > 0:
		m.SetHealth(Warn)
	case nrunning > 0:
		m.SetHealth(Good)
	default:
		m.SetHealth(Normal)
	}

	words := []string{"[Q] Quit", "[H] Help", "[L] Log"}
	if item := m.selected; item != nil {
		words = append(words, "[I] Info")
		if item.Pid != 0 {
			words = append(words, "[S] Stop")
		}
	}
	m.SetKeys(words)
}
