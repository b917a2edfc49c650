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
	"strings"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"
)

// Health is how a status bar, or a line of the service table, is colored.
type Health int

const (
	Normal Health = iota
	Good
	Warn
	Bad
)

var barStyles = map[Health]tcell.Style{
	Normal: tcell.StyleDefault.
		Foreground(tcell.ColorBlack).
		Background(tcell.ColorSilver),
	Good: tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.ColorGreen).
		Bold(true),
	Warn: tcell.StyleDefault.
		Foreground(tcell.ColorBlack).
		Background(tcell.ColorYellow),
	Bad: tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.ColorMaroon).
		Bold(true),
}

var lineStyles = map[Health]tcell.Style{
	Normal: tcell.StyleDefault.
		Foreground(tcell.ColorSilver).
		Background(tcell.ColorBlack),
	Good: tcell.StyleDefault.
		Foreground(tcell.ColorGreen).
		Background(tcell.ColorBlack),
	Warn: tcell.StyleDefault.
		Foreground(tcell.ColorYellow).
		Background(tcell.ColorBlack),
	Bad: tcell.StyleDefault.
		Foreground(tcell.ColorMaroon).
		Background(tcell.ColorBlack),
}

// Bar is a one line text bar.  %A switches to the highlight style and %N
// back to normal.
type Bar struct {
	text string
	views.SimpleStyledTextBar
}

func newBar(normal, alternate tcell.Style) *Bar {
	b := &Bar{}
	b.SimpleStyledTextBar.Init()
	b.SimpleStyledTextBar.SetStyle(normal)
	b.RegisterLeftStyle('N', normal)
	b.RegisterLeftStyle('A', alternate)
	b.RegisterCenterStyle('N', normal)
	b.RegisterCenterStyle('A', alternate)
	b.RegisterRightStyle('N', normal)
	b.RegisterRightStyle('A', alternate)
	return b
}

func NewTitleBar() *Bar {
	return newBar(barStyles[Normal],
		barStyles[Normal].Foreground(tcell.ColorBlue))
}

func NewKeyBar() *Bar {
	return newBar(barStyles[Normal],
		barStyles[Normal].Foreground(tcell.ColorBlue).Bold(true))
}

func NewStatusBar() *Bar {
	return newBar(barStyles[Normal], barStyles[Normal])
}

// markup highlights the bracketed key names in words, e.g. "[Q] Quit".
func markup(words []string) string {
	var b strings.Builder
	for i, w := range words {
		if i != 0 && w != "" {
			b.WriteByte(' ')
		}
		inKey := false
		for _, r := range w {
			switch {
			case r == '%':
				b.WriteString("%%")
			case r == '[' && !inKey:
				b.WriteString("[%A")
				inKey = true
			case r == ']' && inKey:
				b.WriteString("%N]")
				inKey = false
			default:
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func (b *Bar) SetKeys(words []string) {
	b.SetLeft(markup(words))
}

func (b *Bar) SetText(text string) {
	b.text = text
	b.SetLeft(strings.Replace(text, "%", "%%", -1))
}

// SetHealth recolors the whole bar.
func (b *Bar) SetHealth(h Health) {
	style := barStyles[h]
	b.SimpleStyledTextBar.SetStyle(style)
	b.RegisterLeftStyle('N', style)
	b.SetText(b.text)
}
