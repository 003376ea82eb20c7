package main

import (
	"github.com/fatih/color"

	"github.com/rydesun/watchdir"
)

// kindTheme is one entry in the Kind → (label, color) table the printer
// consults. Distinct colors make it possible to scan a scrolling terminal
// for, say, deletes without reading every line.
type kindTheme struct {
	label string
	color *color.Color
}

var themes = map[watchdir.Kind]kindTheme{
	watchdir.Create:     {"CREATE", color.New(color.FgGreen)},
	watchdir.Delete:     {"DELETE", color.New(color.FgRed)},
	watchdir.Move:       {"MOVE", color.New(color.FgCyan)},
	watchdir.MoveAway:   {"MOVE AWAY", color.New(color.FgCyan)},
	watchdir.MoveInto:   {"MOVE INTO", color.New(color.FgCyan)},
	watchdir.Modify:     {"MODIFY", color.New(color.FgYellow)},
	watchdir.Access:     {"ACCESS", color.New(color.FgWhite)},
	watchdir.Attrib:     {"ATTRIB", color.New(color.FgMagenta)},
	watchdir.Open:       {"OPEN", color.New(color.FgWhite)},
	watchdir.Close:      {"CLOSE", color.New(color.FgWhite)},
	watchdir.Unmount:    {"UNMOUNT", color.New(color.FgRed, color.Bold)},
	watchdir.MoveTop:    {"MOVE (root)", color.New(color.FgCyan, color.Bold)},
	watchdir.DeleteTop:  {"DELETE (root)", color.New(color.FgRed, color.Bold)},
	watchdir.UnmountTop: {"UNMOUNT (root)", color.New(color.FgRed, color.Bold)},
	watchdir.AccessTop:  {"ACCESS (root)", color.New(color.FgWhite)},
	watchdir.AttribTop:  {"ATTRIB (root)", color.New(color.FgMagenta)},
	watchdir.OpenTop:    {"OPEN (root)", color.New(color.FgWhite)},
	watchdir.CloseTop:   {"CLOSE (root)", color.New(color.FgWhite)},
	watchdir.Overflow:   {"OVERFLOW", color.New(color.FgRed, color.Bold)},
	watchdir.Ignored:    {"IGNORED", color.New(color.FgHiBlack)},
	watchdir.Unknown:    {"UNKNOWN", color.New(color.FgHiBlack)},
}

func themeFor(k watchdir.Kind) kindTheme {
	if t, ok := themes[k]; ok {
		return t
	}
	return kindTheme{label: k.String(), color: color.New(color.FgWhite)}
}
