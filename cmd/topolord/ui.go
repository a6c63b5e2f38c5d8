package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/rmax-ai/topolord/pkg/hierarchy"
)

var (
	good   = color.New(color.FgGreen)
	bad    = color.New(color.FgRed)
	warn   = color.New(color.FgYellow)
	subtle = color.New(color.FgHiBlack)
	strong = color.New(color.FgCyan, color.Bold)
)

func printWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		warn.Fprintf(w, "warning: %s\n", msg)
	}
}

// formatTrail renders a breadcrumb trail as "Label (level:id) › ...".
func formatTrail(entries []hierarchy.Entry) string {
	parts := make([]string, 0, len(entries))
	for i, e := range entries {
		label := e.Label
		if label == "" {
			label = e.ID
		}
		style := subtle
		if i == len(entries)-1 {
			style = strong
		}
		parts = append(parts, fmt.Sprintf("%s %s", style.Sprint(label), subtle.Sprintf("(%s:%s)", e.Level, e.ID)))
	}
	return strings.Join(parts, " › ")
}
