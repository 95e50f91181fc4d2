package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	isatty "github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
)

func shouldUsePrettyOutput(w io.Writer) bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	fd, ok := fileDescriptor(w)
	if !ok {
		return false
	}
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func fileDescriptor(w io.Writer) (uintptr, bool) {
	type fdWriter interface {
		Fd() uintptr
	}
	f, ok := w.(fdWriter)
	if !ok {
		return 0, false
	}
	return f.Fd(), true
}

func printHeading(w io.Writer, title string) {
	if shouldUsePrettyOutput(w) {
		writef(w, "%s%s%s\n", ansiBold, title, ansiReset)
		return
	}
	writeln(w, title)
}

// relativeTime renders t the way an operator-facing status line would:
// "3 minutes ago" in a terminal, RFC 3339 otherwise.
func relativeTime(w io.Writer, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	if shouldUsePrettyOutput(w) {
		return humanize.Time(t)
	}
	return t.UTC().Format(time.RFC3339)
}
