// Package colorlog prints the "[Error] " / "[Warning] " prefixed messages
// spec.md §6/§7 requires, colored when stderr is a terminal.
//
// Grounded on original_source/src/colored_strings.cpp: a bool computed once
// from whether stderr is a terminal, and two prefix strings (red error,
// yellow warning) that degrade to plain text off a terminal.
package colorlog

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

const (
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiReset  = "\x1b[0m"
)

var stderrIsTerminal = term.IsTerminal(int(os.Stderr.Fd()))

func prefix(w io.Writer, tag, color string) string {
	if f, ok := w.(*os.File); ok && f == os.Stderr && stderrIsTerminal {
		return color + tag + ansiReset
	}
	return tag
}

// Error writes "[Error] "-prefixed text (red on a terminal) to w, followed
// by a newline.
func Error(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s%s\n", prefix(w, "[Error] ", ansiRed), fmt.Sprintf(format, args...))
}

// Warning writes "[Warning] "-prefixed text (yellow on a terminal) to w,
// followed by a newline. spec.md §7's one specified warning case: a
// reference sequence shorter than window_size.
func Warning(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s%s\n", prefix(w, "[Warning] ", ansiYellow), fmt.Sprintf(format, args...))
}
