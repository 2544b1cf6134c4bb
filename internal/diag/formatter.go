package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Formatter renders diagnostics to a writer, colorizing the severity tag.
type Formatter struct {
	out io.Writer

	fatal   *color.Color
	warning *color.Color
}

// NewFormatter builds a Formatter that writes to stderr.
func NewFormatter() *Formatter {
	return &Formatter{
		out:     os.Stderr,
		fatal:   color.New(color.FgRed, color.Bold),
		warning: color.New(color.FgYellow, color.Bold),
	}
}

// Format prints a single diagnostic as "file:line:col: severity: message".
func (f *Formatter) Format(d *Diagnostic) {
	tag := "error"
	c := f.fatal
	if d.Kind == KindWarning {
		tag = "warning"
		c = f.warning
	}

	fmt.Fprintf(f.out, "%s: ", d.Loc)
	c.Fprint(f.out, tag)
	fmt.Fprintf(f.out, ": %s\n", d.Message)

	if d.Context != "" {
		fmt.Fprintf(f.out, "  = note: while resolving %s\n", d.Context)
	}
}

// FormatAll prints each diagnostic in order.
func (f *Formatter) FormatAll(diags []*Diagnostic) {
	for _, d := range diags {
		f.Format(d)
	}
}
