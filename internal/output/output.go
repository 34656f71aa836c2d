// Package output provides CLI output formatting. A Writer is either in
// text mode, with icons when the destination is a terminal, or in JSON
// mode where every payload is one marshaled document on stdout.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Writer provides formatted output for the CLI.
type Writer struct {
	out       io.Writer
	jsonMode  bool
	decorated bool
}

// New creates a writer. Icons are used only when out is a terminal.
func New(out io.Writer, jsonMode bool) *Writer {
	decorated := false
	if f, ok := out.(*os.File); ok {
		decorated = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Writer{out: out, jsonMode: jsonMode, decorated: decorated}
}

// JSONMode reports whether the writer emits JSON.
func (w *Writer) JSONMode() bool { return w.jsonMode }

// JSON marshals v with indentation. In text mode it does nothing, so
// commands can call both Print and JSON unconditionally.
func (w *Writer) JSON(v any) error {
	if !w.jsonMode {
		return nil
	}
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Print writes a plain line in text mode.
func (w *Writer) Print(msg string) {
	if w.jsonMode {
		return
	}
	_, _ = fmt.Fprintln(w.out, msg)
}

// Printf writes a formatted line in text mode.
func (w *Writer) Printf(format string, args ...any) {
	w.Print(fmt.Sprintf(format, args...))
}

func (w *Writer) status(icon, msg string) {
	if w.jsonMode {
		return
	}
	if w.decorated && icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
		return
	}
	_, _ = fmt.Fprintln(w.out, msg)
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.status("✓", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.status("!", "warning: "+msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.status("✗", "error: "+msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line in text mode.
func (w *Writer) Newline() {
	if w.jsonMode {
		return
	}
	_, _ = fmt.Fprintln(w.out)
}

// Table prints aligned rows in text mode. Column widths follow the
// widest cell per column.
func (w *Writer) Table(headers []string, rows [][]string) {
	if w.jsonMode {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			if i < len(widths) {
				parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
			} else {
				parts[i] = cell
			}
		}
		_, _ = fmt.Fprintln(w.out, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	printRow(headers)
	sep := make([]string, len(headers))
	for i := range headers {
		sep[i] = strings.Repeat("-", widths[i])
	}
	printRow(sep)
	for _, row := range rows {
		printRow(row)
	}
}
