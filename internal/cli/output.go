package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/brewmap/brewmap/internal/present"
)

// ANSI escape codes.
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
	ansiBold   = "\033[1m"
)

var paletteCodes = map[present.Color]string{
	present.ColorYellow: ansiYellow,
	present.ColorGreen:  ansiGreen,
	present.ColorRed:    ansiRed,
	present.ColorGray:   ansiGray,
}

// Printer writes command output as tables or JSON.
type Printer struct {
	out      io.Writer
	err      io.Writer
	json     bool
	colorize bool
	now      func() time.Time
}

// NewPrinter writes results to out and status lines to errOut.
func NewPrinter(out, errOut io.Writer, asJSON bool) *Printer {
	return &Printer{
		out:      out,
		err:      errOut,
		json:     asJSON,
		colorize: isTerminal(out),
		now:      time.Now,
	}
}

// JSON reports whether output is machine readable.
func (p *Printer) JSON() bool { return p.json }

// Color wraps text in the terminal colour c when writing to a terminal.
func (p *Printer) Color(text string, c present.Color) string {
	code, ok := paletteCodes[c]
	if !p.colorize || !ok {
		return text
	}
	return code + text + ansiReset
}

func (p *Printer) bold(text string) string {
	if !p.colorize {
		return text
	}
	return ansiBold + text + ansiReset
}

// Value prints v as indented JSON.
func (p *Printer) Value(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table prints rows under header, aligned in columns.
func (p *Printer) Table(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, p.bold(strings.Join(header, "\t")))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// Line prints a plain line to the result stream.
func (p *Printer) Line(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *Printer) status(mark, code, message string) {
	if p.colorize {
		fmt.Fprintf(p.err, "%s%s%s %s\n", code, mark, ansiReset, message)
		return
	}
	fmt.Fprintf(p.err, "%s %s\n", mark, message)
}

// Success prints a confirmation.
func (p *Printer) Success(format string, args ...any) {
	p.status("✓", ansiGreen, fmt.Sprintf(format, args...))
}

// Warning prints a non-fatal problem.
func (p *Printer) Warning(format string, args ...any) {
	p.status("⚠", ansiYellow, fmt.Sprintf(format, args...))
}

// Info prints a hint.
func (p *Printer) Info(format string, args ...any) {
	p.status("ℹ", ansiBlue, fmt.Sprintf(format, args...))
}

// Spinner returns a spinner drawn on the status stream. It stays silent
// when that stream is not a terminal.
func (p *Printer) Spinner(prefix string) *Spinner {
	return &Spinner{
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		prefix:  prefix,
		writer:  p.err,
		enabled: isTerminal(p.err),
		done:    make(chan struct{}),
	}
}

// Spinner shows that a slow platform call is in flight.
type Spinner struct {
	frames  []string
	current int
	prefix  string
	writer  io.Writer
	enabled bool

	mu     sync.Mutex
	active bool
	done   chan struct{}
}

// Start draws the spinner until Stop is called.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active || !s.enabled {
		return
	}
	s.active = true

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if s.active {
					fmt.Fprintf(s.writer, "\r%s%s%s %s", ansiCyan, s.frames[s.current], ansiReset, s.prefix)
					s.current = (s.current + 1) % len(s.frames)
				}
				s.mu.Unlock()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop clears the spinner line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	close(s.done)
	fmt.Fprint(s.writer, "\r"+strings.Repeat(" ", len(s.prefix)+4)+"\r")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
