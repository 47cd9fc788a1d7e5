// pkg/progress/console.go - terminal Reporter with a progress bar

package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// ConsoleReporter renders install progress on a terminal. It satisfies utils.Reporter.
type ConsoleReporter struct {
	out     io.Writer
	bar     *progressbar.ProgressBar
	message string
}

// NewConsoleReporter creates a reporter writing to w (stderr when nil).
func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleReporter{out: w}
}

func (r *ConsoleReporter) newBar(desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(r.out)
		}),
	)
}

// Message starts a new bar headed by txt.
func (r *ConsoleReporter) Message(txt string) {
	r.finish()
	r.message = txt
	color.New(color.Bold).Fprintf(r.out, "%s\n", txt)
	r.bar = r.newBar("")
}

// Detail updates the bar description.
func (r *ConsoleReporter) Detail(txt string) {
	if r.bar == nil {
		r.bar = r.newBar(txt)
		return
	}
	r.bar.Describe(txt)
}

// Percent moves the bar; -1 leaves it untouched.
func (r *ConsoleReporter) Percent(pct int) {
	if pct < 0 {
		return
	}
	if r.bar == nil {
		r.bar = r.newBar(r.message)
	}
	_ = r.bar.Set(pct)
	if pct >= 100 {
		r.finish()
	}
}

// Error prints err in red below the bar.
func (r *ConsoleReporter) Error(err error) {
	r.finish()
	color.New(color.FgRed).Fprintf(r.out, "Error: %v\n", err)
}

func (r *ConsoleReporter) finish() {
	if r.bar == nil {
		return
	}
	if !r.bar.IsFinished() {
		_ = r.bar.Finish()
	}
	r.bar = nil
}
