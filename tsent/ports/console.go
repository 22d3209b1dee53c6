package ports

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Console writes human-readable lines and a progress bar to a terminal.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
	bar *progressbar.ProgressBar
}

func NewConsole(out, errOut io.Writer) *Console {
	return &Console{out: out, err: errOut}
}

func (c *Console) Output(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, message)
}

func (c *Console) Warning(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.err, "warning: "+message)
}

func (c *Console) Error(message string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		fmt.Fprintf(c.err, "error: %s: %v\n", message, err)
		return
	}
	fmt.Fprintln(c.err, "error: "+message)
}

// StartProgress replaces any running bar with one counting to total.
func (c *Console) StartProgress(total int, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		_ = c.bar.Finish()
	}
	c.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(c.err),
		progressbar.OptionSetDescription(message),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("batch"),
		progressbar.OptionClearOnFinish(),
	)
}

func (c *Console) AdvanceProgress(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		_ = c.bar.Add(n)
	}
}

func (c *Console) StopProgress(success bool, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		_ = c.bar.Finish()
		c.bar = nil
	}
	if message == "" {
		return
	}
	if success {
		fmt.Fprintln(c.out, message)
	} else {
		fmt.Fprintln(c.err, "error: "+message)
	}
}

// Silent discards everything.
type Silent struct{}

func (Silent) Output(string)             {}
func (Silent) Warning(string)            {}
func (Silent) Error(string, error)       {}
func (Silent) StartProgress(int, string) {}
func (Silent) AdvanceProgress(int)       {}
func (Silent) StopProgress(bool, string) {}

var (
	_ Interactor = (*Console)(nil)
	_ Interactor = Silent{}
)
