package report

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// SpinnerInterval is the delay between frames of a running spinner.
const SpinnerInterval = 120 * time.Millisecond

var spinnerFrames = []string{
	"⣀⣀ ", "⣄⣀ ", "⣤⣀ ", "⣦⣄ ", "⣶⣤ ", "⣿⣦ ", "⣿⣷ ", "⣿⣿ ",
	"⣿⣿ ", "⣷⣿ ", "⣦⣿ ", "⣤⣷ ", "⣄⣦ ", "⣀⣤ ", "⣀⣄ ", "⣀⣀ ",
}

// Spinner draws a braille progress indicator followed by a label on a
// single terminal line.
type Spinner struct {
	w     io.Writer
	label string
	index int

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewSpinner creates a spinner that writes to w.
func NewSpinner(w io.Writer, label string) *Spinner {
	return &Spinner{w: w, label: label, stop: make(chan struct{})}
}

// Update advances the spinner to the next frame and prints it.
func (s *Spinner) Update() {
	// Hide cursor
	fmt.Fprintf(s.w, "\x1b[?25l\r%s%s", spinnerFrames[s.index], s.label)
	s.index = (s.index + 1) % len(spinnerFrames)
}

// Cleanup clears the spinner line and shows the cursor.
func (s *Spinner) Cleanup() {
	fmt.Fprint(s.w, "\r\x1b[2K\x1b[?25h")
}

// Start animates the spinner until Stop is called.
func (s *Spinner) Start() {
	s.wg.Go(func() {
		ticker := time.NewTicker(SpinnerInterval)
		defer ticker.Stop()
		s.Update()
		for {
			select {
			case <-s.stop:
				s.Cleanup()
				return
			case <-ticker.C:
				s.Update()
			}
		}
	})
}

// Stop halts the animation and clears the line. It is safe to call more
// than once.
func (s *Spinner) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}
