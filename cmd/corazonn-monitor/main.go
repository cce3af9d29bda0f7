// corazonn-monitor is a reference beat-event consumer: it subscribes to the
// broadcast bus as an additional reuse-port listener and renders a live
// per-sensor line (last IBI, derived BPM, and a pulse glyph) to the
// terminal, put into raw mode the same way the reference TNC puts a serial
// device into raw mode for character-at-a-time I/O.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/term"
	"github.com/schuyler/corazonn/internal/broadcast"
	"github.com/schuyler/corazonn/internal/wire"
	"github.com/spf13/pflag"
)

func main() {
	var (
		port = pflag.IntP("port", "p", 8001, "Beats broadcast port to subscribe to.")
		help = pflag.Bool("help", false, "Display help text.")
	)
	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: corazonn-monitor [options]")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		return
	}

	if err := run(*port); err != nil {
		fmt.Fprintln(os.Stderr, "corazonn-monitor:", err)
		os.Exit(1)
	}
}

func run(port int) error {
	sub, err := broadcast.NewSubscriber(port)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Close()

	// Raw mode disables line buffering and echo, the same posture the
	// reference TNC puts a serial device into for unbuffered, character-at-a-
	// time I/O; here it keeps a Ctrl-C responsive without a newline and
	// leaves the cursor free for the redrawn status lines below.
	tty, err := term.Open("/dev/tty", term.RawMode)
	if err == nil {
		defer tty.Restore()
		defer tty.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	lastIBI := make(map[int]int32, wire.MaxSensors)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stdout, "\r\nshutting down")
			return nil
		default:
		}

		event, err := sub.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		lastIBI[event.SensorID] = event.IBIMS
		bpm := 0.0
		if event.IBIMS > 0 {
			bpm = 60000.0 / float64(event.IBIMS)
		}
		glyph := pulseGlyph(event.Intensity)
		fmt.Fprintf(os.Stdout, "\rsensor %d  ibi=%4dms  bpm=%5.1f  %s   ", event.SensorID, event.IBIMS, bpm, glyph)
	}
}

// pulseGlyph renders a 0..1 intensity as one of a small set of characters so
// the live line has a visible "thump" without needing a full TUI library.
func pulseGlyph(intensity float32) string {
	switch {
	case intensity > 0.85:
		return "*"
	case intensity > 0.5:
		return "+"
	default:
		return "."
	}
}
