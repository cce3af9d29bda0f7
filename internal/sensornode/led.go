package sensornode

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	gpiocdev "github.com/warthog618/go-gpiocdev"
)

// blinkInterval is the slow-blink period used to indicate a disconnected or
// reconnecting link, chosen to be clearly distinguishable from a solid-on
// connected indicator at a glance.
const blinkInterval = 500 * time.Millisecond

// LEDIndicator drives a GPIO line to reflect link state: solid on while
// connected, slow blink while disconnected. When no GPIO chip is configured
// (chip == ""), it falls back to logging state transitions instead, so the
// node remains usable on hosts with no GPIO hardware.
type LEDIndicator struct {
	logger *log.Logger
	line   *gpiocdev.Line
}

// NewLEDIndicator requests the given chip/line as an output. If chip is
// empty, it returns an indicator that only logs.
func NewLEDIndicator(chip string, lineOffset int, logger *log.Logger) (*LEDIndicator, error) {
	ind := &LEDIndicator{logger: logger}
	if chip == "" {
		return ind, nil
	}

	line, err := gpiocdev.RequestLine(chip, lineOffset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, err
	}
	ind.line = line
	return ind, nil
}

// Close releases the GPIO line, if one was requested.
func (l *LEDIndicator) Close() error {
	if l.line == nil {
		return nil
	}
	return l.line.Close()
}

func (l *LEDIndicator) set(on bool) {
	if l.line == nil {
		return
	}
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		l.logger.Debug("set led value", "err", err)
	}
}

// Run drives the indicator to reflect connected() until ctx is cancelled.
func (l *LEDIndicator) Run(ctx context.Context, connected func() bool) {
	ticker := time.NewTicker(blinkInterval)
	defer ticker.Stop()

	lastLogged := -1
	blinkOn := false
	for {
		select {
		case <-ctx.Done():
			l.set(false)
			return
		case <-ticker.C:
			if connected() {
				l.set(true)
				if lastLogged != 1 && l.line == nil {
					l.logger.Info("link indicator: connected")
				}
				lastLogged = 1
				continue
			}
			blinkOn = !blinkOn
			l.set(blinkOn)
			if lastLogged != 0 && l.line == nil {
				l.logger.Info("link indicator: disconnected, blinking")
			}
			lastLogged = 0
		}
	}
}
