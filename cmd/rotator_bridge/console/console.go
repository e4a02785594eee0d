// Package console is the operator's stdin command line.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/w1xm/rotator_bridge/rotator"
)

// ErrQuit is returned by Run when the operator enters q.
var ErrQuit = errors.New("operator quit")

const usage = "commands: t AZ EL | c | s | p | q"

type Console struct {
	r   rotator.Rotator
	cal rotator.Calibrator
	out io.Writer
}

// New returns a console driving r. cal may be nil if calibration is not
// supported.
func New(r rotator.Rotator, cal rotator.Calibrator, out io.Writer) *Console {
	return &Console{r: r, cal: cal, out: out}
}

// Run executes lines from in until EOF, q, or ctx is canceled.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	fmt.Fprintln(c.out, usage)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			return err
		case line := <-lines:
			if c.Execute(line) {
				return ErrQuit
			}
		}
	}
}

// Execute runs one command line and reports whether it was q.
func (c *Console) Execute(line string) bool {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "q":
		return true
	case "t":
		c.target(fields[1:])
	case "c":
		if c.cal == nil {
			fmt.Fprintln(c.out, "calibration not supported")
			return false
		}
		if err := c.cal.Calibrate(); err != nil {
			fmt.Fprintf(c.out, "calibrate: %v\n", err)
			return false
		}
		fmt.Fprintln(c.out, "calibrated: az=0 el=0")
	case "s":
		c.r.Stop()
		az, el := c.r.Position()
		fmt.Fprintf(c.out, "stopped at az=%.1f el=%.1f\n", az, el)
	case "p":
		az, el := c.r.Position()
		fmt.Fprintf(c.out, "az=%.2f el=%.2f\n", az, el)
	default:
		fmt.Fprintln(c.out, usage)
	}
	return false
}

func (c *Console) target(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "format: t -30 30")
		return
	}
	az, err1 := strconv.ParseFloat(args[0], 64)
	el, err2 := strconv.ParseFloat(args[1], 64)
	if err1 != nil || err2 != nil {
		fmt.Fprintln(c.out, "format: t -30 30")
		return
	}
	if err := c.r.SetTarget(az, el); err != nil {
		fmt.Fprintf(c.out, "target: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "target: az=%.1f el=%.1f\n", az, el)
}
