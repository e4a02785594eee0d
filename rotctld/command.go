package rotctld

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Kind int

const (
	Unknown Kind = iota
	SetPosition
	GetPosition
	Stop
	Quit
	DumpCaps
)

func (k Kind) String() string {
	switch k {
	case SetPosition:
		return "set_pos"
	case GetPosition:
		return "get_pos"
	case Stop:
		return "stop"
	case Quit:
		return "quit"
	case DumpCaps:
		return "dump_caps"
	}
	return "unknown"
}

// Command is one parsed request line.
type Command struct {
	Kind Kind
	// Name is the command token as sent.
	Name string
	Args []string
	// Az and El are set for a valid SetPosition.
	Az, El float64
	// Err is set when the command was recognised but its arguments were not.
	Err error
}

// Hamlib return codes.
const (
	RigOK     = 0
	RigEInval = -1
	RigENImpl = -8
)

var errArgCount = errors.New("wrong number of arguments")

var names = map[string]Kind{
	"P":          SetPosition,
	`\set_pos`:   SetPosition,
	"p":          GetPosition,
	`\get_pos`:   GetPosition,
	"S":          Stop,
	`\stop`:      Stop,
	"Q":          Quit,
	`\quit`:      Quit,
	"1":          DumpCaps,
	`\dump_caps`: DumpCaps,
}

// Parse splits a request line into a Command. ok is false for blank lines,
// which get no reply.
func Parse(line string) (cmd Command, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, false
	}
	cmd = Command{
		Kind: names[fields[0]],
		Name: fields[0],
		Args: fields[1:],
	}
	if cmd.Kind == SetPosition {
		cmd.Az, cmd.El, cmd.Err = parsePosition(cmd.Args)
	}
	return cmd, true
}

func parsePosition(args []string) (float64, float64, error) {
	if len(args) != 2 {
		return 0, 0, errArgCount
	}
	var v [2]float64
	for i, arg := range args {
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return 0, 0, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, 0, fmt.Errorf("non-finite argument %q", arg)
		}
		v[i] = f
	}
	return v[0], v[1], nil
}
