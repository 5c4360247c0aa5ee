package link

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/l0link/pkg/cli/sh"
	"github.com/robotalks/l0link/pkg/l0/msgs"
)

var (
	// ResetCmd asks the device to restart.
	ResetCmd = ishell.Cmd{
		Name:    "reset",
		Aliases: []string{"r"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoCommand(c, msgs.Reset)
		}),
	}

	// ExampleCmd sends ExampleMessage.
	ExampleCmd = ishell.Cmd{
		Name:    "example",
		Aliases: []string{"ex"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoCommand(c, msgs.ExampleMessage)
		}),
	}

	// SendCmd sends a message by name or variant index.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "NAME|VARIANT",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("NAME required, one of %s", strings.Join(msgs.IncomingNames(), ", ")))
				return
			}
			msg, err := ParseMessage(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			sh.DoCommand(c, msg)
		}),
	}
)

// ParseMessage parses an incoming message from its name or variant index.
func ParseMessage(s string) (msgs.Incoming, error) {
	if val, err := strconv.ParseUint(s, 10, 32); err == nil {
		msg := msgs.Incoming(val)
		if !msg.IsValid() {
			return 0, &msgs.UnknownVariantError{Type: "Incoming", Variant: val}
		}
		return msg, nil
	}
	return msgs.ParseIncoming(s)
}

func init() {
	sh.AddCmds(
		&ResetCmd,
		&ExampleCmd,
		&SendCmd,
	)
}
