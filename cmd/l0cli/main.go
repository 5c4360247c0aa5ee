package main

import (
	"github.com/robotalks/l0link/pkg/cli/sh"

	_ "github.com/robotalks/l0link/pkg/cli/cmds/link"
)

//go-build: CGO_ENABLED=0

func init() {
	sh.SetupFlags()
}

func main() {
	sh.Main()
}
