package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	fx "github.com/robotalks/l0link/pkg/framework"
	"github.com/robotalks/l0link/pkg/l1/bridge"
)

func init() {
	bridge.SetupFlags()
}

func main() {
	flag.Parse()

	b := bridge.MustNew(bridge.NewConfig())
	err := fx.NewRunner().
		HandleSignals().
		Go(fx.NamedRun("bridge", b)).
		Wait()
	if err != nil {
		log.Fatalln(err)
	}
}
