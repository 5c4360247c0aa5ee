package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"

	fx "github.com/robotalks/l0link/pkg/framework"
	"github.com/robotalks/l0link/pkg/l0/comm"
	"github.com/robotalks/l0link/pkg/l0/firmware"
)

func init() {
	firmware.SetupFlags()
}

func main() {
	flag.Parse()

	conf := firmware.NewConfig()
	err := fx.NewRunner().
		HandleSignals().
		Go(fx.RunFunc(func(ctx context.Context) error {
			return firmware.Boot(ctx, conf, func() (comm.Transport, error) {
				return conf.NewTransport()
			})
		})).
		Wait()
	if err != nil {
		log.Fatalln(err)
	}
}
