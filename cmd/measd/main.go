// Command measd runs a measurement client: it connects to the
// orchestrator, registers as a MEAS_CLIENT, and services CALLs against an
// attached radio (spec.md §4.3, original_source meascli.py).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/allisontodd/shout/internal/config"
	"github.com/allisontodd/shout/internal/logging"
	"github.com/allisontodd/shout/internal/peer"
	"github.com/allisontodd/shout/internal/radio"
	"github.com/allisontodd/shout/internal/wire"
)

var opt struct {
	Host string
	Port int
	Name string
	Help bool
}

func init() {
	pflag.StringVarP(&opt.Host, "host", "s", "", "Orchestrator host to connect to (overrides SHOUT_ORCH_HOST)")
	pflag.IntVarP(&opt.Port, "port", "p", 0, "Orchestrator port (overrides SHOUT_ORCH_PORT)")
	pflag.StringVarP(&opt.Name, "name", "n", "", "Client name to report (overrides SHOUT_CLIENT_NAME)")
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()
	if opt.Help {
		fmt.Printf("usage: %s [options]\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		os.Exit(0)
	}

	var cfg config.MeasClientConfig
	if err := config.Unmarshal(&cfg, os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: invalid configuration: %v\n", err)
		os.Exit(2)
	}
	if opt.Host != "" {
		cfg.OrchestratorHost = opt.Host
	}
	if opt.Port != 0 {
		cfg.OrchestratorPort = opt.Port
	}
	if opt.Name != "" {
		cfg.ClientName = opt.Name
	}

	log := logging.New(logging.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	driver := radio.NewFakeDriver()
	handler := peer.NewMeasurementClient(driver, cfg.ClientName, log)

	connector := peer.NewConnector(peer.Policy{
		Host:         cfg.OrchestratorHost,
		Port:         cfg.OrchestratorPort,
		PeerType:     wire.PeerMeasClient,
		ClientName:   cfg.ClientName,
		MaxConnTries: cfg.MaxConnTries,
		ConnSleep:    cfg.ConnSleep,
	}, handler, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := connector.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("measurement client exited")
	}
}
