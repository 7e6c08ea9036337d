// Command ifaced runs an interface client: it connects to the
// orchestrator, registers as an IFACE_CLIENT, and executes a command
// script against the registered measurement clients (spec.md §5,
// original_source measiface.py).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/allisontodd/shout/internal/command"
	"github.com/allisontodd/shout/internal/config"
	"github.com/allisontodd/shout/internal/logging"
	"github.com/allisontodd/shout/internal/peer"
	"github.com/allisontodd/shout/internal/sequencer"
	"github.com/allisontodd/shout/internal/store/memstore"
	"github.com/allisontodd/shout/internal/wire"
)

var opt struct {
	CmdFile string
	Host    string
	Port    int
	Help    bool
}

func init() {
	pflag.StringVarP(&opt.CmdFile, "cmdfile", "c", "", "Command script to execute (required)")
	pflag.StringVarP(&opt.Host, "host", "s", "", "Orchestrator host to connect to (overrides SHOUT_ORCH_HOST)")
	pflag.IntVarP(&opt.Port, "port", "p", 0, "Orchestrator port (overrides SHOUT_ORCH_PORT)")
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()
	if opt.Help || opt.CmdFile == "" {
		fmt.Printf("usage: %s -c commands.json [options]\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.CmdFile == "" {
			os.Exit(2)
		}
		os.Exit(0)
	}

	var cfg config.IfaceConfig
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

	log := logging.New(logging.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	f, err := os.Open(opt.CmdFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", opt.CmdFile).Msg("failed to open command script")
	}
	script, err := command.Parse(f)
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse command script")
	}

	handler := peer.NewInterfaceClient(log)
	connector := peer.NewConnector(peer.Policy{
		Host:         cfg.OrchestratorHost,
		Port:         cfg.OrchestratorPort,
		PeerType:     wire.PeerIfaceClient,
		ClientName:   cfg.ClientName,
		MaxConnTries: cfg.MaxConnTries,
		ConnSleep:    0,
	}, handler, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	connErr := make(chan error, 1)
	go func() { connErr <- connector.Run(ctx) }()

	driver := sequencer.NewDriver(connector.Send, handler.Results(), memstore.New(), handler.Ready, handler.RequestQuit, log)
	if err := driver.Run(ctx, script); err != nil {
		log.Error().Err(err).Msg("command script failed")
	}

	cancel()
	<-connErr
}
