// Package main runs the VxTag agent: it scans NFC tags, writes vxMoney
// payloads to them and serves the result to browser and phone clients over
// HTTP and WebSocket.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nedpals/vxtag-agent/buildinfo"
	"github.com/nedpals/vxtag-agent/config"
	"github.com/nedpals/vxtag-agent/logging"
)

// Operations accepted by -once.
const (
	onceScan  = "scan"
	onceWrite = "write"
)

type options struct {
	cli     bool
	once    string
	version bool
	envHelp bool
	noMDNS  bool
}

// parseFlags overrides cfg with command line flags.
func parseFlags(fs *flag.FlagSet, args []string, cfg *config.Config) (options, error) {
	var opts options

	fs.StringVar(&cfg.NFC.Device, "device", cfg.NFC.Device, "NFC device connection string or phone ID (optional)")
	fs.StringVar(&cfg.NFC.Manager, "manager", cfg.NFC.Manager, "Tag source: hardware or smartphone")
	fs.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Address to listen on")
	fs.IntVar(&cfg.Server.Port, "port", cfg.Server.Port, "Port to listen on for the web interface")
	fs.StringVar(&cfg.Server.APISecret, "api-secret", cfg.Server.APISecret, "API secret for the session handshake (optional)")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level: trace, debug, info, warn, error")
	fs.IntVar(&cfg.NFC.MaxAttempts, "max-attempts", cfg.NFC.MaxAttempts, "Write attempts before giving up")
	fs.StringVar(&cfg.Editor.Image, "image", cfg.Editor.Image, "Image offered by the editor's picker")
	fs.BoolVar(&cfg.Server.TLS, "tls", cfg.Server.TLS, "Serve HTTPS with a locally trusted certificate")
	fs.BoolVar(&opts.noMDNS, "no-mdns", false, "Disable mDNS advertisement")
	fs.BoolVar(&opts.cli, "cli", false, "Run in CLI mode (default: system tray mode)")
	fs.StringVar(&opts.once, "once", "", "Run a single operation (scan or write) and exit")
	fs.StringVar(&cfg.NFC.Message, "message", cfg.NFC.Message, "Message written by -once write and the tray's Write item")
	fs.BoolVar(&opts.version, "version", false, "Print version information and exit")
	fs.BoolVar(&opts.envHelp, "env", false, "List the VXTAG_* environment variables and exit")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.noMDNS {
		cfg.Server.EnableMDNS = false
	}

	switch opts.once {
	case "", onceScan:
	case onceWrite:
		if cfg.NFC.Message == "" {
			return opts, errors.New("-once write needs -message")
		}
	default:
		return opts, fmt.Errorf("unknown -once operation %q (want scan or write)", opts.once)
	}
	return opts, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	opts, err := parseFlags(flag.CommandLine, args, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if opts.version {
		fmt.Println(buildinfo.BuildInfo())
		return 0
	}
	if opts.envHelp {
		if err := config.Usage(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logging.Init(cfg.Log.Level, os.Stderr)
	log := logging.For("main")

	agent, err := NewAgent(cfg)
	if err != nil {
		log.WithError(err).Error("Failed to create agent")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case opts.once != "":
		return runOnce(ctx, agent, opts)
	case opts.cli:
		if err := agent.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start agent")
			return 1
		}
		<-ctx.Done()
		log.Info("Shutdown signal received, stopping server...")
		agent.Close()
		return 0
	default:
		go func() {
			<-ctx.Done()
			quitTray()
		}()
		NewSystrayApp(agent).Run()
		return 0
	}
}

// runOnce performs one scan or write and prints the result as JSON. Phones
// need the server to connect, so it is started for the smartphone manager.
func runOnce(ctx context.Context, agent *Agent, opts options) int {
	log := agent.Logger
	if agent.Phones != nil {
		if err := agent.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start server")
			return 1
		}
	}
	defer agent.Close()

	var (
		result any
		err    error
	)
	if opts.once == onceWrite {
		report, werr := agent.Write(ctx, agent.Config.NFC.Message)
		if report != nil {
			result = report
		}
		err = werr
	} else {
		info, serr := agent.Scan(ctx)
		if info != nil {
			result = info
		}
		err = serr
	}

	if result != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(result)
	}
	if err != nil {
		log.WithError(err).Errorf("%s failed", opts.once)
		return 1
	}
	return 0
}
