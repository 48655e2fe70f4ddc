package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/shaunagostinho/sq100/internal/config"
	"github.com/shaunagostinho/sq100/internal/logger"
)

const usage = `usage: sq100 [flags] <command> [command flags]

commands:
  list                       show the tracks stored on the watch
  download [ids]             download tracks, e.g. "1,3-5" (all when omitted)
  archive list               show archived tracks
  archive export <key>...    export archived tracks
  archive delete <key>...    remove tracks from the archive
  serve                      run the web interface
  ports                      list serial ports

flags:
`

func main() {
	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "sq100:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("sq100", flag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usage)
		flags.PrintDefaults()
	}
	configPath := flags.String("config", config.DefaultPath, "Path to config file")
	demo := flags.Bool("demo", false, "Use a simulated watch")
	port := flags.String("port", "", "Override serial port (e.g. /dev/ttyUSB0)")
	firmware := flags.String("firmware", "", "Override firmware: auto, gh625 or gh615")
	verbose := flags.Bool("v", false, "Debug logging")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return flag.ErrHelp
	}

	boot := logger.Console(zerolog.InfoLevel)
	cfg, err := config.LoadConfig(afero.NewOsFs(), *configPath, boot)
	if err != nil {
		return err
	}
	if *demo {
		cfg.Device.Demo = true
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *firmware != "" {
		cfg.Device.Firmware = *firmware
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closer, err := logger.Init(cfg.Snapshot().Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	a := newApp(cfg, log, stdout)
	cmd, rest := flags.Arg(0), flags.Args()[1:]
	switch cmd {
	case "list":
		return a.list(ctx)
	case "download":
		return a.download(ctx, rest)
	case "archive":
		return a.archive(rest)
	case "serve":
		return a.serve(ctx)
	case "ports":
		return a.ports()
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}
