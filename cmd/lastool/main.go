// lastool is a CLI utility for decoding LAS point clouds into render batches.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/lascloud/internal/config"
	"github.com/Faultbox/lascloud/internal/logger"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		printUsage(stdout)
		return errors.New("missing command")
	}
	defer logger.Sync()

	command := args[0]
	err := dispatch(command, args[1:], stdout)
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
	}
	return err
}

func dispatch(command string, args []string, stdout io.Writer) error {
	switch command {
	case "info":
		return cmdInfo(args, stdout)
	case "points", "pts":
		return cmdPoints(args, stdout)
	case "batch":
		return cmdBatch(args, stdout)
	case "scan":
		return cmdScan(args, stdout)
	case "scans":
		return cmdScans(args, stdout)
	case "config":
		return cmdConfig(args, stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stdout)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `lastool - LAS 1.1 point cloud utility

Usage:
  lastool <command> [options]

Commands:
  info <file.las>                     Show header and intensity statistics
  points [-n N] <file.las>            Print the first N decoded points
  batch [options] <file|dir>...       Write one PCD file per batch
  scan [options] <file|dir>...        Decode files and record results in the catalog
  scans [-db path] [scan-id]          List recorded scans, or the files of one scan
  config init [path]                  Write the default config file

Options shared by every command:
  -config path    Config file (default ./lascloud.yaml or the user config dir)
  -debug          Debug logging
  -log path       Also log to a rotating file
  -workers N      Files decoded in parallel
  -limit N        Points per batch
  -scale S        Coordinate scale
  -swap-yz        Swap Y and Z axes
  -reference f    LAS file the origin is computed from
  -out dir        Batch output directory
  -db path        Catalog database

Examples:
  lastool info tile.las
  lastool points -n 5 tile.las
  lastool batch -limit 50000 -swap-yz -out ./pcd survey/
  lastool scan -db survey.db survey/`)
}

// command is one subcommand's flag set with the shared config flags.
type command struct {
	fs    *flag.FlagSet
	flags *config.Flags
}

func newCommand(name string) *command {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return &command{fs: fs, flags: config.RegisterFlags(fs)}
}

// load parses args, loads the layered config and starts logging.
func (c *command) load(args []string) (*config.Config, error) {
	if err := c.fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := config.Load(c.flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.Debug("config loaded",
		zap.String("command", c.fs.Name()),
		zap.Int("workers", cfg.Dataset.Workers),
		zap.Int("limit", cfg.Dataset.BatchLimit))
	return cfg, nil
}
