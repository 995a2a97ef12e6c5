package main

import (
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ianlewis/visits-go/internal/catalog"
	"github.com/ianlewis/visits-go/internal/datecodec"
	"github.com/ianlewis/visits-go/internal/engine"
	"github.com/ianlewis/visits-go/internal/output"
)

// newLogger builds a zap logger writing to stderr.
func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// configFromFlags builds the engine configuration from the command line.
func configFromFlags(cctx *cli.Context) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	cfg.Workers = cctx.Int(workersFlag.Name)
	cfg.ChannelDir = cctx.String(channelDirFlag.Name)

	if s := cctx.String(slotCapacityFlag.Name); s != "" {
		if err := cfg.SlotCapacity.UnmarshalText([]byte(s)); err != nil {
			return cfg, fmt.Errorf("--%s: %w", slotCapacityFlag.Name, err)
		}
	}
	var blockSize datasize.ByteSize
	if err := blockSize.UnmarshalText([]byte(cctx.String(blockSizeFlag.Name))); err != nil {
		return cfg, fmt.Errorf("--%s: %w", blockSizeFlag.Name, err)
	}
	cfg.BlockSize = blockSize

	delim := cctx.String(delimiterFlag.Name)
	if len(delim) != 1 {
		return cfg, fmt.Errorf("--%s: must be a single byte, got %q", delimiterFlag.Name, delim)
	}
	cfg.Delimiter = delim[0]

	return cfg, cfg.Validate()
}

func parseAction(cctx *cli.Context) error {
	start := time.Now()

	logger, err := newLogger(cctx.String(logLevelFlag.Name), cctx.String(logFormatFlag.Name))
	if err != nil {
		return fmt.Errorf("--%s/--%s: %w", logLevelFlag.Name, logFormatFlag.Name, err)
	}
	defer func() { _ = logger.Sync() }()

	stopProfiling, err := startProfiling(cctx.String(cpuprofileFlag.Name), cctx.String(execprofileFlag.Name))
	if err != nil {
		return err
	}
	defer stopProfiling()

	cfg, err := configFromFlags(cctx)
	if err != nil {
		return err
	}

	visits, err := catalog.LoadFile(cctx.String(catalogFlag.Name))
	if err != nil {
		return err
	}
	routes, err := catalog.New(visits, cctx.Int(prefixLenFlag.Name))
	if err != nil {
		return err
	}

	epoch, err := time.Parse(datecodec.Layout, cctx.String(epochFlag.Name))
	if err != nil {
		return fmt.Errorf("--%s: %w", epochFlag.Name, err)
	}
	dates, err := datecodec.New(epoch, cctx.Int(windowFlag.Name))
	if err != nil {
		return err
	}
	logger.Debug("catalogs built",
		zap.Int("routes", routes.Len()),
		zap.String("epoch", epoch.Format(datecodec.Layout)),
		zap.Int("window", dates.Window()),
	)

	p, err := engine.New(cfg, routes, dates, logger)
	if err != nil {
		return err
	}
	res, _, err := p.Parse(cctx.Context, cctx.String(inputFlag.Name))
	if err != nil {
		return err
	}
	if err := output.WriteFile(cctx.String(outputFlag.Name), res, cctx.Int(indentFlag.Name)); err != nil {
		return err
	}

	if err := writeMemProfile(cctx.String(memprofileFlag.Name)); err != nil {
		return err
	}

	fmt.Fprintf(cctx.App.Writer, "Done in %.3fs\n", time.Since(start).Seconds())
	return nil
}
