package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/ianlewis/visits-go/internal/catalog"
	"github.com/ianlewis/visits-go/internal/worker"
)

var (
	inputFlag = &cli.StringFlag{
		Name:    "input",
		Aliases: []string{"i"},
		Usage:   "visit log `FILE` of route,timestamp lines",
		Value:   "data/data.csv",
		EnvVars: []string{"VISITS_INPUT"},
	}
	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "JSON `FILE` to write",
		Value:   "data/data.json",
		EnvVars: []string{"VISITS_OUTPUT"},
	}
	catalogFlag = &cli.StringFlag{
		Name:     "catalog",
		Usage:    "JSON `FILE` listing the known routes as [{\"id\":1,\"uri\":\"...\"}]",
		Required: true,
		EnvVars:  []string{"VISITS_CATALOG"},
	}
	prefixLenFlag = &cli.IntFlag{
		Name:    "prefix-len",
		Usage:   "number of leading URI bytes to strip to get the route path",
		Value:   catalog.DefaultPrefixLen,
		EnvVars: []string{"VISITS_PREFIX_LEN"},
	}
	epochFlag = &cli.StringFlag{
		Name:    "epoch",
		Usage:   "first `DATE` (YYYY-MM-DD) of the date window",
		Value:   "2020-01-01",
		EnvVars: []string{"VISITS_EPOCH"},
	}
	windowFlag = &cli.IntFlag{
		Name:    "window",
		Usage:   "number of days in the date window",
		Value:   2200,
		EnvVars: []string{"VISITS_WINDOW"},
	}
	workersFlag = &cli.IntFlag{
		Name:    "workers",
		Aliases: []string{"w"},
		Usage:   "number of ranges scanned in parallel",
		Value:   runtime.NumCPU(),
		EnvVars: []string{"VISITS_WORKERS"},
	}
	slotCapacityFlag = &cli.StringFlag{
		Name:    "slot-capacity",
		Usage:   "largest partial result a worker may produce, e.g. 16MB (default: worst case)",
		EnvVars: []string{"VISITS_SLOT_CAPACITY"},
	}
	blockSizeFlag = &cli.StringFlag{
		Name:    "block-size",
		Usage:   "size of each read made by a worker",
		Value:   "256KB",
		EnvVars: []string{"VISITS_BLOCK_SIZE"},
	}
	delimiterFlag = &cli.StringFlag{
		Name:    "delimiter",
		Usage:   "single byte separating the route from the timestamp",
		Value:   string(rune(worker.DefaultDelimiter)),
		EnvVars: []string{"VISITS_DELIMITER"},
	}
	channelDirFlag = &cli.StringFlag{
		Name:    "channel-dir",
		Usage:   "back the result channel with a temporary file in `DIR` instead of anonymous shared memory",
		EnvVars: []string{"VISITS_CHANNEL_DIR"},
	}
	indentFlag = &cli.IntFlag{
		Name:  "indent",
		Usage: "pretty print the output with this many spaces per level",
	}
	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "debug, info, warn or error",
		Value:   "info",
		EnvVars: []string{"VISITS_LOG_LEVEL"},
	}
	logFormatFlag = &cli.StringFlag{
		Name:    "log-format",
		Usage:   "console or json",
		Value:   "console",
		EnvVars: []string{"VISITS_LOG_FORMAT"},
	}
	cpuprofileFlag = &cli.StringFlag{
		Name:  "cpuprofile",
		Usage: "write cpu profile to `file`",
	}
	memprofileFlag = &cli.StringFlag{
		Name:  "memprofile",
		Usage: "write memory profile to `file`",
	}
	execprofileFlag = &cli.StringFlag{
		Name:  "execprofile",
		Usage: "write trace execution to `file`",
	}
)

var parseCommand = &cli.Command{
	Name:   "parse",
	Usage:  "Count visits per route per day",
	Action: parseAction,
	Flags: []cli.Flag{
		inputFlag,
		outputFlag,
		catalogFlag,
		prefixLenFlag,
		epochFlag,
		windowFlag,
		workersFlag,
		slotCapacityFlag,
		blockSizeFlag,
		delimiterFlag,
		channelDirFlag,
		indentFlag,
		logLevelFlag,
		logFormatFlag,
		cpuprofileFlag,
		memprofileFlag,
		execprofileFlag,
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "visits-go",
		Usage:    "aggregate a visit log into per route, per day counts",
		Commands: []*cli.Command{parseCommand},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
