// Package main provides the vramctl CLI, which exercises the VRAM allocator and the engine built on
// it against the simulated device.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"golang.org/x/exp/slog"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// CLI represents the command-line interface structure.
type CLI struct {
	LogLevel string `help:"Minimum level of log records written to stderr." enum:"debug,info,warn,error" default:"info"`

	Stress StressCmd `cmd:"" help:"Run the chunk allocator stress test."`
	Map    MapCmd    `cmd:"" help:"Load demo graphics into a simulated device and print the memory map."`
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("vramctl"),
		kong.Description("Exercise the VRAM allocator and graphics memory managers."),
		kong.UsageOnError(),
	)

	logger := slog.New(slog.HandlerOptions{Level: logLevels[cli.LogLevel]}.NewTextHandler(os.Stderr))
	ctx.Bind(logger)

	err := ctx.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}
