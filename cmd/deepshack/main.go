package main

//      _                          _                     _
//   __| |  ___   ___  _ __   ___ | |__    __ _   ___  | | __
//  / _` | / _ \ / _ \| '_ \ / __|| '_ \  / _` | / __| | |/ /
// | (_| ||  __/|  __/| |_) |\__ \| | | || (_| || (__  |   <
//  \__,_| \___| \___|| .__/ |___/|_| |_| \__,_| \___| |_|\_\
//                    |_|

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mazznoer/colorgrad"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"komoridev/deepshack/internal/config"
	"komoridev/deepshack/internal/core"
	"komoridev/deepshack/internal/irc"
)

const version = "0.3.0"

func main() {
	fmt.Printf("%s\n", getBanner())

	app := &cli.Command{
		Name:    "deepshack",
		Usage:   "a deepseek bridge for irc",
		Version: version,
		Flags:   config.GetFlags(),
		Action:  run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		// Print to stderr first in case the logger isn't initialized
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}

	core.InitLogger(cfg.Bot.Verbose)
	defer zap.L().Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return irc.Run(ctx, cfg)
}

func getBanner() string {
	banner := `
     _                          _                     _
  __| |  ___   ___  _ __   ___ | |__    __ _   ___  | | __
 / _' | / _ \ / _ \| '_ \ / __|| '_ \  / _' | / __| | |/ /
| (_| ||  __/|  __/| |_) |\__ \| | | || (_| || (__  |   <
 \__,_| \___| \___|| .__/ |___/|_| |_| \__,_| \___| |_|\_\
                   |_|   .  .  .  whale  songs  on  demand  [v` + version + `]
`
	grad, _ := colorgrad.NewGradient().
		HtmlColors("#4d6bfeff", "#fdfdfdff").
		Build()

	lines := strings.Split(banner, "\n")

	// Find max line length for gradient spread
	maxLen := 0
	for _, line := range lines {
		if len(line) > maxLen {
			maxLen = len(line)
		}
	}

	colors := grad.Colors(uint(maxLen))
	var coloredBanner strings.Builder

	for _, line := range lines {
		for i, ch := range line {
			r, g, b, _ := colors[i].RGBA255()
			coloredBanner.WriteString(fmt.Sprintf("\x1b[38;2;%d;%d;%dm%c", r, g, b, ch))
		}
		coloredBanner.WriteString("\x1b[0m\n")
	}

	return coloredBanner.String()
}
