package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cfoust/spheres/pkg/config"
	"github.com/cfoust/spheres/pkg/version"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var CLI struct {
	Version bool `help:"Print version information and exit." short:"v"`
	Debug   bool `help:"Whether to enable debug logging."`

	Server struct {
		Configs []string `arg:"" optional:"" name:"configs" help:"Configuration files for the server." type:"file"`
	} `cmd:"" help:"Start a spheres server."`

	Client struct {
		Configs  []string      `arg:"" optional:"" name:"configs" help:"Configuration files for the client." type:"file"`
		Pattern  string        `help:"Scripted input: idle, left, right or sweep." default:"sweep" enum:"idle,left,right,sweep"`
		Rate     int           `help:"Ticks per second." default:"60"`
		Duration time.Duration `help:"Press escape after this long. Zero runs until interrupted." default:"0s"`
	} `cmd:"" help:"Start a headless client that moves its sphere on a script."`

	Config struct {
	} `cmd:"" help:"Write the default configuration to standard output."`
}

func writeError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}

func main() {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = log.Output(consoleWriter)

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if len(os.Args) == 1 {
		err := serverCommand([]string{})
		if err != nil {
			writeError(err)
		}
		return
	}

	ctx := kong.Parse(&CLI,
		kong.Name("spheres"),
		kong.Description("replicate a sphere per player between clients"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	if CLI.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Warn().Msg("debug logging enabled")
	}

	if CLI.Version {
		fmt.Printf(
			"spheres %s (commit %s)\n",
			version.Version,
			version.GitCommit,
		)
		fmt.Printf(
			"built %s\n",
			version.BuildTime,
		)
		os.Exit(0)
	}

	var err error
	switch ctx.Command() {
	case "server", "server <configs>":
		err = serverCommand(CLI.Server.Configs)
	case "client", "client <configs>":
		err = clientCommand(
			CLI.Client.Configs,
			CLI.Client.Pattern,
			CLI.Client.Rate,
			CLI.Client.Duration,
		)
	case "config":
		os.Stdout.Write(config.DEFAULT)
	}

	if err != nil {
		writeError(err)
	}
}
