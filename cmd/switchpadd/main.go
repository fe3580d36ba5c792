// Command switchpadd emulates a Nintendo Switch Pro Controller or Joy-Con
// over Bluetooth to a single paired console.
package main

import (
	"os"
	"strings"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"

	"github.com/joyconemu/switchpad/internal/configpaths"
	"github.com/joyconemu/switchpad/internal/log"
)

// CLI is the root command set parsed by Kong.
type CLI struct {
	Serve     ServeCmd     `cmd:"" default:"1" help:"Pair with and emulate a controller to a console"`
	Install   InstallCmd   `cmd:"" help:"Install switchpadd as a systemd service (linux only)"`
	Uninstall UninstallCmd `cmd:"" help:"Remove the systemd service installed by install"`

	Config string `help:"Path to a JSON, YAML or TOML config file" env:"SWITCHPAD_CONFIG"`

	Log struct {
		Level string `help:"Log level: trace, debug, info, warn, error" default:"info" env:"SWITCHPAD_LOG_LEVEL"`
		File  string `help:"Also write logs to this file; console output then goes to stderr only" env:"SWITCHPAD_LOG_FILE"`
	} `embed:"" prefix:"log."`
}

func main() {
	userCfg := findUserConfig(os.Args[1:])
	jsonPaths, yamlPaths, tomlPaths := configpaths.ConfigCandidatePaths(userCfg)

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("switchpadd"),
		kong.Description("Switch Pro Controller / Joy-Con Bluetooth emulator"),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)

	logger, closeFiles, err := log.SetupLogger(cli.Log.Level, cli.Log.File)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() {
		for _, c := range closeFiles {
			_ = c.Close()
		}
	}()

	ctx.Bind(logger)
	ctx.FatalIfErrorf(ctx.Run())
}

func findUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--config=") {
			return a[len("--config="):]
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv("SWITCHPAD_CONFIG")
}
