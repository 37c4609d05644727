package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"optreturns/internal/cli"
)

// Commands lists the subcommands registered by main.
var Commands = []subcommands.Command{
	&reportCmd{},
	&importCmd{},
	&chartCmd{},
}

func main() {
	cli.LoadEnvFile()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range Commands {
		commander.Register(c, "returns")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
