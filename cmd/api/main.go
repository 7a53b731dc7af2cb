package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(&serveCmd{}, "")
	commander.Register(&migrateCmd{}, "")

	flag.Parse()
	ctx := context.Background()
	if flag.NArg() == 0 {
		serve := &serveCmd{}
		fs := flag.NewFlagSet(serve.Name(), flag.ExitOnError)
		serve.SetFlags(fs)
		os.Exit(int(serve.Execute(ctx, fs)))
	}
	os.Exit(int(commander.Execute(ctx)))
}
