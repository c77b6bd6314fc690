/*
dictrd serves dictionary lookups over a line-oriented text protocol
(spec-compatible with a small subset of RFC 2229). It opens a fixed
pair of databases, "jargon" and "devils", from a directory of
"<shortname>.index"/"<shortname>.dict" file pairs and then accepts
connections on the dictd port until interrupted.
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"

	"github.com/jansc/dictrd"
)

var opts struct {
	Addr    string `short:"a" long:"addr" description:"address to listen on" default:"127.0.0.1:2628"`
	DictDir string `short:"d" long:"dict-dir" description:"directory containing <name>.index/<name>.dict pairs" default:"./dicts"`
	Verbose bool   `short:"v" long:"verbose" description:"enable debug logging"`
}

var databaseNames = []string{"jargon", "devils"}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	reg := dictrd.NewRegistry()
	for _, name := range databaseNames {
		if _, err := reg.LoadDatabase(opts.DictDir, name, &logger); err != nil {
			logger.Fatal().Err(err).Str("database", name).Msg("failed to load database")
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server := dictrd.NewServer(opts.Addr, reg, &logger)
	if err := server.ListenAndServe(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}
