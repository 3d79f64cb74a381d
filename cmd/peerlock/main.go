package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mistakeknot/peerlock/internal/cli"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := cli.NewRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("peerlock")
	}
}
