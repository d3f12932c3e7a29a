package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/retrolab/retrolab/cmd/retrolab/commands"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := context.WithCancel(log.Logger.WithContext(context.Background()))
	defer cancel()

	// Termination signals cancel the context; a running emulator child is
	// killed with it and its transcript is left without the trailing exit
	// marker, which is how an interrupted run stays detectable.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
		cancel()
	}()

	if err := commands.RootCmd().ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("Error running command")
	}
}
