package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func setupLogger(lvl, dst string, color bool) (func() error, error) {
	var (
		out     io.Writer
		cleanup func() error
	)

	if dst != "" {
		f, err := os.OpenFile(dst, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644) //nolint:gosec // this for a log
		if err != nil {
			return nil, err
		}

		out = f
		cleanup = f.Close
	} else {
		out = os.Stdout
		cleanup = func() error { return nil }
	}

	ll, err := zerolog.ParseLevel(lvl)
	if err != nil {
		if cErr := cleanup(); cErr != nil {
			fmt.Fprintln(os.Stderr, cErr)
		}
		return nil, err
	}

	writer := zerolog.ConsoleWriter{Out: out, NoColor: !color}
	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(ll)

	return cleanup, nil
}
