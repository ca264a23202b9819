// Command httpd runs the content-enhancement service: the HTTP API, the
// enhancement queue, and its worker pool.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hypeindex/enhancement/internal/bootstrap"
	"github.com/hypeindex/enhancement/internal/config"
	"github.com/hypeindex/enhancement/internal/logger"
)

func main() {
	app, err := bootstrap.New(config.GetConfigPath("config.yml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(context.Background()); err != nil {
		app.Logger.Error("service exited with error", logger.Error(err))
		os.Exit(1)
	}
}
