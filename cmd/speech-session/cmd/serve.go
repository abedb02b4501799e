package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpapi "ai-speech-session-service/internal/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session service",
	Long: `Runs the HTTP API, the gRPC health service, the metrics endpoint and
the transcript viewer hub. Sessions are started and stopped over HTTP.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	application, logger, cleanup, err := setup(false)
	if err != nil {
		printError("startup failed", err)
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Serve(ctx, httpapi.NewRouter(application)); err != nil {
		logger.Error().Err(err).Msg("Server failed")
		return err
	}
	return nil
}
