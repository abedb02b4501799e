package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ai-speech-session-service/internal/display"
	httpapi "ai-speech-session-service/internal/http"
	"ai-speech-session-service/internal/service/audio"
	"ai-speech-session-service/internal/service/engine"
)

var (
	runMode       string
	runDevice     string
	runDeviceKind string
	runNoServe    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one session in the foreground",
	Long: `Runs one transcription session and prints the transcript to the
terminal. Ctrl+C stops the session gracefully; a second Ctrl+C aborts.`,
	RunE: runSession,
}

func init() {
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "Session mode: 1/plain, 2/diarized, 3/capture (default from config)")
	runCmd.Flags().StringVarP(&runDevice, "device", "d", "", "Capture device name or WAV path (default from config)")
	runCmd.Flags().StringVar(&runDeviceKind, "device-kind", "", "microphone, loopback or file")
	runCmd.Flags().BoolVar(&runNoServe, "no-serve", false, "Do not start the HTTP, gRPC and metrics servers")
	rootCmd.AddCommand(runCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	application, logger, cleanup, err := setup(true)
	if err != nil {
		printError("startup failed", err)
		return err
	}
	defer cleanup()

	mode, err := application.Mode()
	if runMode != "" {
		mode, err = engine.ParseMode(runMode)
	}
	if err != nil {
		printError("invalid mode", err)
		return err
	}

	dev, err := application.Device()
	if runDevice != "" || runDeviceKind != "" {
		var kind audio.DeviceKind
		kind, err = audio.ParseDeviceKind(runDeviceKind)
		dev = audio.Device{ID: runDevice, Kind: kind}
	}
	if err != nil {
		printError("invalid device", err)
		return err
	}

	display.NewConsole(os.Stdout).Attach(application.Bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		select {
		case <-sig:
		case <-ctx.Done():
			return
		}
		fmt.Fprintln(os.Stderr, "\nStopping session, press Ctrl+C again to abort")
		application.Coordinator.StopSession()
		select {
		case <-sig:
			cancel()
		case <-ctx.Done():
		}
	}()

	serveDone := make(chan struct{})
	serveCtx, stopServe := context.WithCancel(ctx)
	if runNoServe {
		close(serveDone)
	} else {
		go func() {
			defer close(serveDone)
			if err := application.Serve(serveCtx, httpapi.NewRouter(application)); err != nil {
				logger.Error().Err(err).Msg("Server failed")
			}
		}()
	}

	err = application.Coordinator.StartSession(ctx, mode, dev)
	stopServe()
	<-serveDone

	if err != nil {
		printError(engine.KindOf(err).String(), fmt.Errorf("%s", engine.ReasonOf(err)))
		return err
	}
	return nil
}
