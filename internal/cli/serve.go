package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/x4pay/x402-ble-go/internal/control"
	"github.com/x4pay/x402-ble-go/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose an emulator-backed session over the local control API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev, err := openDevice()
	if err != nil {
		return err
	}
	defer dev.close()

	go func() {
		for ev := range dev.events {
			log.Info().
				Str("type", string(ev.Type)).
				Str("attempt_id", ev.AttemptID).
				Bool("recurring", ev.Recurring).
				Str("tx", ev.Transaction).
				AnErr("error", ev.Error).
				Msg("payment event")
		}
	}()

	wallet, _ := resolveWallet(dev.keystore, "")
	srv := &http.Server{
		Addr: cfg.ControlAddr,
		Handler: control.NewServer(dev.session,
			control.WithLogger(logger.Component("control")),
			control.WithDefaultWallet(wallet),
		).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ControlAddr).Msg("control API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}
