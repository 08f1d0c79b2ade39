package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/x4pay/x402-ble-go"
	"github.com/x4pay/x402-ble-go/session"
)

var (
	payPIN     string
	payWallet  string
	payOptions []string
	payContext string
	autoPay    bool
	cycles     int
	payTimeout time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a full payment against the emulated peripheral",
	Long: `simulate provisions the emulated peripheral configured under "peripheral",
discovers its price and pays it with a keystore wallet. With --auto-pay and a
device frequency it keeps paying on the device cadence for --cycles rounds.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&payPIN, "pin", "", "Wallet PIN")
	simulateCmd.Flags().StringVar(&payWallet, "wallet", "", "Wallet id (defaults to wallet_id or the only wallet)")
	simulateCmd.Flags().StringSliceVar(&payOptions, "option", nil, "Selected option, repeatable")
	simulateCmd.Flags().StringVar(&payContext, "context", "", "Free-text context for the device")
	simulateCmd.Flags().BoolVar(&autoPay, "auto-pay", false, "Keep paying on the device cadence")
	simulateCmd.Flags().IntVar(&cycles, "cycles", 3, "Recurring payments to make before cancelling")
	simulateCmd.Flags().DurationVar(&payTimeout, "timeout", 5*time.Minute, "Overall time limit")
	_ = simulateCmd.MarkFlagRequired("pin")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, payTimeout)
	defer cancel()

	out := cmd.OutOrStdout()

	dev, err := openDevice()
	if err != nil {
		return err
	}
	defer dev.close()

	wallet, err := resolveWallet(dev.keystore, payWallet)
	if err != nil {
		return err
	}

	meta, err := dev.provision(ctx)
	if err != nil {
		return err
	}
	printDevice(out, meta)

	attempt, err := dev.session.Pay(ctx, session.PayRequest{
		PIN:      payPIN,
		WalletID: wallet,
		Options:  payOptions,
		Context:  payContext,
		AutoPay:  autoPay,
	})
	if err != nil {
		return err
	}
	if req := dev.session.Models().Requirement(); req != nil {
		fmt.Fprintf(out, "Paying %s to %s on %s\n", x402.FormatUSD(req.MaxAmountRequired), req.PayTo, req.Network)
	}

	result, err := attempt.Wait(ctx)
	if err != nil {
		return fmt.Errorf("payment failed: %w", err)
	}
	printSettlement(out, result)

	if !dev.session.Status().Recurring {
		return nil
	}
	return followRecurring(ctx, out, dev)
}

// followRecurring reports recurring outcomes until enough succeed, then
// cancels the schedule.
func followRecurring(ctx context.Context, out io.Writer, dev *device) error {
	defer dev.session.CancelRecurring()
	fmt.Fprintf(out, "Recurring every %ds, stopping after %d payments\n", dev.session.Status().Cadence, cycles)

	paid := 0
	for paid < cycles {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-dev.events:
			if !ev.Recurring {
				continue
			}
			switch ev.Type {
			case x402.PaymentEventSuccess:
				paid++
				fmt.Fprintf(out, "  #%d settled tx=%s\n", paid, ev.Transaction)
			case x402.PaymentEventFailure, x402.PaymentEventWarning:
				fmt.Fprintf(out, "  attempt failed: %v\n", ev.Error)
			}
		}
	}
	return nil
}

func printDevice(out io.Writer, meta x402.DeviceMetadata) {
	if meta.Description != "" {
		fmt.Fprintf(out, "Device: %s\n", meta.Description)
	}
	if opts := strings.Join(meta.Options, ", "); opts != "" {
		fmt.Fprintf(out, "Options: %s\n", opts)
	}
	if meta.Recurring() {
		fmt.Fprintf(out, "Cadence: every %ds\n", meta.Frequency)
	}
}

func printSettlement(out io.Writer, result *x402.SettlementResult) {
	if result.Transaction == "" {
		fmt.Fprintln(out, "Payment verified")
		return
	}
	fmt.Fprintf(out, "Payment verified tx=%s\n", result.Transaction)
}
