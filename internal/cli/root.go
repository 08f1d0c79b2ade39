// Package cli implements the x4pay command line.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/x4pay/x402-ble-go/internal/config"
	"github.com/x4pay/x402-ble-go/internal/logger"
)

var (
	debug   bool
	cfg     *config.Config
	log     zerolog.Logger
	rootCmd *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "x4pay",
		Short: "x402 payments over Bluetooth Low Energy",
		Long: `x4pay pays x402 peripherals over a BLE UART link: it provisions device
metadata, discovers the price, signs an EIP-3009 authorization with a
PIN-protected wallet and streams it to the device in fragments.`,
		PersistentPreRunE: setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
}

func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	if debug {
		loaded.Debug = true
	}
	cfg = loaded
	log = logger.Init("x4pay", cfg.Debug)
	return nil
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(serveCmd)

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
