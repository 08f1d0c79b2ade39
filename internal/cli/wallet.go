package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/x4pay/x402-ble-go/custody"
	"github.com/x4pay/x402-ble-go/internal/logger"
)

var (
	importMnemonic string
	importKey      string
	importIndex    uint32
	importPIN      string
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage PIN-protected wallets",
}

var walletImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Encrypt a key or mnemonic-derived account under a PIN",
	RunE:  runWalletImport,
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List wallet ids in the keystore",
	RunE:  runWalletList,
}

func init() {
	walletImportCmd.Flags().StringVar(&importMnemonic, "mnemonic", "", "BIP-39 mnemonic phrase")
	walletImportCmd.Flags().StringVar(&importKey, "key", "", "Hex private key")
	walletImportCmd.Flags().Uint32Var(&importIndex, "index", 0, "Account index for m/44'/60'/0'/0/i")
	walletImportCmd.Flags().StringVar(&importPIN, "pin", "", "PIN that unlocks the wallet")
	walletImportCmd.MarkFlagsOneRequired("mnemonic", "key")
	walletImportCmd.MarkFlagsMutuallyExclusive("mnemonic", "key")
	_ = walletImportCmd.MarkFlagRequired("pin")

	walletCmd.AddCommand(walletImportCmd)
	walletCmd.AddCommand(walletListCmd)
}

func openKeystore() (*custody.Keystore, error) {
	return custody.NewKeystore(cfg.KeystoreDir, custody.WithLogger(logger.Component("custody")))
}

func runWalletImport(cmd *cobra.Command, args []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}

	var address string
	if importMnemonic != "" {
		address, err = ks.ImportMnemonic(importPIN, importMnemonic, importIndex)
	} else {
		address, err = ks.ImportHex(importPIN, importKey)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported wallet %s\n", address)
	return nil
}

func runWalletList(cmd *cobra.Command, args []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	ids, err := ks.Wallets()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No wallets. Run: x4pay wallet import --key <hex> --pin <pin>")
		return nil
	}
	for _, id := range ids {
		marker := " "
		if id == cfg.WalletID {
			marker = "*"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, id)
	}
	return nil
}

// resolveWallet picks the flag value, the configured wallet, or the only
// wallet in the keystore.
func resolveWallet(ks *custody.Keystore, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if cfg.WalletID != "" {
		return cfg.WalletID, nil
	}
	ids, err := ks.Wallets()
	if err != nil {
		return "", err
	}
	if len(ids) != 1 {
		return "", fmt.Errorf("%d wallets in %s, choose one with --wallet or wallet_id", len(ids), cfg.KeystoreDir)
	}
	return ids[0], nil
}
