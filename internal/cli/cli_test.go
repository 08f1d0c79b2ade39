package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x4pay/x402-ble-go"
	"github.com/x4pay/x402-ble-go/custody"
	"github.com/x4pay/x402-ble-go/internal/config"
)

func withConfig(t *testing.T, walletID string) *custody.Keystore {
	t.Helper()
	dir := t.TempDir()
	prev := cfg
	cfg = &config.Config{KeystoreDir: dir, WalletID: walletID}
	t.Cleanup(func() { cfg = prev })

	ks, err := custody.NewKeystore(dir, custody.WithScrypt(1<<4, 1))
	require.NoError(t, err)
	return ks
}

func TestResolveWallet(t *testing.T) {
	ks := withConfig(t, "")

	_, err := resolveWallet(ks, "")
	assert.Error(t, err, "empty keystore")

	id, err := resolveWallet(ks, "0xflag")
	require.NoError(t, err)
	assert.Equal(t, "0xflag", id)

	addr, err := ks.ImportHex("1234", "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	id, err = resolveWallet(ks, "")
	require.NoError(t, err)
	assert.Equal(t, addr, id)
}

func TestResolveWalletPrefersConfig(t *testing.T) {
	ks := withConfig(t, "0xconfigured")

	id, err := resolveWallet(ks, "")
	require.NoError(t, err)
	assert.Equal(t, "0xconfigured", id)
}

func TestPrintDevice(t *testing.T) {
	var buf bytes.Buffer
	printDevice(&buf, x402.DeviceMetadata{
		Description: "Charger",
		Options:     []string{"Fast", "Slow"},
		Frequency:   60,
	})
	assert.Equal(t, "Device: Charger\nOptions: Fast, Slow\nCadence: every 60s\n", buf.String())

	buf.Reset()
	printSettlement(&buf, &x402.SettlementResult{Verified: true, Transaction: "0xabc"})
	assert.Equal(t, "Payment verified tx=0xabc\n", buf.String())
}
