package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/x4pay/x402-ble-go"
	"github.com/x4pay/x402-ble-go/channel"
	"github.com/x4pay/x402-ble-go/custody"
	"github.com/x4pay/x402-ble-go/internal/logger"
	"github.com/x4pay/x402-ble-go/internal/peripheral"
	"github.com/x4pay/x402-ble-go/session"
)

// device is a session wired to an emulated peripheral over an in-memory link.
type device struct {
	keystore *custody.Keystore
	emulator *peripheral.Emulator
	session  *session.Session
	events   chan x402.PaymentEvent
}

func openDevice() (*device, error) {
	ks, err := openKeystore()
	if err != nil {
		return nil, err
	}

	mem := channel.NewMemory()
	d := &device{
		keystore: ks,
		emulator: peripheral.New(mem, cfg.Peripheral, peripheral.WithLogger(logger.Component("peripheral"))),
		events:   make(chan x402.PaymentEvent, 64),
	}

	opts := append(cfg.SessionOptions(logger.Component("session")),
		session.WithPaymentCallback(func(ev x402.PaymentEvent) {
			select {
			case d.events <- ev:
			default:
				log.Warn().Str("type", string(ev.Type)).Msg("dropping payment event")
			}
		}),
	)
	d.session = session.New(mem, ks, opts...)
	return d, nil
}

func (d *device) close() {
	if err := d.session.Close(); err != nil {
		log.Warn().Err(err).Msg("disconnect failed")
	}
	d.emulator.Stop()
}

// provision requests metadata and waits until the options reply, the last
// one in the sequence, has been applied.
func (d *device) provision(ctx context.Context) (x402.DeviceMetadata, error) {
	if err := d.session.RequestMetadata(ctx); err != nil {
		return x402.DeviceMetadata{}, err
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		meta := d.session.Models().Snapshot()
		if meta.Options != nil {
			return meta, nil
		}
		select {
		case <-ctx.Done():
			return meta, fmt.Errorf("waiting for device metadata: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
