// Package transport opens the bidirectional channels to tool providers:
// a spawned subprocess speaking framed JSON-RPC over its standard streams,
// or a long-lived SSE connection paired with an HTTP submission endpoint.
package transport

import (
	"context"
	"fmt"

	"github.com/vitalink/vitalink/internal/appconfig"
)

// Binding is one live channel to a provider. Send and Receive carry raw
// JSON-RPC payloads; framing is a transport concern.
type Binding interface {
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Open builds the binding named by the provider config.
func Open(ctx context.Context, cfg appconfig.Provider) (Binding, error) {
	switch cfg.Kind {
	case appconfig.KindStdio:
		return OpenStdio(cfg.Command)
	case appconfig.KindSSE:
		return OpenSSE(ctx, cfg.URL)
	default:
		return nil, fmt.Errorf("provider %q: unknown transport kind %q", cfg.Name, cfg.Kind)
	}
}
