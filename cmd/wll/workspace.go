package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/worldline-systems/wll/pkg/config"
	"github.com/worldline-systems/wll/pkg/fabric"
	"github.com/worldline-systems/wll/pkg/ledger"
	"github.com/worldline-systems/wll/pkg/objstore"
	"github.com/worldline-systems/wll/pkg/observability"
	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// workspace bundles the core components every subcommand operates on,
// built once from the resolved Config. Subcommands that don't need a
// piece (e.g. gc never touches the ledger's clock) just leave it unused.
type workspace struct {
	cfg    config.Config
	store  *objstore.FS
	clock  *fabric.Clock
	ledger *ledger.File
	obs    *observability.Provider
}

// openWorkspace loads config from cfgPath (or defaults if empty) and
// opens the object store and ledger it points at. It never requires a
// prior `wll init` to have run against that exact path: a missing
// ledger file starts empty, matching File.load's tolerant behavior.
func openWorkspace(ctx context.Context, cfgPath string) (*workspace, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "wll",
		ServiceVersion: "0.1.0",
		Enabled:        false,
	})
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	store, err := objstore.NewFS(filepath.Join(cfg.StoreDir, "objects"))
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}

	clock := fabric.NewClock(cfg.NodeId)

	led, err := ledger.OpenFile(cfg.LedgerPath, clock)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	return &workspace{cfg: cfg, store: store, clock: clock, ledger: led, obs: obs}, nil
}

func (w *workspace) Close() {
	_ = w.obs.Shutdown(context.Background())
}

// parseWorldline decodes a hex-encoded worldline digest from a CLI flag.
func parseWorldline(s string) (wcrypto.Digest, error) {
	if s == "" {
		return wcrypto.Digest{}, fmt.Errorf("--worldline is required")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return wcrypto.Digest{}, fmt.Errorf("--worldline: %w", err)
	}
	id, ok := wcrypto.DigestFromBytes(raw)
	if !ok {
		return wcrypto.Digest{}, fmt.Errorf("--worldline: expected %d bytes hex-encoded, got %d", wcrypto.DigestSize, len(raw))
	}
	return id, nil
}

func digestHex(d wcrypto.Digest) string {
	return hex.EncodeToString(d.Bytes())
}
