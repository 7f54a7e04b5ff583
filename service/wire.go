package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/contribsplit/attribution"
	"github.com/bitfsorg/contribsplit/config"
	"github.com/bitfsorg/contribsplit/distribution"
	"github.com/bitfsorg/contribsplit/github"
	"github.com/bitfsorg/contribsplit/invitation"
	"github.com/bitfsorg/contribsplit/keystore"
	"github.com/bitfsorg/contribsplit/ledger"
	"github.com/bitfsorg/contribsplit/proof"
	"github.com/bitfsorg/contribsplit/registry"
	"github.com/bitfsorg/contribsplit/store"
	"github.com/bitfsorg/contribsplit/verification"
)

// Options configures Open. Zero-valued overrides are built from Config.
type Options struct {
	Config config.Config
	Logger *slog.Logger
	Now    func() time.Time

	// KeystorePassword unlocks the authority keystore for signing
	// settlements. Without it settlements fail with ledger.ErrNoSigningKey.
	KeystorePassword string

	Store    store.Store
	Provider attribution.CommitProvider
	Channel  proof.Channel
	Executor ledger.Executor
}

// Open builds a Service from opts.
func Open(ctx context.Context, opts Options) (*Service, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	st := opts.Store
	if st == nil {
		var err error
		st, err = openStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	gh := github.NewClient(cfg.GitHubToken)
	gh.Logger = logger

	provider := opts.Provider
	if provider == nil {
		provider = attribution.GitHubProvider{Client: gh}
	}

	channel := opts.Channel
	if channel == nil {
		var err error
		channel, err = NewChannel(cfg, gh)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	executor := opts.Executor
	if executor == nil {
		var err error
		executor, err = newExecutor(cfg, opts.KeystorePassword, logger)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	calc := attribution.NewCalculator(provider,
		attribution.WithCache(attribution.StoreCache{Store: st}, cfg.CacheTTL),
		attribution.WithLogger(logger),
		attribution.WithClock(now),
	)
	reg := registry.New(st, registry.WithLogger(logger), registry.WithClock(now))
	ver := verification.NewManager(st, channel,
		verification.WithWindow(cfg.VerifyWindow),
		verification.WithLogger(logger),
		verification.WithClock(now),
	)
	inv := invitation.NewManager(st,
		invitation.WithTTL(cfg.InviteTTL),
		invitation.WithLogger(logger),
		invitation.WithClock(now),
	)
	eng := distribution.NewEngine(st, executor,
		distribution.WithFeeReserve(cfg.FeeReserve),
		distribution.WithSettleTimeout(cfg.SettleTimeout),
		distribution.WithLogger(logger),
		distribution.WithClock(now),
	)

	return New(Components{
		Store:        st,
		Calculator:   calc,
		Registry:     reg,
		Verification: ver,
		Invitations:  inv,
		Engine:       eng,
		Logger:       logger,
		Now:          now,
		Network:      cfg.Network,
	}), nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store {
	case store.BackendPostgres:
		return store.Open(ctx, store.BackendPostgres, cfg.DSN, logger)
	default:
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("service: create data dir: %w", err)
		}
		return store.Open(ctx, store.BackendBolt, cfg.BoltPath(), logger)
	}
}

// NewChannel returns the proof channel named by cfg.ProofChannel.
func NewChannel(cfg config.Config, gh *github.Client) (proof.Channel, error) {
	switch cfg.ProofChannel {
	case config.ProofGist, "":
		return github.NewGistChannel(gh), nil
	case config.ProofDNS:
		if cfg.DNSResolver == "" {
			return proof.NewDNSChannel(proof.SystemResolver{}), nil
		}
		return proof.NewDNSChannel(proof.NewDNSSECResolver(cfg.DNSResolver)), nil
	case config.ProofHTTP:
		ch, err := proof.NewHTTPChannel(cfg.ProofURL)
		if err != nil {
			return nil, err
		}
		return ch, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidProofChannel, cfg.ProofChannel)
	}
}

// newExecutor connects to the configured node. When no endpoint resolves the
// returned executor reports the resolution error on every call, so commands
// that never touch the ledger still work.
func newExecutor(cfg config.Config, password string, logger *slog.Logger) (ledger.Executor, error) {
	rpc, err := ledger.ResolveConfig(&ledger.RPCConfig{
		URL:      cfg.RPCURL,
		User:     cfg.RPCUser,
		Password: cfg.RPCPass,
	}, nil, cfg.Network)
	if err != nil {
		logger.Debug("ledger_unconfigured", "network", cfg.Network, "error", err)
		return unavailableExecutor{err: err}, nil
	}

	var signer ledger.Signer = lockedSigner{}
	if password != "" {
		ks, err := keystore.Open(cfg.KeystoreDir(), password, cfg.Network)
		if err != nil {
			return nil, fmt.Errorf("service: open keystore: %w", err)
		}
		signer = ks
	}

	return ledger.NewRPCExecutor(ledger.NewRPCClient(*rpc), signer, ledger.RPCExecutorConfig{
		Network: cfg.Network,
		Logger:  logger,
	}), nil
}

type lockedSigner struct{}

func (lockedSigner) PrivateKeyFor(address string) (*ec.PrivateKey, error) {
	return nil, fmt.Errorf("%w: keystore is locked (%s)", ledger.ErrNoSigningKey, address)
}

type unavailableExecutor struct{ err error }

func (u unavailableExecutor) GetBalance(context.Context, string, string) (uint64, error) {
	return 0, u.err
}

func (u unavailableExecutor) ExecuteSettlement(context.Context, string, string, []ledger.Recipient) (string, error) {
	return "", u.err
}
