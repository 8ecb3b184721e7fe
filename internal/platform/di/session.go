// internal/platform/di/session.go
package di

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	storefrontq "medicart/internal/application/query/storefront"
	usecase "medicart/internal/application/usecase"

	outfs "medicart/internal/adapters/out/firestore"
	httpout "medicart/internal/adapters/out/http"
	notifyout "medicart/internal/adapters/out/notify"

	cartdom "medicart/internal/domain/cart"

	authinfra "medicart/internal/infra/auth"
	"medicart/internal/infra/config"
	firestoreinfra "medicart/internal/infra/firestore"
)

// Session is the composition root for one customer session: store, engine,
// queries and their outbound adapters, built fresh per session and torn down
// on sign-out. Pure DI: build deps only, no business branching.
type Session struct {
	Cfg *config.Config

	Store  *cartdom.Store
	CartUC *usecase.CartUsecase
	CartQ  *storefrontq.CartQuery

	// Gate is the engine-facing view; Auth is non-nil only for the
	// Firebase-backed (API) variant and carries SignIn/SignOut.
	Gate cartdom.AuthGate
	Auth *authinfra.SessionGate

	// Toasts is the UI-facing notification stream.
	Toasts *notifyout.ChannelNotifier

	closers []func() error
}

// NewSession builds a session wired to the backend selected by
// cfg.CartBackend. customerID is only used by the Firestore variant (the REST
// backend derives the customer from the bearer token).
func NewSession(ctx context.Context, cfg *config.Config, log *logrus.Entry, customerID string) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("di: config is nil")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	switch strings.TrimSpace(cfg.CartBackend) {
	case "", config.CartBackendAPI:
		return newAPISession(ctx, cfg, log)
	case config.CartBackendFirestore:
		return newFirestoreSession(ctx, cfg, log, customerID)
	default:
		return nil, fmt.Errorf("di: unknown cart backend %q", cfg.CartBackend)
	}
}

// newAPISession: REST gateway + Firebase session gate.
func newAPISession(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*Session, error) {
	var opts []option.ClientOption
	if cfg.GCPCreds != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCPCreds))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("di: firebase app: %w", err)
	}
	fbAuth, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("di: firebase auth: %w", err)
	}

	gate := authinfra.NewSessionGate(fbAuth)

	apiKey, err := cfg.ResolveStorefrontAPIKey(ctx)
	if err != nil {
		// key は必須ではない（バックエンド側が要求しない環境もある）
		log.WithError(err).Warn("storefront api key unresolved; continuing without")
		apiKey = ""
	}

	gateway := httpout.NewStorefrontAPIClient(cfg.StorefrontAPIBaseURL, apiKey, gate)

	s := assemble(cfg, log, gateway, gate)
	s.Auth = gate
	return s, nil
}

// newFirestoreSession: direct Firestore gateway (ops console / local dev).
// The caller is assumed already authenticated out-of-band, so the gate is
// static.
func newFirestoreSession(ctx context.Context, cfg *config.Config, log *logrus.Entry, customerID string) (*Session, error) {
	cid := strings.TrimSpace(customerID)
	if cid == "" {
		return nil, errors.New("di: firestore backend requires a customerID")
	}

	fs, err := firestoreinfra.NewClient(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredentialsFile)
	if err != nil {
		return nil, err
	}

	// fail at build time rather than on the first queued op
	if err := fs.Ping(ctx); err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("di: firestore ping: %w", err)
	}

	gateway := outfs.NewCartGatewayFS(fs.Client, cid)
	gate := authinfra.StaticGate{Authenticated: true}

	s := assemble(cfg, log, gateway, gate)
	s.closers = append(s.closers, fs.Close)
	return s, nil
}

func assemble(cfg *config.Config, log *logrus.Entry, gateway cartdom.Gateway, gate cartdom.AuthGate) *Session {
	store := cartdom.NewStore()
	toasts := notifyout.NewChannelNotifier(32)
	notifier := notifyout.MultiNotifier{toasts, notifyout.NewLogNotifier(log)}

	uc := usecase.NewCartUsecaseWithPacing(store, gateway, gate, notifier, log, cfg.SyncPacing)

	return &Session{
		Cfg:    cfg,
		Store:  store,
		CartUC: uc,
		CartQ:  storefrontq.NewCartQuery(store),
		Gate:   gate,
		Toasts: toasts,
	}
}

// SignOut tears the cart session down: the gate drops its token and the
// local store re-enters the uninitialized-empty state.
func (s *Session) SignOut() {
	if s == nil {
		return
	}
	if s.Auth != nil {
		s.Auth.SignOut()
	}
	if s.Store != nil {
		s.Store.Clear()
		s.Store.ResetErr()
	}
}

// Close releases the session's clients.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
