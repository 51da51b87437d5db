package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nhle/order-console/internal/api"
	"github.com/nhle/order-console/internal/channel"
	"github.com/nhle/order-console/internal/credential"
	"github.com/nhle/order-console/internal/logging"
	"github.com/nhle/order-console/internal/model"
	"github.com/nhle/order-console/internal/reconciler"
	"github.com/nhle/order-console/internal/store"
)

const subsystem = "app"

// ErrNotLoggedIn is returned when no session token is stored.
var ErrNotLoggedIn = errors.New("not logged in")

var errInvalidLogin = errors.New("invalid email or password")

// Session is one authenticated admin session: the REST client, the single
// event channel shared by every screen, and the stored token.
type Session struct {
	cfg      *model.AppConfig
	store    store.Store
	creds    credential.Store
	client   *api.Client
	chanOpts []channel.Option

	mu      sync.Mutex
	channel *channel.Client
	user    *model.User

	connState chan bool
}

// NewSession builds a session from the stored token, if any. Nothing is
// dialed until Resume or Login.
func NewSession(cfg *model.AppConfig, st store.Store, creds credential.Store, opts ...channel.Option) *Session {
	token, err := creds.Get(credential.SessionTokenKey)
	if err != nil && !errors.Is(err, credential.ErrNotFound) {
		logging.Warn(subsystem, "reading session token: %v", err)
	}

	s := &Session{
		cfg:   cfg,
		store: st,
		creds: creds,
		client: api.NewClient(cfg.API.BaseURL, token,
			api.WithTimeout(time.Duration(cfg.API.TimeoutSec)*time.Second),
			api.WithMaxRetries(cfg.API.MaxRetries),
		),
		connState: make(chan bool, 1),
	}
	s.chanOpts = append([]channel.Option{channel.WithStateListener(s.publishConnState)}, opts...)
	return s
}

// Client returns the REST client.
func (s *Session) Client() *api.Client { return s.client }

// Store returns the local cache.
func (s *Session) Store() store.Store { return s.store }

// Config returns the configuration the session was built with.
func (s *Session) Config() *model.AppConfig { return s.cfg }

// User returns the logged-in admin, or nil.
func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Channel returns the event channel, or nil before login.
func (s *Session) Channel() *channel.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// Connected reports whether the event channel is up.
func (s *Session) Connected() bool {
	ch := s.Channel()
	return ch != nil && ch.Connected()
}

// ConnState delivers the latest channel state. Only the most recent
// value is kept.
func (s *Session) ConnState() <-chan bool { return s.connState }

func (s *Session) publishConnState(connected bool) {
	select {
	case <-s.connState:
	default:
	}
	select {
	case s.connState <- connected:
	default:
	}
}

// Resume validates the stored token and connects the channel. A rejected
// token is forgotten.
func (s *Session) Resume(ctx context.Context) (*model.User, error) {
	if s.client.Token() == "" {
		return nil, ErrNotLoggedIn
	}

	user, err := s.client.CurrentUser(ctx)
	if err != nil {
		if api.IsAuthError(err) {
			s.forgetToken()
		}
		return nil, fmt.Errorf("resuming session: %w", err)
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()

	if err := s.Connect(ctx); err != nil {
		logging.Warn(subsystem, "event channel unavailable: %v", err)
	}
	return user, nil
}

// Login authenticates, stores the token and connects the channel. A
// rejected login leaves the current session and its channel untouched. A
// channel failure does not fail the login; the console runs offline.
func (s *Session) Login(ctx context.Context, creds model.Credentials) (*model.User, error) {
	user, err := s.client.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	// The old channel carries the previous token.
	s.Disconnect()
	if err := s.creds.Set(credential.SessionTokenKey, user.Token); err != nil {
		logging.Warn(subsystem, "storing session token: %v", err)
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()

	if err := s.Connect(ctx); err != nil {
		logging.Warn(subsystem, "event channel unavailable: %v", err)
	}
	return user, nil
}

// Connect opens the event channel for the current token. The same
// channel is reused until Logout.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.channel == nil {
		s.channel = channel.New(s.cfg.Channel.URL, s.client.Token(), s.chanOpts...)
	}
	ch := s.channel
	s.mu.Unlock()
	return ch.Connect(ctx)
}

// Disconnect closes the event channel and forgets it.
func (s *Session) Disconnect() {
	s.mu.Lock()
	ch := s.channel
	s.channel = nil
	s.mu.Unlock()

	if ch == nil {
		return
	}
	if err := ch.Disconnect(); err != nil {
		logging.Warn(subsystem, "closing event channel: %v", err)
	}
	s.publishConnState(false)
}

// Logout closes the channel and removes the stored token.
func (s *Session) Logout() {
	s.Disconnect()
	s.forgetToken()
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
}

// Close releases the channel but keeps the token for the next start.
func (s *Session) Close() {
	s.Disconnect()
}

func (s *Session) forgetToken() {
	s.client.SetToken("")
	if err := s.creds.Delete(credential.SessionTokenKey); err != nil {
		logging.Warn(subsystem, "deleting session token: %v", err)
	}
}

// NewReconciler wires a reconciler to this session's channel, using the
// configured write mode and guard scope. Activity goes to the local store.
func (s *Session) NewReconciler() (*reconciler.Reconciler, error) {
	ch := s.Channel()
	if ch == nil {
		return nil, ErrNotLoggedIn
	}

	var w reconciler.Writer
	switch s.cfg.Sync.WriteMode {
	case model.WriteModeREST:
		w = reconciler.NewRESTWriter(s.client)
	default:
		w = reconciler.NewChannelWriter(ch)
	}

	return reconciler.New(reconciler.Config{
		Fetcher:    s.client,
		Subscriber: ch,
		Writer:     w,
		GuardScope: s.cfg.Sync.GuardScope,
		Recorder:   s.store,
	}), nil
}
