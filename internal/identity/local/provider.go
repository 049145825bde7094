// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package local

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/fieldguard/fieldguard/internal/cache"
	"github.com/fieldguard/fieldguard/internal/identity"
	"github.com/fieldguard/fieldguard/pkg/errutil"
)

// deviceSessionKey is the cache key holding the device's current session.
const deviceSessionKey = "session"

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// Remote error codes returned to callers.
const (
	CodeInvalidCredentials   = "invalid_credentials"
	CodeUserAlreadyExists    = "user_already_exists"
	CodeWeakPassword         = "weak_password"
	CodeValidationFailed     = "validation_failed"
	CodeRefreshTokenNotFound = "refresh_token_not_found"
)

// Config configures token issuance.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Secret) < 32 {
		return oops.Code("IDENTITY_CONFIG_INVALID").With("field", "secret").
			Errorf("secret must be at least 32 bytes, got %d", len(c.Secret))
	}
	if c.AccessTTL <= 0 {
		return oops.Code("IDENTITY_CONFIG_INVALID").With("field", "access_ttl").Errorf("access ttl must be positive")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return oops.Code("IDENTITY_CONFIG_INVALID").With("field", "refresh_ttl").
			Errorf("refresh ttl must exceed access ttl")
	}
	return nil
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// WithHasher replaces the default argon2id hasher.
func WithHasher(h PasswordHasher) Option {
	return func(p *Provider) { p.hasher = h }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// Provider is a self-hosted identity.Provider.
type Provider struct {
	creds      CredentialStore
	tokens     RefreshTokenStore
	device     cache.Store
	hasher     PasswordHasher
	signer     *signer
	refreshTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger

	// refreshMu serializes token rotation so concurrent lookups do not
	// consume the same refresh token twice.
	refreshMu sync.Mutex

	subMu   sync.Mutex
	subs    map[int]identity.SessionChangeFunc
	nextSub int
}

// New creates a Provider. device holds the session of this device and
// should be namespaced away from other cached data.
func New(creds CredentialStore, tokens RefreshTokenStore, device cache.Store, cfg Config, opts ...Option) (*Provider, error) {
	if creds == nil || tokens == nil || device == nil {
		return nil, oops.Code("IDENTITY_PROVIDER_INVALID").Errorf("credential store, token store and device cache are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Provider{
		creds:      creds,
		tokens:     tokens,
		device:     device,
		hasher:     NewArgon2idHasher(DefaultArgon2Params),
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
		logger:     slog.Default(),
		subs:       make(map[int]identity.SessionChangeFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.signer = &signer{secret: cfg.Secret, ttl: cfg.AccessTTL, now: p.now}
	return p, nil
}

// GetCurrentSession implements identity.Provider. An expired access token is
// refreshed transparently; a dead refresh token clears the device session
// and returns a refresh_token_not_found RemoteError.
func (p *Provider) GetCurrentSession(ctx context.Context) (*identity.Session, error) {
	s, err := p.loadDevice(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	if p.accessValid(s) {
		return s, nil
	}

	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	// Another caller may have rotated the pair while we waited.
	current, err := p.loadDevice(ctx)
	if err != nil || current == nil {
		return nil, err
	}
	if current.RefreshToken != s.RefreshToken && p.accessValid(current) {
		return current, nil
	}
	return p.refresh(ctx, current)
}

func (p *Provider) accessValid(s *identity.Session) bool {
	if s.IsExpiredAt(p.now()) {
		return false
	}
	claims, err := p.signer.verify(s.AccessToken)
	return err == nil && claims.Subject == s.SubjectID
}

func (p *Provider) refresh(ctx context.Context, s *identity.Session) (*identity.Session, error) {
	rec, err := p.tokens.Consume(ctx, hashRefreshToken(s.RefreshToken))
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return nil, p.expire(ctx, s, "unknown")
	case err != nil:
		return nil, oops.Code("IDENTITY_REFRESH_FAILED").With("subject", s.SubjectID).Wrap(err)
	case rec.IsExpiredAt(p.now()):
		return nil, p.expire(ctx, s, "expired")
	case rec.SubjectID != s.SubjectID:
		return nil, p.expire(ctx, s, "subject_mismatch")
	}

	next, err := p.issue(ctx, s.SubjectID, s.Email)
	if err != nil {
		return nil, err
	}
	p.emit(identity.EventTokenRefreshed, next)
	return next.Clone(), nil
}

func (p *Provider) expire(ctx context.Context, s *identity.Session, reason string) error {
	p.logger.Info("refresh token rejected", "subject", s.SubjectID, "reason", reason)
	if err := p.device.Remove(ctx, deviceSessionKey); err != nil {
		errutil.LogWarn(p.logger, "clearing device session", err)
	}
	return &identity.RemoteError{
		Code:    CodeRefreshTokenNotFound,
		Message: "Invalid Refresh Token: Refresh Token Not Found",
	}
}

// SignInWithPassword implements identity.Provider.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	email = normalizeEmail(email)
	cred, err := p.creds.GetByEmail(ctx, email)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_SIGN_IN_FAILED").With("email", email).Wrap(err)
	}
	ok, err := p.hasher.Verify(password, cred.PasswordHash)
	if err != nil {
		return nil, oops.Code("IDENTITY_SIGN_IN_FAILED").With("email", email).Wrap(err)
	}
	if !ok {
		return nil, invalidCredentials()
	}

	s, err := p.issue(ctx, cred.SubjectID, cred.Email)
	if err != nil {
		return nil, err
	}
	p.emit(identity.EventSignedIn, s)
	return s.Clone(), nil
}

func invalidCredentials() error {
	return &identity.RemoteError{Code: CodeInvalidCredentials, Message: "Invalid login credentials"}
}

// SignUp implements identity.Provider. Accounts are confirmed immediately and
// the new subject is signed in on this device.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*identity.User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &identity.RemoteError{
			Code:    CodeValidationFailed,
			Message: "Unable to validate email address: invalid format",
		}
	}
	if len(password) < MinPasswordLength {
		return nil, &identity.RemoteError{
			Code:    CodeWeakPassword,
			Message: "Password should be at least 6 characters",
		}
	}
	hash, err := p.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("IDENTITY_SIGN_UP_FAILED").Wrap(err)
	}

	cred := &Credential{
		SubjectID:    uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    p.now().UTC(),
	}
	if err := p.creds.Create(ctx, cred); err != nil {
		if errors.Is(err, identity.ErrAlreadyExists) {
			return nil, &identity.RemoteError{Code: CodeUserAlreadyExists, Message: "User already registered"}
		}
		return nil, oops.Code("IDENTITY_SIGN_UP_FAILED").With("email", email).Wrap(err)
	}

	s, err := p.issue(ctx, cred.SubjectID, cred.Email)
	if err != nil {
		return nil, err
	}
	p.emit(identity.EventSignedIn, s)
	return &identity.User{ID: cred.SubjectID, Email: cred.Email}, nil
}

// SignOut implements identity.Provider. The device session is always cleared;
// a failure to revoke the refresh token server-side is returned afterwards.
func (p *Provider) SignOut(ctx context.Context) error {
	s, loadErr := p.loadDevice(ctx)

	var revokeErr error
	if s != nil {
		if _, err := p.tokens.Consume(ctx, hashRefreshToken(s.RefreshToken)); err != nil && !errors.Is(err, identity.ErrNotFound) {
			revokeErr = oops.Code("IDENTITY_REVOKE_FAILED").With("subject", s.SubjectID).Wrap(err)
		}
	}
	if err := p.device.Remove(ctx, deviceSessionKey); err != nil {
		return oops.Code("IDENTITY_SIGN_OUT_FAILED").Wrap(err)
	}
	p.emit(identity.EventSignedOut, nil)

	if revokeErr != nil {
		return revokeErr
	}
	return loadErr
}

// OnSessionChange implements identity.Provider. Callbacks run synchronously
// on the goroutine that caused the change.
func (p *Provider) OnSessionChange(fn identity.SessionChangeFunc) func() {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			p.subMu.Lock()
			defer p.subMu.Unlock()
			delete(p.subs, id)
		})
	}
}

// PruneExpired removes refresh tokens that can no longer be used.
func (p *Provider) PruneExpired(ctx context.Context) (int64, error) {
	n, err := p.tokens.DeleteExpired(ctx, p.now())
	if err != nil {
		return 0, oops.Code("IDENTITY_PRUNE_FAILED").Wrap(err)
	}
	return n, nil
}

// VerifyAccessToken validates an access token issued by this provider.
func (p *Provider) VerifyAccessToken(token string) (*Claims, error) {
	return p.signer.verify(token)
}

func (p *Provider) emit(event identity.AuthEvent, s *identity.Session) {
	p.subMu.Lock()
	fns := make([]identity.SessionChangeFunc, 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.subMu.Unlock()

	for _, fn := range fns {
		fn(event, s.Clone())
	}
}

// issue mints a new token pair for subject, records the refresh token and
// stores the session on the device.
func (p *Provider) issue(ctx context.Context, subject, email string) (*identity.Session, error) {
	access, expires, err := p.signer.issue(subject, email)
	if err != nil {
		return nil, err
	}
	raw, hash, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	now := p.now().UTC()
	rec := &RefreshToken{
		ID:        ulidString(),
		SubjectID: subject,
		TokenHash: hash,
		ExpiresAt: now.Add(p.refreshTTL),
		CreatedAt: now,
	}
	if err := p.tokens.Create(ctx, rec); err != nil {
		return nil, oops.Code("IDENTITY_TOKEN_STORE_FAILED").With("subject", subject).Wrap(err)
	}

	s := &identity.Session{
		AccessToken:  access,
		RefreshToken: raw,
		SubjectID:    subject,
		Email:        email,
		ExpiresAt:    expires,
	}
	if err := p.saveDevice(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Provider) loadDevice(ctx context.Context) (*identity.Session, error) {
	raw, ok, err := p.device.Get(ctx, deviceSessionKey)
	if err != nil {
		return nil, oops.Code("IDENTITY_DEVICE_LOAD_FAILED").Wrap(err)
	}
	if !ok {
		return nil, nil
	}
	var s identity.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.SubjectID == "" {
		p.logger.Warn("discarding unreadable device session")
		if rmErr := p.device.Remove(ctx, deviceSessionKey); rmErr != nil {
			errutil.LogWarn(p.logger, "clearing device session", rmErr)
		}
		return nil, nil
	}
	return &s, nil
}

func (p *Provider) saveDevice(ctx context.Context, s *identity.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return oops.Code("IDENTITY_DEVICE_SAVE_FAILED").Wrap(err)
	}
	if err := p.device.Set(ctx, deviceSessionKey, string(raw)); err != nil {
		return oops.Code("IDENTITY_DEVICE_SAVE_FAILED").Wrap(err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ identity.Provider = (*Provider)(nil)
