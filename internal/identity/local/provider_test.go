// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package local_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldguard/fieldguard/internal/cache"
	"github.com/fieldguard/fieldguard/internal/errclass"
	"github.com/fieldguard/fieldguard/internal/identity"
	"github.com/fieldguard/fieldguard/internal/identity/local"
	"github.com/fieldguard/fieldguard/pkg/errutil"
)

type memCredentials struct {
	mu   sync.Mutex
	rows map[string]*local.Credential
}

func (m *memCredentials) Create(_ context.Context, c *local.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[c.Email]; ok {
		return identity.ErrAlreadyExists
	}
	m.rows[c.Email] = c
	return nil
}

func (m *memCredentials) GetByEmail(_ context.Context, email string) (*local.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[strings.ToLower(email)]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return c, nil
}

type memTokens struct {
	mu   sync.Mutex
	rows map[string]*local.RefreshToken
	err  error
}

func (m *memTokens) Create(_ context.Context, r *local.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.TokenHash] = r
	return nil
}

func (m *memTokens) Consume(_ context.Context, hash string) (*local.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.rows[hash]
	if !ok {
		return nil, identity.ErrNotFound
	}
	delete(m.rows, hash)
	return r, nil
}

func (m *memTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, r := range m.rows {
		if r.IsExpiredAt(now) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func (m *memTokens) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	provider *local.Provider
	tokens   *memTokens
	device   *cache.MemoryStore
	clock    *clock
	events   *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []identity.AuthEvent
}

func (l *eventLog) record(e identity.AuthEvent, _ *identity.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []identity.AuthEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]identity.AuthEvent(nil), l.events...)
}

var testConfig = local.Config{
	Secret:     []byte("0123456789abcdef0123456789abcdef"),
	AccessTTL:  time.Hour,
	RefreshTTL: 24 * time.Hour,
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tokens: &memTokens{rows: make(map[string]*local.RefreshToken)},
		device: cache.NewMemoryStore(),
		clock:  &clock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)},
		events: &eventLog{},
	}
	p, err := local.New(
		&memCredentials{rows: make(map[string]*local.Credential)},
		f.tokens,
		f.device,
		testConfig,
		local.WithClock(f.clock.Now),
		local.WithHasher(local.NewArgon2idHasher(local.Argon2Params{Time: 1, Memory: 8, Threads: 1, SaltLen: 8, KeyLen: 16})),
	)
	require.NoError(t, err)
	f.provider = p
	unsubscribe := p.OnSessionChange(f.events.record)
	t.Cleanup(unsubscribe)
	return f
}

func TestNew_Validation(t *testing.T) {
	_, err := local.New(nil, nil, nil, testConfig)
	errutil.AssertErrorCode(t, err, "IDENTITY_PROVIDER_INVALID")

	tests := []struct {
		name  string
		cfg   local.Config
		field string
	}{
		{"short secret", local.Config{Secret: []byte("x"), AccessTTL: time.Hour, RefreshTTL: 2 * time.Hour}, "secret"},
		{"zero access ttl", local.Config{Secret: testConfig.Secret, RefreshTTL: time.Hour}, "access_ttl"},
		{"refresh not longer", local.Config{Secret: testConfig.Secret, AccessTTL: time.Hour, RefreshTTL: time.Hour}, "refresh_ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			errutil.AssertErrorCode(t, err, "IDENTITY_CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "field", tt.field)
		})
	}
}

func TestProvider_SignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.provider.SignUp(ctx, " Ana@Example.com ", "secret-pw")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.NotEmpty(t, user.ID)

	s, err := f.provider.GetCurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s, "sign-up signs the device in")
	assert.Equal(t, user.ID, s.SubjectID)

	claims, err := f.provider.VerifyAccessToken(s.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)

	_, err = f.provider.SignUp(ctx, "ana@example.com", "another-pw")
	var remote *identity.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, local.CodeUserAlreadyExists, remote.Code)

	require.NoError(t, f.provider.SignOut(ctx))
	s, err = f.provider.GetCurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = f.provider.SignInWithPassword(ctx, "ana@example.com", "wrong")
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, local.CodeInvalidCredentials, remote.Code)

	signedIn, err := f.provider.SignInWithPassword(ctx, "ANA@example.com", "secret-pw")
	require.NoError(t, err)
	assert.Equal(t, user.ID, signedIn.SubjectID)

	assert.Equal(t, []identity.AuthEvent{
		identity.EventSignedIn, identity.EventSignedOut, identity.EventSignedIn,
	}, f.events.all())
}

func TestProvider_SignUpValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var remote *identity.RemoteError
	_, err := f.provider.SignUp(ctx, "not-an-email", "secret-pw")
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, local.CodeValidationFailed, remote.Code)

	_, err = f.provider.SignUp(ctx, "ana@example.com", "123")
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, local.CodeWeakPassword, remote.Code)

	_, err = f.provider.SignInWithPassword(ctx, "nobody@example.com", "x")
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, local.CodeInvalidCredentials, remote.Code)
}

func TestProvider_RefreshesExpiredAccessToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.provider.SignUp(ctx, "ana@example.com", "secret-pw")
	require.NoError(t, err)
	first, err := f.provider.GetCurrentSession(ctx)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	second, err := f.provider.GetCurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.SubjectID, second.SubjectID)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken, "refresh tokens rotate")
	assert.Equal(t, 1, f.tokens.len(), "old refresh token consumed")
	assert.Contains(t, f.events.all(), identity.EventTokenRefreshed)

	third, err := f.provider.GetCurrentSession(ctx)
	require.NoError(t, err)
	assert.True(t, second.Same(third), "fresh session is reused")
}

func TestProvider_ConcurrentRefreshRotatesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.provider.SignUp(ctx, "ana@example.com", "secret-pw")
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.provider.GetCurrentSession(ctx)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, f.tokens.len())
}

func TestProvider_DeadRefreshTokenIsExpiredCredential(t *testing.T) {
	ctx := context.Background()

	t.Run("refresh token expired", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.provider.SignUp(ctx, "ana@example.com", "secret-pw")
		require.NoError(t, err)

		f.clock.Advance(48 * time.Hour)
		s, err := f.provider.GetCurrentSession(ctx)
		assert.Nil(t, s)
		assert.Equal(t, errclass.ExpiredCredential, errclass.Classify(err))
		assert.Equal(t, 0, f.device.Len(), "device session cleared")

		s, err = f.provider.GetCurrentSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("refresh token revoked", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.provider.SignUp(ctx, "ana@example.com", "secret-pw")
		require.NoError(t, err)
		_, err = f.tokens.DeleteExpired(ctx, f.clock.Now().Add(100*time.Hour))
		require.NoError(t, err)

		f.clock.Advance(2 * time.Hour)
		_, err = f.provider.GetCurrentSession(ctx)
		assert.True(t, errclass.ShouldForceSignOut(err))
	})
}

func TestProvider_RefreshStoreFailureIsNotExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.provider.SignUp(ctx, "ana@example.com", "secret-pw")
	require.NoError(t, err)

	f.tokens.mu.Lock()
	f.tokens.err = errors.New("dial tcp 10.0.0.1:5432: connection refused")
	f.tokens.mu.Unlock()

	f.clock.Advance(2 * time.Hour)
	_, err = f.provider.GetCurrentSession(ctx)
	errutil.AssertErrorCode(t, err, "IDENTITY_REFRESH_FAILED")
	assert.True(t, errclass.ShouldTriggerOfflineMode(err))
	assert.Equal(t, 1, f.device.Len(), "device session kept for a later retry")
}

func TestProvider_UnreadableDeviceSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.device.Set(ctx, "session", "{garbage"))

	s, err := f.provider.GetCurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, 0, f.device.Len())
}

func TestProvider_PruneExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.provider.SignUp(ctx, "ana@example.com", "secret-pw")
	require.NoError(t, err)

	n, err := f.provider.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(25 * time.Hour)
	n, err = f.provider.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestProvider_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	var calls int
	unsubscribe := f.provider.OnSessionChange(func(identity.AuthEvent, *identity.Session) { calls++ })
	unsubscribe()
	unsubscribe()

	_, err := f.provider.SignUp(ctx, "ana@example.com", "secret-pw")
	require.NoError(t, err)
	assert.Zero(t, calls)
}
