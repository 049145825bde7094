// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fieldguard/fieldguard/internal/cache"
	"github.com/fieldguard/fieldguard/internal/errclass"
	"github.com/fieldguard/fieldguard/internal/identity"
	"github.com/fieldguard/fieldguard/pkg/errutil"
)

var tracer = otel.Tracer("fieldguard/session")

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

// WithMetrics replaces the package-level collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

type queuedEvent struct {
	event   identity.AuthEvent
	session *identity.Session
}

// Controller owns the session, profile and connectivity state of a device.
// All methods are safe for concurrent use.
type Controller struct {
	provider identity.Provider
	profiles identity.ProfileStore
	cache    *cache.IdentityCache
	cfg      Config
	logger   *slog.Logger
	metrics  *Metrics

	// ctx scopes background work; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	bc     *broadcaster

	mu          sync.Mutex
	state       State
	initialized bool
	closed      bool
	loaded      chan struct{}
	loadedDone  bool
	safetyTimer *time.Timer
	poller      *poller
	unsubscribe func()
	// sessionGen increments whenever the session is replaced or cleared.
	sessionGen uint64
	// cacheFresh is set once the cached identity was written or cleared by
	// this process, so hydration must not overwrite it.
	cacheFresh bool
	// signUps counts in-flight SignUp calls.
	signUps int
	// clearGen increments whenever the cached identity is cleared.
	clearGen uint64

	// cacheMu serializes cached identity writes. Lock order: cacheMu, then mu.
	cacheMu sync.Mutex

	eventMu     sync.Mutex
	eventQueue  []queuedEvent
	eventSignal chan struct{}
}

// New creates a Controller. Call Initialize to start it and Close to stop it.
func New(provider identity.Provider, profiles identity.ProfileStore, store cache.Store, opts ...Option) (*Controller, error) {
	if provider == nil {
		return nil, oops.Code("SESSION_INVALID_DEPENDENCY").With("dependency", "provider").Errorf("identity provider is required")
	}
	if profiles == nil {
		return nil, oops.Code("SESSION_INVALID_DEPENDENCY").With("dependency", "profiles").Errorf("profile store is required")
	}
	if store == nil {
		return nil, oops.Code("SESSION_INVALID_DEPENDENCY").With("dependency", "cache").Errorf("cache store is required")
	}

	c := &Controller{
		provider:    provider,
		profiles:    profiles,
		cfg:         DefaultConfig(),
		logger:      slog.Default(),
		metrics:     defaultMetrics,
		bc:          newBroadcaster(),
		loaded:      make(chan struct{}),
		eventSignal: make(chan struct{}, 1),
		state:       State{Phase: PhaseInitializing, Loading: true},
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	c.logger = c.logger.With("component", "session")
	c.cache = cache.NewIdentityCache(store, c.logger)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe returns a channel that receives the current state and then every
// change. A slow subscriber only sees the newest state. The channel is closed
// by the returned cancel function or by Close.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bc.subscribe(c.state.clone())
}

// WaitLoaded blocks until the startup load has finished or timed out.
func (c *Controller) WaitLoaded(ctx context.Context) error {
	select {
	case <-c.loaded:
		return nil
	case <-ctx.Done():
		return oops.Code("SESSION_WAIT_CANCELLED").Wrap(ctx.Err())
	}
}

// AssertOnline returns ErrOfflineReadOnly while in offline read-only mode.
// Callers that mutate remote data call it first and fail fast.
func (c *Controller) AssertOnline() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.OfflineReadOnly {
		return ErrOfflineReadOnly
	}
	return nil
}

// Initialize starts the controller: it hydrates the cached identity, subscribes
// to identity changes and loads the current session in the background.
// It returns immediately; use WaitLoaded or Subscribe to observe progress.
func (c *Controller) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("SESSION_INIT_CANCELLED").Wrap(err)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.initialized {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.initialized = true
	c.wg.Add(3)
	c.mu.Unlock()

	c.logger.Info("initializing session")

	go func() {
		defer c.wg.Done()
		c.hydrate(c.ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.runEvents(c.ctx)
	}()

	unsubscribe := c.provider.OnSessionChange(c.enqueueEvent)
	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.bootstrap(c.ctx)
	}()
	return nil
}

// Close stops timers, the poller and the provider subscription, waits for
// background work and closes subscriber channels. It is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopSafetyTimerLocked()
	c.stopPollerLocked()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.cancel()
	c.wg.Wait()
	c.bc.close()
}

// hydrate publishes the cached identity unless a fresher one already exists.
func (c *Controller) hydrate(ctx context.Context) {
	cached, err := c.cache.Load(ctx)
	if err != nil {
		errutil.LogWarn(c.logger, "loading cached identity", err)
		return
	}
	if cached.Profile == nil && cached.Role == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cacheFresh {
		return
	}
	c.state.LastKnownProfile = cached.Profile
	c.state.LastKnownRole = cached.Role
	if c.state.LastKnownRole == nil && cached.Profile != nil {
		role := cached.Profile.Role
		c.state.LastKnownRole = &role
	}
	c.publishLocked()
	c.logger.Debug("hydrated cached identity", "has_profile", cached.Profile != nil)
}

// bootstrap performs the startup session lookup and profile load.
func (c *Controller) bootstrap(ctx context.Context) {
	c.mu.Lock()
	gen := c.sessionGen
	if !c.closed {
		c.safetyTimer = time.AfterFunc(c.cfg.SafetyTimeout, c.onSafetyTimeout)
	}
	c.mu.Unlock()

	s, err := c.provider.GetCurrentSession(ctx)
	if err != nil {
		c.logger.Warn("session lookup failed", errclass.Attrs(err)...)
		c.handleFailure(err)
		c.finishInitialLoad()
		return
	}

	c.mu.Lock()
	if c.sessionGen != gen {
		// An identity event replaced the session while the lookup ran.
		c.mu.Unlock()
		c.logger.Debug("startup lookup superseded by identity event")
		c.finishInitialLoad()
		return
	}
	if s == nil {
		c.sessionGen++
		c.state.Session = nil
		c.state.Profile = nil
		c.mu.Unlock()
		c.logger.Info("no session")
		c.finishInitialLoad()
		return
	}
	c.sessionGen++
	c.state.Session = s.Clone()
	c.publishLocked()
	c.mu.Unlock()

	c.loadAndClassify(ctx, s.SubjectID)
	c.finishInitialLoad()
}

// onSafetyTimeout releases the loading state when the startup load hangs.
// The in-flight load keeps running and is applied when it completes.
func (c *Controller) onSafetyTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.state.Loading {
		return
	}
	c.logger.Warn("startup load exceeded safety timeout; continuing degraded",
		"timeout", c.cfg.SafetyTimeout)
	c.state.InitTimedOut = true
	c.leaveInitializingLocked()
}

func (c *Controller) finishInitialLoad() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopSafetyTimerLocked()
	if !c.state.Loading && c.state.Phase != PhaseInitializing {
		return
	}
	c.leaveInitializingLocked()
}

func (c *Controller) leaveInitializingLocked() {
	c.state.Loading = false
	if c.state.Phase == PhaseInitializing {
		c.state.Phase = PhaseReady
	}
	c.markLoadedLocked()
	c.publishLocked()
	c.ensurePollerLocked()
	c.logger.Info("session ready",
		"phase", c.state.Phase,
		"signed_in", c.state.Session != nil,
		"offline", c.state.OfflineReadOnly,
		"timed_out", c.state.InitTimedOut)
}

func (c *Controller) markLoadedLocked() {
	if !c.loadedDone {
		c.loadedDone = true
		close(c.loaded)
	}
}

func (c *Controller) stopSafetyTimerLocked() {
	if c.safetyTimer != nil {
		c.safetyTimer.Stop()
		c.safetyTimer = nil
	}
}

// enqueueEvent receives provider callbacks. It never blocks the provider.
func (c *Controller) enqueueEvent(event identity.AuthEvent, s *identity.Session) {
	c.eventMu.Lock()
	c.eventQueue = append(c.eventQueue, queuedEvent{event: event, session: s.Clone()})
	c.eventMu.Unlock()
	select {
	case c.eventSignal <- struct{}{}:
	default:
	}
}

// runEvents applies provider events in arrival order.
func (c *Controller) runEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.eventSignal:
		}
		for {
			c.eventMu.Lock()
			if len(c.eventQueue) == 0 {
				c.eventMu.Unlock()
				break
			}
			ev := c.eventQueue[0]
			c.eventQueue = c.eventQueue[1:]
			c.eventMu.Unlock()

			if ctx.Err() != nil {
				return
			}
			c.OnAuthEvent(ctx, ev.event, ev.session)
		}
	}
}

// OnAuthEvent applies an identity change. A non-nil session replaces the
// current one and its profile is loaded and classified. A nil session clears
// the profile and cached identity.
func (c *Controller) OnAuthEvent(ctx context.Context, event identity.AuthEvent, s *identity.Session) {
	c.logger.Info("identity event", "event", event, "has_session", s != nil)

	if s == nil {
		c.clearSignedOut(ctx)
		return
	}

	c.mu.Lock()
	c.sessionGen++
	c.state.Session = s.Clone()
	expired := c.state.SessionExpired
	c.publishLocked()
	c.mu.Unlock()

	if expired {
		// Terminal until SignOut: record the session, load nothing.
		return
	}
	c.loadAndClassify(ctx, s.SubjectID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase == PhaseInitializing && !c.state.Loading {
		c.state.Phase = PhaseReady
		c.publishLocked()
	}
}

// clearSignedOut handles a nil-session identity event.
func (c *Controller) clearSignedOut(ctx context.Context) {
	c.clearCache(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionGen++
	c.cacheFresh = true
	c.state.Session = nil
	c.state.Profile = nil
	c.state.LastKnownProfile = nil
	c.state.LastKnownRole = nil
	c.state.OfflineReadOnly = false
	c.stopPollerLocked()
	if c.state.Phase == PhaseInitializing && !c.state.Loading {
		c.state.Phase = PhaseReady
	}
	c.publishLocked()
}

// LoadProfile fetches the profile of subjectID within the fetch timeout.
//
// A found row replaces the live profile and the cached identity in one step,
// provided subjectID is still the signed-in subject; otherwise the row is
// discarded and ErrSubjectChanged is returned. A missing row means the
// account was deleted: the controller signs out and (nil, nil) is returned.
// Failures are returned untouched and leave existing data in place.
func (c *Controller) LoadProfile(ctx context.Context, subjectID string) (_ *identity.Profile, err error) {
	ctx, span := tracer.Start(ctx, "session.load_profile",
		trace.WithAttributes(attribute.String("subject.id", subjectID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	p, err := c.fetchProfile(ctx, subjectID)
	if err != nil && !errclass.IsNotFound(err) {
		c.metrics.ProfileFetches.WithLabelValues(errclass.Classify(err).String()).Inc()
		return nil, err
	}
	if p == nil {
		c.metrics.ProfileFetches.WithLabelValues(ResultNotFound).Inc()
		if c.signUpInFlight() {
			c.logger.Info("profile not provisioned yet", "subject_id", subjectID)
			return nil, nil
		}
		c.logger.Warn("profile missing for signed-in subject; signing out", "subject_id", subjectID)
		c.SignOut(context.WithoutCancel(ctx))
		return nil, nil
	}

	c.metrics.ProfileFetches.WithLabelValues(ResultFound).Inc()
	if !c.applyProfile(ctx, p) {
		return nil, ErrSubjectChanged
	}
	return p.Clone(), nil
}

// fetchProfile races the store against ProfileFetchTimeout.
func (c *Controller) fetchProfile(ctx context.Context, subjectID string) (*identity.Profile, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.ProfileFetchTimeout)
	defer cancel()

	type result struct {
		profile *identity.Profile
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := c.profiles.FetchProfileByID(fetchCtx, subjectID)
		ch <- result{p, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-fetchCtx.Done():
		r.err = fetchCtx.Err()
	}
	if r.err == nil || fetchCtx.Err() == nil {
		return r.profile, r.err
	}
	if ctx.Err() != nil {
		return nil, oops.Code("PROFILE_LOAD_CANCELLED").With("subject_id", subjectID).Wrap(ctx.Err())
	}
	return nil, oops.Code("PROFILE_FETCH_TIMEOUT").
		With("subject_id", subjectID).
		With("timeout", c.cfg.ProfileFetchTimeout.String()).
		Wrap(fetchCtx.Err())
}

// applyProfile publishes p with its last-known mirror and persists the cache.
// It reports false when p no longer belongs to the signed-in subject.
func (c *Controller) applyProfile(ctx context.Context, p *identity.Profile) bool {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	c.mu.Lock()
	if c.state.Session == nil || c.state.Session.SubjectID != p.ID {
		c.mu.Unlock()
		c.logger.Debug("discarding profile for stale subject", "subject_id", p.ID)
		return false
	}
	role := p.Role
	c.state.Profile = p.Clone()
	c.state.LastKnownProfile = p.Clone()
	c.state.LastKnownRole = &role
	c.cacheFresh = true
	gen := c.clearGen
	c.publishLocked()
	c.mu.Unlock()

	if err := c.cache.Save(ctx, p); err != nil {
		errutil.LogWarn(c.logger, "persisting cached identity", err)
	}
	c.mu.Lock()
	cleared := c.clearGen != gen
	c.mu.Unlock()
	if cleared {
		c.clearCacheStore(ctx)
	}
	return true
}

// clearCache removes the cached identity. Saves that started earlier either
// finish first or are undone.
func (c *Controller) clearCache(ctx context.Context) {
	c.mu.Lock()
	c.clearGen++
	c.mu.Unlock()

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.clearCacheStore(ctx)
}

// clearCacheStore clears the cache store. cacheMu must be held.
func (c *Controller) clearCacheStore(ctx context.Context) {
	if err := c.cache.Clear(ctx); err != nil {
		errutil.LogWarn(c.logger, "clearing cached identity", err)
	}
}

// loadAndClassify loads the profile and folds any failure into state.
func (c *Controller) loadAndClassify(ctx context.Context, subjectID string) {
	p, err := c.LoadProfile(ctx, subjectID)
	if errors.Is(err, ErrSubjectChanged) {
		c.logger.Debug("profile load superseded", "subject_id", subjectID)
		return
	}
	if err != nil {
		c.handleFailure(err)
		return
	}
	if p != nil {
		c.markOnline(false)
	}
}

// handleFailure routes a classified remote failure into state.
func (c *Controller) handleFailure(err error) {
	switch {
	case errclass.ShouldForceSignOut(err):
		c.expireSession(err)
	case errclass.ShouldTriggerOfflineMode(err):
		c.enterOffline(err)
	default:
		errutil.LogError(c.logger, "session operation failed", err, errclass.Attrs(err)...)
	}
}

func (c *Controller) expireSession(err error) {
	c.logger.Warn("credential expired", errclass.Attrs(err)...)
	c.metrics.SessionExpirations.Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.SessionExpired = true
	c.state.Phase = PhaseSessionExpired
	c.state.Loading = false
	c.stopSafetyTimerLocked()
	c.stopPollerLocked()
	c.markLoadedLocked()
	c.publishLocked()
}

func (c *Controller) enterOffline(err error) {
	c.logger.Warn("entering offline read-only mode", errclass.Attrs(err)...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.OfflineReadOnly {
		c.metrics.OfflineTransitions.Inc()
	}
	c.state.OfflineReadOnly = true
	c.publishLocked()
	if c.pollerAllowedLocked() {
		c.startPollerLocked()
	}
}

// markOnline leaves offline mode and stops the poller. reconnected also
// clears the init timeout flag.
func (c *Controller) markOnline(reconnected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := c.state.OfflineReadOnly || (reconnected && c.state.InitTimedOut)
	c.state.OfflineReadOnly = false
	if reconnected {
		c.state.InitTimedOut = false
	}
	c.stopPollerLocked()
	if changed {
		c.logger.Info("back online")
		c.publishLocked()
	}
}

// RefreshProfile reloads the current subject's profile. Failures are logged.
func (c *Controller) RefreshProfile(ctx context.Context) {
	c.mu.Lock()
	var subject string
	if c.state.Session != nil {
		subject = c.state.Session.SubjectID
	}
	c.mu.Unlock()
	if subject == "" {
		return
	}
	if _, err := c.LoadProfile(ctx, subject); err != nil && !errors.Is(err, ErrSubjectChanged) {
		errutil.LogWarn(c.logger, "profile refresh failed", err, errclass.Attrs(err)...)
	}
}

func (c *Controller) signUpInFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signUps > 0
}

func (c *Controller) publishLocked() {
	c.bc.publish(c.state)
}
