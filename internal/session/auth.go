// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package session

import (
	"context"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fieldguard/fieldguard/internal/identity"
	"github.com/fieldguard/fieldguard/pkg/errutil"
)

// SignUpRequest carries the fields of a self-service registration.
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
	PhoneNumber string
	Role        identity.Role
}

// SignIn authenticates with email and password. The resulting session reaches
// the controller through the provider's change stream. Provider errors are
// returned untouched.
func (c *Controller) SignIn(ctx context.Context, email, password string) (err error) {
	ctx, span := tracer.Start(ctx, "session.sign_in")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if _, err := c.provider.SignInWithPassword(ctx, email, password); err != nil {
		return err //nolint:wrapcheck // callers classify provider errors
	}
	c.logger.Info("signed in")
	return nil
}

// SignUp registers an account and provisions its profile and role row.
//
// The profile row is inserted as pending. A failed role row insert is logged
// and does not fail the sign-up. Once provisioning ends the profile is
// reloaded so the new pending profile becomes visible.
func (c *Controller) SignUp(ctx context.Context, req SignUpRequest) (err error) {
	ctx, span := tracer.Start(ctx, "session.sign_up",
		trace.WithAttributes(attribute.String("role", string(req.Role))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !req.Role.SelfRegistrable() {
		return oops.Code("SIGN_UP_INVALID_ROLE").With("role", string(req.Role)).
			Errorf("role %q cannot self-register", req.Role)
	}

	c.mu.Lock()
	c.signUps++
	c.mu.Unlock()

	var user *identity.User
	defer func() {
		c.mu.Lock()
		c.signUps--
		c.mu.Unlock()
		if user != nil {
			c.RefreshProfile(ctx)
		}
	}()

	user, err = c.provider.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		return err //nolint:wrapcheck // callers classify provider errors
	}
	if user == nil {
		c.logger.Info("sign-up deferred by identity service")
		return nil
	}

	profile, err := identity.NewProfile(user.ID, req.Email, req.DisplayName, req.PhoneNumber, req.Role)
	if err != nil {
		return oops.Code("SIGN_UP_PROFILE_FAILED").With("user_id", user.ID).Wrap(err)
	}
	if err := c.profiles.InsertProfile(ctx, profile); err != nil {
		return oops.Code("SIGN_UP_PROFILE_FAILED").With("user_id", user.ID).Wrap(err)
	}

	switch req.Role {
	case identity.RoleAgent:
		c.provisionAgent(ctx, user.ID)
	case identity.RoleClient:
		c.provisionClient(ctx, user.ID)
	}
	c.logger.Info("signed up", "user_id", user.ID, "role", req.Role)
	return nil
}

func (c *Controller) provisionAgent(ctx context.Context, userID string) {
	rec, err := identity.NewAgentRecord(userID)
	if err == nil {
		err = c.profiles.InsertAgent(ctx, rec)
	}
	if err != nil {
		errutil.LogError(c.logger, "creating agent record", err, "user_id", userID)
	}
}

func (c *Controller) provisionClient(ctx context.Context, userID string) {
	rec, err := identity.NewClientRecord(userID)
	if err == nil {
		err = c.profiles.InsertClient(ctx, rec)
	}
	if err != nil {
		errutil.LogError(c.logger, "creating client record", err, "user_id", userID)
	}
}

// SignOut ends the session and resets the controller to a signed-out ready
// state. It always succeeds locally; provider failures are logged.
func (c *Controller) SignOut(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "session.sign_out")
	defer span.End()

	c.mu.Lock()
	c.stopPollerLocked()
	c.mu.Unlock()

	if err := c.provider.SignOut(ctx); err != nil {
		span.RecordError(err)
		errutil.LogWarn(c.logger, "identity service sign-out failed", err)
	}
	c.clearCache(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionGen++
	c.cacheFresh = true
	c.stopSafetyTimerLocked()
	c.stopPollerLocked()
	c.state = State{Phase: PhaseReady}
	c.markLoadedLocked()
	c.publishLocked()
	c.logger.Info("signed out")
}
