// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package main

import (
	"context"
	"io"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fieldguard/fieldguard/internal/errclass"
	"github.com/fieldguard/fieldguard/internal/identity"
	"github.com/fieldguard/fieldguard/internal/session"
)

// stateView is the YAML document printed by account commands.
type stateView struct {
	Screen  session.Screen `yaml:"screen"`
	Subject string         `yaml:"subject,omitempty"`
	Email   string         `yaml:"email,omitempty"`
	State   session.State  `yaml:"state"`
}

func newStateView(s session.State) stateView {
	v := stateView{Screen: s.Screen(), State: s}
	if s.Session != nil {
		v.Subject = s.Session.SubjectID
		v.Email = s.Session.Email
	}
	return v
}

func printState(w io.Writer, s session.State) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newStateView(s)); err != nil {
		return oops.Code("OUTPUT_FAILED").Wrap(err)
	}
	return oops.Code("OUTPUT_FAILED").Wrap(enc.Close())
}

// userError decorates err with the user-facing message for its kind.
func userError(op string, err error) error {
	return oops.Code("COMMAND_FAILED").
		With("operation", op).
		With("kind", errclass.Classify(err).String()).
		Hint(errclass.Message(err)).
		Wrap(err)
}

type signUpOptions struct {
	email       string
	password    string
	displayName string
	phone       string
	role        string
}

// NewSignUpCmd creates the signup subcommand.
func NewSignUpCmd(deps *Deps) *cobra.Command {
	opts := &signUpOptions{}
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register an agent or client account on this device",
		Long: `Register a new account, provision its pending profile and role record,
and sign this device in. Admin accounts cannot self-register.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSignUpWithDeps(cmd.Context(), cmd, opts, deps.withDefaults())
		},
	}
	cmd.Flags().StringVar(&opts.email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.password, "password", "", "account password")
	cmd.Flags().StringVar(&opts.displayName, "name", "", "display name")
	cmd.Flags().StringVar(&opts.phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&opts.role, "role", string(identity.RoleAgent), "role (agent or client)")
	_ = cmd.MarkFlagRequired("email")    //nolint:errcheck // flag exists
	_ = cmd.MarkFlagRequired("password") //nolint:errcheck // flag exists
	return cmd
}

func runSignUpWithDeps(ctx context.Context, cmd *cobra.Command, opts *signUpOptions, deps *Deps) error {
	a, err := startApp(ctx, cmd, deps)
	if err != nil {
		return err
	}
	defer a.Close()

	err = a.ctrl.SignUp(ctx, session.SignUpRequest{
		Email:       opts.email,
		Password:    opts.password,
		DisplayName: opts.displayName,
		PhoneNumber: opts.phone,
		Role:        identity.Role(opts.role),
	})
	if err != nil {
		return userError("sign up", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.settleWait())
	defer cancel()
	st, _ := awaitState(waitCtx, a.ctrl, signedInSettled)
	return printState(cmd.OutOrStdout(), st)
}

// NewSignInCmd creates the signin subcommand.
func NewSignInCmd(deps *Deps) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign this device in with email and password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSignInWithDeps(cmd.Context(), cmd, email, password, deps.withDefaults())
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")    //nolint:errcheck // flag exists
	_ = cmd.MarkFlagRequired("password") //nolint:errcheck // flag exists
	return cmd
}

func runSignInWithDeps(ctx context.Context, cmd *cobra.Command, email, password string, deps *Deps) error {
	a, err := startApp(ctx, cmd, deps)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ctrl.SignIn(ctx, email, password); err != nil {
		return userError("sign in", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.settleWait())
	defer cancel()
	st, _ := awaitState(waitCtx, a.ctrl, signedInSettled)
	return printState(cmd.OutOrStdout(), st)
}

// NewSignOutCmd creates the signout subcommand.
func NewSignOutCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign this device out and clear its cached identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSignOutWithDeps(cmd.Context(), cmd, deps.withDefaults())
		},
	}
}

func runSignOutWithDeps(ctx context.Context, cmd *cobra.Command, deps *Deps) error {
	a, err := startApp(ctx, cmd, deps)
	if err != nil {
		return err
	}
	defer a.Close()

	a.ctrl.SignOut(ctx)
	cmd.Println("Signed out")
	return nil
}

// NewWhoAmICmd creates the whoami subcommand.
func NewWhoAmICmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the device session, profile and connectivity state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWhoAmIWithDeps(cmd.Context(), cmd, deps.withDefaults())
		},
	}
}

func runWhoAmIWithDeps(ctx context.Context, cmd *cobra.Command, deps *Deps) error {
	a, err := startApp(ctx, cmd, deps)
	if err != nil {
		return err
	}
	defer a.Close()

	return printState(cmd.OutOrStdout(), a.ctrl.State())
}
