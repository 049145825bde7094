// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

//go:build integration

package postgres_test

import (
	"context"
	"time"

	"github.com/google/uuid"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/fieldguard/fieldguard/internal/cache"
	"github.com/fieldguard/fieldguard/internal/errclass"
	"github.com/fieldguard/fieldguard/internal/identity"
	"github.com/fieldguard/fieldguard/internal/identity/local"
	idpg "github.com/fieldguard/fieldguard/internal/identity/postgres"
)

var _ = Describe("ProfileRepository", func() {
	var (
		ctx  context.Context
		repo *idpg.ProfileRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = idpg.NewProfileRepository(testPool)
	})

	It("round-trips a profile with its agent row", func() {
		id := uuid.NewString()
		p, err := identity.NewProfile(id, id+"@example.com", "Ana", "+33", identity.RoleAgent)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.InsertProfile(ctx, p)).To(Succeed())

		agent, err := identity.NewAgentRecord(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.InsertAgent(ctx, agent)).To(Succeed())

		got, err := repo.FetchProfileByID(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).NotTo(BeNil())
		Expect(got.Role).To(Equal(identity.RoleAgent))
		Expect(got.Status).To(Equal(identity.StatusPending))

		var qr, availability string
		Expect(testPool.QueryRow(ctx, `SELECT qr_code, availability FROM agents WHERE user_id = $1`, id).
			Scan(&qr, &availability)).To(Succeed())
		Expect(qr).To(HavePrefix("agent_" + id + "_"))
		Expect(availability).To(Equal("available"))
	})

	It("returns nil for a missing profile", func() {
		got, err := repo.FetchProfileByID(ctx, uuid.NewString())
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeNil())
	})

	It("rejects duplicates and updates partially", func() {
		id := uuid.NewString()
		p, err := identity.NewProfile(id, id+"@example.com", "Bo", "", identity.RoleClient)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.InsertProfile(ctx, p)).To(Succeed())
		Expect(repo.InsertProfile(ctx, p)).To(MatchError(identity.ErrAlreadyExists))

		client, err := identity.NewClientRecord(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.InsertClient(ctx, client)).To(Succeed())

		active := identity.StatusActive
		Expect(repo.UpdateProfile(ctx, id, identity.ProfileUpdate{Status: &active})).To(Succeed())
		got, err := repo.FetchProfileByID(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal(identity.StatusActive))
		Expect(got.DisplayName).To(Equal("Bo"))

		Expect(repo.UpdateProfile(ctx, uuid.NewString(), identity.ProfileUpdate{Status: &active})).
			To(MatchError(identity.ErrNotFound))
	})
})

var _ = Describe("local provider over PostgreSQL", func() {
	It("signs up, refreshes and expires sessions", func() {
		ctx := context.Background()
		now := time.Now()

		provider, err := local.New(
			idpg.NewCredentialRepository(testPool),
			idpg.NewRefreshTokenRepository(testPool),
			cache.Prefixed(cache.NewMemoryStore(), "identity/"),
			local.Config{Secret: []byte("0123456789abcdef0123456789abcdef"), AccessTTL: time.Minute, RefreshTTL: time.Hour},
			local.WithClock(func() time.Time { return now }),
		)
		Expect(err).NotTo(HaveOccurred())

		email := uuid.NewString() + "@example.com"
		user, err := provider.SignUp(ctx, email, "secret-pw")
		Expect(err).NotTo(HaveOccurred())

		now = now.Add(2 * time.Minute)
		s, err := provider.GetCurrentSession(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.SubjectID).To(Equal(user.ID))

		now = now.Add(2 * time.Hour)
		_, err = provider.GetCurrentSession(ctx)
		Expect(errclass.ShouldForceSignOut(err)).To(BeTrue())

		_, err = provider.SignInWithPassword(ctx, email, "secret-pw")
		Expect(err).NotTo(HaveOccurred())
		Expect(provider.SignOut(ctx)).To(Succeed())
	})
})
