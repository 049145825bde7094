// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

//go:build integration

package store_test

import (
	"context"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/fieldguard/fieldguard/internal/store"
)

var _ = Describe("Migrator", func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("fieldguard_test"),
			postgres.WithUsername("fieldguard"),
			postgres.WithPassword("fieldguard"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
		)
		Expect(err).NotTo(HaveOccurred())
		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(testcontainers.TerminateContainer(container)).To(Succeed())
	})

	It("applies and rolls back every migration", func() {
		m, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = m.Close() }()

		st, err := m.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Version).To(BeZero())
		Expect(st.Pending).To(Equal([]uint{1, 2}))

		Expect(m.Up()).To(Succeed())
		Expect(m.Up()).To(Succeed(), "second Up is a no-op")

		st, err = m.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Version).To(Equal(uint(2)))
		Expect(st.Dirty).To(BeFalse())
		Expect(st.Pending).To(BeEmpty())

		pool, err := store.OpenPool(ctx, connStr)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()
		var tables int
		Expect(pool.QueryRow(ctx, `SELECT count(*) FROM information_schema.tables
			WHERE table_name IN ('users','agents','clients','credentials','refresh_tokens')`).Scan(&tables)).To(Succeed())
		Expect(tables).To(Equal(5))

		Expect(m.Down()).To(Succeed())
		version, _, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
	})
})
