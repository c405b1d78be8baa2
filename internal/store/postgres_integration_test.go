// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatehouse/gatehouse/internal/auth"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/store"
)

// setupPostgresPool starts a PostgreSQL container, connects a pool, and
// applies the embedded migrations.
func setupPostgresPool() (*pgxpool.Pool, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gatehouse_test"),
		postgres.WithUsername("gatehouse"),
		postgres.WithPassword("gatehouse"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		return nil, nil, err
	}
	if err := migrator.Close(); err != nil {
		return nil, nil, err
	}

	pool, err := store.Connect(ctx, store.ConnectOptions{
		URL:              connStr,
		MinServerVersion: "14.0",
	})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup, nil
}

var _ = Describe("Postgres store", func() {
	var pool *pgxpool.Pool
	var cleanup func()
	var authStore *authpg.Store

	BeforeEach(func() {
		var err error
		pool, cleanup, err = setupPostgresPool()
		Expect(err).NotTo(HaveOccurred())
		authStore = authpg.NewStore(pool)

		ctx := context.Background()
		Expect(authStore.Roles().Upsert(ctx, &auth.Role{Slug: "anonymous"})).To(Succeed())
		parent := "anonymous"
		Expect(authStore.Roles().Upsert(ctx, &auth.Role{Slug: "standard", ParentSlug: &parent})).To(Succeed())
	})

	AfterEach(func() {
		cleanup()
	})

	newAccount := func(email string) *auth.Account {
		now := time.Now().UTC().Truncate(time.Microsecond)
		return &auth.Account{
			ID:           auth.NewULID(),
			Email:        email,
			PasswordHash: "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
			Status:       auth.StatusInactive,
			RoleSlug:     "standard",
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	Describe("accounts", func() {
		It("round-trips an account by id and email", func() {
			ctx := context.Background()
			account := newAccount("user@example.com")

			Expect(authStore.Accounts().Create(ctx, account)).To(Succeed())

			byID, err := authStore.Accounts().GetByID(ctx, account.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(byID.Email).To(Equal(account.Email))

			byEmail, err := authStore.Accounts().GetByEmail(ctx, account.Email)
			Expect(err).NotTo(HaveOccurred())
			Expect(byEmail.ID).To(Equal(account.ID))
		})

		It("maps a duplicate email to ErrConflict", func() {
			ctx := context.Background()
			Expect(authStore.Accounts().Create(ctx, newAccount("dup@example.com"))).To(Succeed())

			err := authStore.Accounts().Create(ctx, newAccount("dup@example.com"))
			Expect(err).To(MatchError(auth.ErrConflict))
		})

		It("cascades activation and session rows on delete", func() {
			ctx := context.Background()
			account := newAccount("cascade@example.com")
			Expect(authStore.Accounts().Create(ctx, account)).To(Succeed())
			Expect(authStore.Activations().Upsert(ctx, &auth.Activation{
				AccountID: account.ID,
				TokenHash: "aaaa",
				CreatedAt: time.Now().UTC(),
			})).To(Succeed())
			Expect(authStore.Sessions().Upsert(ctx, &auth.Session{
				AccountID:     account.ID,
				TokenHash:     "bbbb",
				Status:        auth.SessionAccepted,
				LastAttemptAt: time.Now().UTC(),
			})).To(Succeed())

			Expect(authStore.Accounts().Delete(ctx, account.ID)).To(Succeed())

			_, err := authStore.Activations().GetByTokenHash(ctx, "aaaa")
			Expect(err).To(MatchError(auth.ErrNotFound))
			_, err = authStore.Sessions().GetByAccount(ctx, account.ID)
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("activations", func() {
		It("overwrites the row on re-registration", func() {
			ctx := context.Background()
			account := newAccount("activate@example.com")
			Expect(authStore.Accounts().Create(ctx, account)).To(Succeed())

			Expect(authStore.Activations().Upsert(ctx, &auth.Activation{
				AccountID: account.ID,
				TokenHash: "first",
				CreatedAt: time.Now().UTC(),
			})).To(Succeed())
			Expect(authStore.Activations().Upsert(ctx, &auth.Activation{
				AccountID: account.ID,
				TokenHash: "second",
				CreatedAt: time.Now().UTC(),
			})).To(Succeed())

			_, err := authStore.Activations().GetByTokenHash(ctx, "first")
			Expect(err).To(MatchError(auth.ErrNotFound))

			activation, err := authStore.Activations().GetByTokenHash(ctx, "second")
			Expect(err).NotTo(HaveOccurred())
			Expect(activation.AccountID).To(Equal(account.ID))
		})
	})

	Describe("sessions", func() {
		It("allows many refused rows despite the unique token index", func() {
			ctx := context.Background()
			first := newAccount("refused1@example.com")
			second := newAccount("refused2@example.com")
			Expect(authStore.Accounts().Create(ctx, first)).To(Succeed())
			Expect(authStore.Accounts().Create(ctx, second)).To(Succeed())

			// Refused rows store NULL token hashes; the partial unique
			// index must not collide on them.
			for _, id := range []auth.Account{*first, *second} {
				Expect(authStore.Sessions().Upsert(ctx, &auth.Session{
					AccountID:     id.ID,
					Status:        auth.SessionRefused,
					Attempts:      1,
					LastAttemptAt: time.Now().UTC(),
				})).To(Succeed())
			}
		})

		It("finds an accepted session by token hash", func() {
			ctx := context.Background()
			account := newAccount("session@example.com")
			Expect(authStore.Accounts().Create(ctx, account)).To(Succeed())

			Expect(authStore.Sessions().Upsert(ctx, &auth.Session{
				AccountID:     account.ID,
				TokenHash:     "cafe",
				Status:        auth.SessionAccepted,
				LastAttemptAt: time.Now().UTC(),
			})).To(Succeed())

			session, err := authStore.Sessions().GetByTokenHash(ctx, "cafe")
			Expect(err).NotTo(HaveOccurred())
			Expect(session.AccountID).To(Equal(account.ID))
		})
	})

	Describe("permissions", func() {
		It("grants idempotently and lists direct grants only", func() {
			ctx := context.Background()
			perm := &auth.Permission{RoleSlug: "standard", ObjectID: "obj:door"}
			Expect(authStore.Permissions().Grant(ctx, perm)).To(Succeed())
			Expect(authStore.Permissions().Grant(ctx, perm)).To(Succeed())
			Expect(authStore.Permissions().Grant(ctx, &auth.Permission{
				RoleSlug: "anonymous", ObjectID: "obj:lobby",
			})).To(Succeed())

			objectIDs, err := authStore.Permissions().ListObjectIDs(ctx, "standard")
			Expect(err).NotTo(HaveOccurred())
			Expect(objectIDs).To(Equal([]string{"obj:door"}))
		})
	})

	Describe("transactions", func() {
		It("rolls back all writes when the callback errors", func() {
			ctx := context.Background()
			account := newAccount("rollback@example.com")

			err := authStore.InTx(ctx, func(s auth.Store) error {
				if err := s.Accounts().Create(ctx, account); err != nil {
					return err
				}
				return context.Canceled
			})
			Expect(err).To(HaveOccurred())

			_, err = authStore.Accounts().GetByEmail(ctx, account.Email)
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})
})
