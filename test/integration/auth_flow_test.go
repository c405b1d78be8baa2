// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatehouse/gatehouse/internal/auth"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/dispatch"
	"github.com/gatehouse/gatehouse/internal/httpapi"
	"github.com/gatehouse/gatehouse/internal/seed"
	"github.com/gatehouse/gatehouse/internal/store"
)

// capturingNotifier records activation tokens instead of delivering
// them.
type capturingNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newCapturingNotifier() *capturingNotifier {
	return &capturingNotifier{tokens: make(map[string]string)}
}

func (n *capturingNotifier) Send(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens[email] = token
	return nil
}

func (n *capturingNotifier) tokenFor(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[email]
}

// stack is one fully wired gatehouse instance over a disposable
// database.
type stack struct {
	pool     *pgxpool.Pool
	api      *httpapi.Server
	notifier *capturingNotifier
	cleanup  func()
}

// startStack boots a PostgreSQL container, migrates, seeds roles and
// grants, and serves the JSON API on a loopback port.
func startStack(authCfg auth.Config, seedData []byte) (*stack, error) {
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
		return nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		return nil, err
	}
	if err := migrator.Close(); err != nil {
		return nil, err
	}

	pool, err := store.Connect(ctx, store.ConnectOptions{
		URL:              connStr,
		MinServerVersion: "14.0",
	})
	if err != nil {
		return nil, err
	}

	authStore := authpg.NewStore(pool)

	seedFile, err := seed.Parse(seedData)
	if err != nil {
		return nil, err
	}
	if err := seed.Apply(ctx, authStore, seedFile); err != nil {
		return nil, err
	}

	notifier := newCapturingNotifier()
	tokens := auth.NewRandomTokenGenerator()
	hasher := auth.NewArgon2idHasher()
	guard := auth.NewSessionGuard(tokens, authCfg)

	dispatcher := dispatch.NewDispatcher(dispatch.Deps{
		Registrar:  auth.NewRegistrationFlow(authStore, tokens, hasher, notifier, authCfg),
		Activator:  auth.NewActivationFlow(authStore, authCfg),
		Login:      auth.NewLoginFlow(authStore, tokens, hasher, authCfg),
		Authorizer: auth.NewPermissionResolver(authStore, guard),
		Logout:     auth.NewLogoutFlow(authStore),
		Logger:     slog.New(slog.DiscardHandler),
	})

	api := httpapi.NewServer("127.0.0.1:0", dispatcher, httpapi.Options{})
	if _, err := api.Start(); err != nil {
		return nil, err
	}

	cleanup := func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = api.Stop(stopCtx)
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return &stack{pool: pool, api: api, notifier: notifier, cleanup: cleanup}, nil
}

// post sends one envelope and decodes the response.
func (s *stack) post(req dispatch.Request) dispatch.Response {
	GinkgoHelper()

	body, err := json.Marshal(req)
	Expect(err).NotTo(HaveOccurred())

	httpResp, err := http.Post("http://"+s.api.Addr()+"/api/auth", "application/json", bytes.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	defer httpResp.Body.Close()
	Expect(httpResp.StatusCode).To(Equal(http.StatusOK))

	var resp dispatch.Response
	Expect(json.NewDecoder(httpResp.Body).Decode(&resp)).To(Succeed())
	return resp
}

const seedWithGrants = `
roles:
  - slug: anonymous
  - slug: standard
    parent: anonymous
grants:
  - role: anonymous
    objects: ["obj:lobby"]
  - role: standard
    objects: ["obj:door"]
`

var _ = Describe("Auth flows over the JSON API", func() {
	var s *stack

	authCfg := auth.Config{
		ActivationTTL:    time.Hour,
		RetryWindow:      10 * time.Second,
		MaxAttempts:      3,
		BlockDuration:    time.Hour,
		SessionTTL:       time.Hour,
		RefreshThreshold: time.Minute,
	}

	BeforeEach(func() {
		var err error
		s, err = startStack(authCfg, []byte(seedWithGrants))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		s.cleanup()
	})

	registerAndActivate := func(email, pwd string) {
		GinkgoHelper()

		Expect(s.post(dispatch.Request{Type: "register", Email: email, Pwd: pwd}).Result).To(BeTrue())

		token := s.notifier.tokenFor(email)
		Expect(token).NotTo(BeEmpty())
		Expect(s.post(dispatch.Request{Type: "activate", AID: token}).Result).To(BeTrue())
	}

	It("walks the full lifecycle: register, activate, login, authorize, logout", func() {
		registerAndActivate("user@example.com", "hunter2")

		login := s.post(dispatch.Request{Type: "login", Email: "user@example.com", Pwd: "hunter2"})
		Expect(login.Result).To(BeTrue())
		Expect(login.SID).To(HaveLen(64))

		granted := s.post(dispatch.Request{Type: "authorize", SID: login.SID, OID: "obj:door"})
		Expect(granted.Result).To(BeTrue())
		Expect(granted.SID).To(Equal(login.SID))

		denied := s.post(dispatch.Request{Type: "authorize", SID: login.SID, OID: "obj:vault"})
		Expect(denied.Result).To(BeFalse())
		Expect(denied.Error).To(BeEmpty())

		Expect(s.post(dispatch.Request{Type: "logout", SID: login.SID}).Result).To(BeTrue())

		stale := s.post(dispatch.Request{Type: "authorize", SID: login.SID, OID: "obj:door"})
		Expect(stale.Result).To(BeFalse())
		Expect(stale.Error).To(Equal("authentication expired"))
	})

	It("inherits grants from ancestor roles", func() {
		registerAndActivate("heir@example.com", "hunter2")

		login := s.post(dispatch.Request{Type: "login", Email: "heir@example.com", Pwd: "hunter2"})
		Expect(login.Result).To(BeTrue())

		// obj:lobby is granted to anonymous, the parent of standard
		inherited := s.post(dispatch.Request{Type: "authorize", SID: login.SID, OID: "obj:lobby"})
		Expect(inherited.Result).To(BeTrue())
	})

	It("authorizes anonymous requests against the root role only", func() {
		lobby := s.post(dispatch.Request{Type: "authorize", OID: "obj:lobby"})
		Expect(lobby.Result).To(BeTrue())
		Expect(lobby.SID).To(BeEmpty())

		door := s.post(dispatch.Request{Type: "authorize", OID: "obj:door"})
		Expect(door.Result).To(BeFalse())
	})

	It("reports registration state on duplicate attempts", func() {
		Expect(s.post(dispatch.Request{Type: "register", Email: "dup@example.com", Pwd: "pw"}).Result).To(BeTrue())

		pending := s.post(dispatch.Request{Type: "register", Email: "dup@example.com", Pwd: "pw"})
		Expect(pending.Result).To(BeFalse())
		Expect(pending.Error).To(Equal("already registered but not activated"))

		token := s.notifier.tokenFor("dup@example.com")
		Expect(s.post(dispatch.Request{Type: "activate", AID: token}).Result).To(BeTrue())

		dup := s.post(dispatch.Request{Type: "register", Email: "dup@example.com", Pwd: "pw"})
		Expect(dup.Result).To(BeFalse())
		Expect(dup.Error).To(Equal("already registered"))
	})

	It("refuses logins for unknown or inactive accounts", func() {
		unknown := s.post(dispatch.Request{Type: "login", Email: "nobody@example.com", Pwd: "pw"})
		Expect(unknown.Result).To(BeFalse())
		Expect(unknown.Error).To(Equal("not registered"))

		Expect(s.post(dispatch.Request{Type: "register", Email: "new@example.com", Pwd: "pw"}).Result).To(BeTrue())

		inactive := s.post(dispatch.Request{Type: "login", Email: "new@example.com", Pwd: "pw"})
		Expect(inactive.Result).To(BeFalse())
		Expect(inactive.Error).To(Equal("registered but not activated"))
	})

	It("blocks an account after repeated wrong passwords", func() {
		registerAndActivate("victim@example.com", "correct-horse")

		// Wrong credentials are plain refusals until the attempt limit
		for i := 0; i < authCfg.MaxAttempts-1; i++ {
			wrong := s.post(dispatch.Request{Type: "login", Email: "victim@example.com", Pwd: "nope"})
			Expect(wrong.Result).To(BeFalse())
			Expect(wrong.Error).To(BeEmpty())
		}

		// The attempt that reaches the limit blocks the account
		s.post(dispatch.Request{Type: "login", Email: "victim@example.com", Pwd: "nope"})

		blocked := s.post(dispatch.Request{Type: "login", Email: "victim@example.com", Pwd: "correct-horse"})
		Expect(blocked.Result).To(BeFalse())
		Expect(blocked.Error).To(Equal("temporarily blocked, try later"))
	})

	It("rejects invalid and reused activation tokens", func() {
		bogus := s.post(dispatch.Request{Type: "activate", AID: "not-a-real-token"})
		Expect(bogus.Result).To(BeFalse())
		Expect(bogus.Error).To(Equal("activation link not valid"))

		registerAndActivate("once@example.com", "pw")

		reused := s.post(dispatch.Request{Type: "activate", AID: s.notifier.tokenFor("once@example.com")})
		Expect(reused.Result).To(BeFalse())
		Expect(reused.Error).To(Equal("activation link not valid"))
	})

	It("rejects unknown request types", func() {
		resp := s.post(dispatch.Request{Type: "teleport"})
		Expect(resp.Result).To(BeFalse())
		Expect(resp.Error).To(Equal("unrecognized request type"))
	})

	It("refuses logout without an accepted session", func() {
		resp := s.post(dispatch.Request{Type: "logout", SID: "never-issued"})
		Expect(resp.Result).To(BeFalse())
		Expect(resp.Error).To(Equal("not authenticated"))
	})
})
