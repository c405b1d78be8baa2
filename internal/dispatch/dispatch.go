// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package dispatch routes request envelopes to the auth flows and
// normalizes their outcomes into uniform responses.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

var tracer = otel.Tracer("gatehouse/dispatch")

// Request is the wire envelope. The field keys predate this service and
// are preserved for protocol compatibility.
type Request struct {
	Type  string `json:"type"`
	Email string `json:"email,omitempty"`
	Pwd   string `json:"pwd,omitempty"`
	AID   string `json:"aid,omitempty"`
	SID   string `json:"sid,omitempty"`
	OID   string `json:"oid,omitempty"`
}

// Response is the wire envelope for outcomes. Error is present only on
// failures; SID carries the session id on successful login and the
// (possibly rotated) session id on authorize.
type Response struct {
	Result bool   `json:"result"`
	Error  string `json:"error,omitempty"`
	SID    string `json:"sid,omitempty"`
}

// kind is the closed enumeration of request types.
type kind int

const (
	kindUnknown kind = iota
	kindRegister
	kindActivate
	kindLogin
	kindAuthorize
	kindLogout
)

// parseKind maps a wire type tag to its kind. Anything unrecognized is
// kindUnknown.
func parseKind(s string) kind {
	switch s {
	case "register":
		return kindRegister
	case "activate":
		return kindActivate
	case "login":
		return kindLogin
	case "authorize":
		return kindAuthorize
	case "logout":
		return kindLogout
	default:
		return kindUnknown
	}
}

// Registrar registers new accounts.
type Registrar interface {
	Register(ctx context.Context, email, password string) error
}

// Activator redeems activation tokens.
type Activator interface {
	Activate(ctx context.Context, token string) error
}

// LoginService authenticates credentials. A credential mismatch is an
// ordinary ok=false outcome, not an error.
type LoginService interface {
	Login(ctx context.Context, email, password string) (sid string, ok bool, err error)
}

// Authorizer decides object access for a session, rotating the session
// id when it is close to expiry.
type Authorizer interface {
	Authorize(ctx context.Context, sid, objectID string) (ok bool, newSID string, err error)
}

// LogoutService deletes accepted sessions.
type LogoutService interface {
	Logout(ctx context.Context, sid string) error
}

// Dispatcher routes envelopes to flows.
type Dispatcher struct {
	registrar  Registrar
	activator  Activator
	login      LoginService
	authorizer Authorizer
	logout     LogoutService
	metrics    *Metrics
	logger     *slog.Logger
}

// Deps bundles the dispatcher's collaborators.
type Deps struct {
	Registrar  Registrar
	Activator  Activator
	Login      LoginService
	Authorizer Authorizer
	Logout     LogoutService

	// Metrics is optional; nil disables instrumentation.
	Metrics *Metrics

	// Logger is optional; nil discards.
	Logger *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(deps Deps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		registrar:  deps.Registrar,
		activator:  deps.Activator,
		login:      deps.Login,
		authorizer: deps.Authorizer,
		logout:     deps.Logout,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// Dispatch routes one envelope and never returns an error: every
// outcome, including infrastructure failure, is a Response.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	ctx, span := tracer.Start(ctx, "request.dispatch",
		trace.WithAttributes(attribute.String("request.type", req.Type)),
	)
	defer span.End()

	resp := d.dispatch(ctx, req)
	span.SetAttributes(attribute.Bool("request.result", resp.Result))

	if d.metrics != nil {
		outcome := "failure"
		if resp.Result {
			outcome = "success"
		}
		d.metrics.RequestsTotal.WithLabelValues(req.Type, outcome).Inc()
	}
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) Response {
	switch parseKind(req.Type) {
	case kindRegister:
		if err := d.registrar.Register(ctx, req.Email, req.Pwd); err != nil {
			return d.failure(ctx, req, err)
		}
		return Response{Result: true}

	case kindActivate:
		if err := d.activator.Activate(ctx, req.AID); err != nil {
			return d.failure(ctx, req, err)
		}
		return Response{Result: true}

	case kindLogin:
		sid, ok, err := d.login.Login(ctx, req.Email, req.Pwd)
		if err != nil {
			d.countLogin("error")
			return d.failure(ctx, req, err)
		}
		if !ok {
			// Wrong credentials are an expected outcome, not an error.
			d.countLogin("refused")
			return Response{Result: false}
		}
		d.countLogin("accepted")
		return Response{Result: true, SID: sid}

	case kindAuthorize:
		ok, newSID, err := d.authorizer.Authorize(ctx, req.SID, req.OID)
		if err != nil {
			return d.failure(ctx, req, err)
		}
		if d.metrics != nil && req.SID != "" && newSID != "" && newSID != req.SID {
			d.metrics.SessionsRefreshed.Inc()
		}
		return Response{Result: ok, SID: newSID}

	case kindLogout:
		if err := d.logout.Logout(ctx, req.SID); err != nil {
			return d.failure(ctx, req, err)
		}
		return Response{Result: true}

	default:
		return Response{Result: false, Error: messageFor(CodeUnknownType)}
	}
}

// failure converts an error into a response. Domain errors map to their
// stable messages; anything else is an infrastructure failure whose
// details stay in the log.
func (d *Dispatcher) failure(ctx context.Context, req Request, err error) Response {
	if msg, ok := domainMessage(err); ok {
		d.logger.DebugContext(ctx, "request refused",
			"type", req.Type,
			"reason", msg,
		)
		return Response{Result: false, Error: msg}
	}

	errutil.LogError(d.logger, "request failed", err)

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, "request failed")

	return Response{Result: false, Error: internalErrorMessage}
}

func (d *Dispatcher) countLogin(outcome string) {
	if d.metrics != nil {
		d.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

// CodeUnknownType marks envelopes whose type tag is not in the closed
// request enumeration.
const CodeUnknownType = "DISPATCH_UNKNOWN_TYPE"

// internalErrorMessage is returned for any non-domain failure. Raw
// store errors never reach the wire.
const internalErrorMessage = "internal error"

// messages maps domain error codes to their stable, user-safe wire
// messages.
var messages = map[string]string{
	auth.CodeDuplicateRegistration: "already registered",
	auth.CodePendingActivation:     "already registered but not activated",
	auth.CodeActivationInvalid:     "activation link not valid",
	auth.CodeActivationExpired:     "activation link expired",
	auth.CodeNotRegistered:         "not registered",
	auth.CodeNotActivated:          "registered but not activated",
	auth.CodeTemporarilyBlocked:    "temporarily blocked, try later",
	auth.CodeSessionExpired:        "authentication expired",
	auth.CodeSessionInvalid:        "not a valid session",
	auth.CodeNotAuthenticated:      "not authenticated",
	CodeUnknownType:                "unrecognized request type",
}

// messageFor returns the stable message for a domain code, or the
// generic internal error message.
func messageFor(code string) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return internalErrorMessage
}

// domainMessage extracts a domain error's wire message, reporting
// whether the error carried a known domain code.
func domainMessage(err error) (string, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return "", false
	}
	code, ok := oopsErr.Code().(string)
	if !ok {
		return "", false
	}
	msg, ok := messages[code]
	return msg, ok
}
