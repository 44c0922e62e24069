// Package proxyhost integrates the interception policy with the goproxy HTTP
// proxy. The proxy owns the network stack and session lifecycle; this package
// only consults the policy per request and substitutes canned responses.
package proxyhost

import (
	"net/http"
	"strconv"

	"github.com/elazarl/goproxy"

	"github.com/kdelane/faultgate/internal/fault/common/log"
	"github.com/kdelane/faultgate/internal/fault/domain"
	"github.com/kdelane/faultgate/internal/fault/metrics"
)

// SessionMark is the opaque tag attached to blocked sessions via
// ProxyCtx.UserData so inspection tooling can surface them. It carries no
// further meaning inside the core.
const SessionMark = "faultgate/blocked"

// markerHeader identifies substituted responses to clients under test.
const markerHeader = "X-Faultgate-Template"

// Decider is the single decision entry point the proxy consumes per request.
type Decider interface {
	Decide(host string) domain.Decision
}

// Handler installs the interception hook on a goproxy server.
type Handler struct {
	decider Decider
	logger  log.Logger
}

// New constructs a Handler. A nil logger falls back to the noop logger.
func New(decider Decider, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Handler{decider: decider, logger: logger}
}

// Attach registers the per-request hook on proxy. MITM for CONNECT tunnels is
// left to the caller so plain-HTTP deployments do not pay for TLS handling.
func (h *Handler) Attach(proxy *goproxy.ProxyHttpServer) {
	proxy.OnRequest().DoFunc(h.intercept)
}

func (h *Handler) intercept(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	host := req.URL.Hostname()
	if host == "" {
		host = req.Host
	}

	d := h.decider.Decide(host)
	metrics.ObserveDecision(d)
	if !d.Blocked {
		return req, nil
	}

	ctx.UserData = SessionMark
	h.logger.Info(map[string]any{
		"host":     host,
		"failure":  d.Failure.String(),
		"template": d.Template.ID,
	}, "Substituted synthetic failure response")

	return req, Synthesize(req, d.Template)
}

// Synthesize builds the substitute response for a canned template.
func Synthesize(req *http.Request, tmpl domain.ResponseTemplate) *http.Response {
	resp := goproxy.NewResponse(req, tmpl.ContentType, tmpl.Status, tmpl.Body)
	if tmpl.RetryAfter > 0 {
		resp.Header.Set("Retry-After", strconv.Itoa(tmpl.RetryAfter))
	}
	resp.Header.Set(markerHeader, tmpl.ID)
	return resp
}
