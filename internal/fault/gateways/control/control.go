// Package control exposes the policy mutation and query surface over a small
// HTTP API, for interactive tooling and scripts. It is the daemon-shaped
// rendition of the original UI menu: every endpoint maps onto one policy
// mutation or query.
package control

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/kdelane/faultgate/internal/fault/common/log"
	"github.com/kdelane/faultgate/internal/fault/domain"
	"github.com/kdelane/faultgate/internal/fault/hostset"
	"github.com/kdelane/faultgate/internal/fault/metrics"
)

// PolicyAPI is the mutation/query surface the control API drives.
type PolicyAPI interface {
	Enabled() bool
	SetEnabled(on bool)
	FailureType() domain.FailureType
	SetFailureType(t domain.FailureType)
	BlockNonXboxLive() bool
	SetBlockNonXboxLive(on bool)
	AddBlockedHost(host string)
	RemoveBlockedHost(host string)
	BlockedHosts() []string
	HostList() string
	ReplaceAll(raw string) error
}

// Persister saves the host list after successful edits. Optional.
type Persister interface {
	Save(list string) error
}

// Server serves the control API.
type Server struct {
	policy PolicyAPI
	store  Persister // nil disables persistence
	logger log.Logger
	mux    *http.ServeMux
}

// New constructs a control Server. store may be nil when the host list is not
// persisted. A nil logger falls back to the noop logger.
func New(policy PolicyAPI, store Persister, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	s := &Server{policy: policy, store: store, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /policy", s.getPolicy)
	s.mux.HandleFunc("PUT /policy/enabled", s.putEnabled)
	s.mux.HandleFunc("PUT /policy/failure-type", s.putFailureType)
	s.mux.HandleFunc("GET /policy/hosts", s.getHosts)
	s.mux.HandleFunc("PUT /policy/hosts", s.putHosts)
	s.mux.HandleFunc("POST /policy/hosts/add", s.postHostAdd)
	s.mux.HandleFunc("POST /policy/hosts/remove", s.postHostRemove)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type policyState struct {
	Enabled          bool     `json:"enabled"`
	FailureType      string   `json:"failure_type"`
	BlockNonXboxLive bool     `json:"block_non_xboxlive"`
	Hosts            []string `json:"hosts"`
	HostList         string   `json:"host_list"`
}

func (s *Server) getPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, policyState{
		Enabled:          s.policy.Enabled(),
		FailureType:      s.policy.FailureType().String(),
		BlockNonXboxLive: s.policy.BlockNonXboxLive(),
		Hosts:            s.policy.BlockedHosts(),
		HostList:         s.policy.HostList(),
	})
}

func (s *Server) putEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	s.policy.SetEnabled(body.Enabled)
	s.logger.Info(map[string]any{"enabled": body.Enabled}, "Interception toggled")
	s.getPolicy(w, r)
}

func (s *Server) putFailureType(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FailureType string `json:"failure_type"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	ft, err := domain.ParseFailureType(body.FailureType)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.policy.SetFailureType(ft)
	s.logger.Info(map[string]any{"failure_type": ft.String()}, "Failure type selected")
	s.getPolicy(w, r)
}

func (s *Server) getHosts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, s.policy.HostList()+"\n")
}

// putHosts is the "edit host list" command surface: PUT the edited delimited
// string back and the whole list is replaced atomically.
func (s *Server) putHosts(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}
	if err := s.policy.ReplaceAll(strings.TrimSpace(string(raw))); err != nil {
		metrics.HostListReloads.WithLabelValues("control", "rejected").Inc()
		if errors.Is(err, hostset.ErrInvalidHostToken) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.HostListReloads.WithLabelValues("control", "applied").Inc()
	s.logger.Info(map[string]any{"hosts": len(s.policy.BlockedHosts())}, "Host list replaced")
	s.persist()
	s.getHosts(w, r)
}

func (s *Server) postHostAdd(w http.ResponseWriter, r *http.Request) {
	host, ok := decodeHost(w, r)
	if !ok {
		return
	}
	s.policy.AddBlockedHost(host)
	s.persist()
	s.getHosts(w, r)
}

func (s *Server) postHostRemove(w http.ResponseWriter, r *http.Request) {
	host, ok := decodeHost(w, r)
	if !ok {
		return
	}
	s.policy.RemoveBlockedHost(host)
	s.persist()
	s.getHosts(w, r)
}

// persist saves the current list when a store is configured. Persistence
// failures are logged, not surfaced: the in-memory policy already changed.
func (s *Server) persist() {
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.policy.HostList()); err != nil {
		s.logger.Error(map[string]any{"error": err}, "Failed to persist host list")
	}
}

func decodeHost(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body struct {
		Host string `json:"host"`
	}
	if !decodeJSON(w, r, &body) {
		return "", false
	}
	if strings.TrimSpace(body.Host) == "" {
		writeError(w, http.StatusBadRequest, "host must not be empty")
		return "", false
	}
	return body.Host, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "decoding request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
