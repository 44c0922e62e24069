package control

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdelane/faultgate/internal/fault/common/log"
	"github.com/kdelane/faultgate/internal/fault/domain"
	"github.com/kdelane/faultgate/internal/fault/policy"
)

func newTestServer(t *testing.T) (*Server, *policy.Policy) {
	t.Helper()
	pol, err := policy.New(policy.Options{})
	require.NoError(t, err)
	return New(pol, nil, log.NewNoopLogger()), pol
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestGetPolicy_DefaultState(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/policy", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var state struct {
		Enabled          bool     `json:"enabled"`
		FailureType      string   `json:"failure_type"`
		BlockNonXboxLive bool     `json:"block_non_xboxlive"`
		Hosts            []string `json:"hosts"`
		HostList         string   `json:"host_list"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.False(t, state.Enabled)
	assert.Equal(t, "notfound", state.FailureType)
	assert.False(t, state.BlockNonXboxLive)
	assert.Empty(t, state.Hosts)
	assert.Equal(t, "", state.HostList)
}

func TestPutEnabled(t *testing.T) {
	srv, pol := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPut, "/policy/enabled", `{"enabled": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, pol.Enabled())

	rec = doJSON(t, srv, http.MethodPut, "/policy/enabled", `{"enabled": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, pol.Enabled())
}

func TestPutFailureType(t *testing.T) {
	srv, pol := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPut, "/policy/failure-type", `{"failure_type": "ratelimitburst"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.RateLimitBurst, pol.FailureType())

	rec = doJSON(t, srv, http.MethodPut, "/policy/failure-type", `{"failure_type": "teapot"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, domain.RateLimitBurst, pol.FailureType(), "invalid name must not change the selection")
}

func TestHostListEditRoundTrip(t *testing.T) {
	srv, pol := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPut, "/policy/hosts", "a.com; b.com; "+domain.SentinelExternalServices)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a.com", "b.com"}, pol.BlockedHosts())
	assert.True(t, pol.BlockNonXboxLive())

	rec = doJSON(t, srv, http.MethodGet, "/policy/hosts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a.com; b.com; "+domain.SentinelExternalServices+"\n", rec.Body.String())
}

func TestPutHosts_InvalidTokenRejected(t *testing.T) {
	srv, pol := newTestServer(t)
	require.NoError(t, pol.ReplaceAll("keep.com"))

	rec := doJSON(t, srv, http.MethodPut, "/policy/hosts", "a.com; broken entry")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "broken entry")

	// prior list untouched
	rec = doJSON(t, srv, http.MethodGet, "/policy/hosts", "")
	assert.Equal(t, "keep.com\n", rec.Body.String())
}

func TestHostAddRemove(t *testing.T) {
	srv, pol := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/policy/hosts/add", `{"host": "Example.COM"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, pol.Contains("example.com"))

	rec = doJSON(t, srv, http.MethodPost, "/policy/hosts/remove", `{"host": "example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, pol.Contains("example.com"))

	rec = doJSON(t, srv, http.MethodPost, "/policy/hosts/add", `{"host": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHostAdd_SentinelTogglesAllowListMode(t *testing.T) {
	srv, pol := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/policy/hosts/add", `{"host": "`+domain.SentinelExternalServices+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, pol.BlockNonXboxLive())
	assert.Empty(t, pol.BlockedHosts())
}

type recordingPersister struct {
	saved []string
}

func (p *recordingPersister) Save(list string) error {
	p.saved = append(p.saved, list)
	return nil
}

func TestMutationsPersist(t *testing.T) {
	pol, err := policy.New(policy.Options{})
	require.NoError(t, err)
	store := &recordingPersister{}
	srv := New(pol, store, log.NewNoopLogger())

	doJSON(t, srv, http.MethodPut, "/policy/hosts", "a.com")
	doJSON(t, srv, http.MethodPost, "/policy/hosts/add", `{"host": "b.com"}`)
	doJSON(t, srv, http.MethodPost, "/policy/hosts/remove", `{"host": "a.com"}`)

	require.Len(t, store.saved, 3)
	assert.Equal(t, "a.com", store.saved[0])
	assert.Equal(t, "a.com; b.com", store.saved[1])
	assert.Equal(t, "b.com", store.saved[2])
}

func TestPutHosts_RejectedEditNotPersisted(t *testing.T) {
	pol, err := policy.New(policy.Options{})
	require.NoError(t, err)
	store := &recordingPersister{}
	srv := New(pol, store, log.NewNoopLogger())

	rec := doJSON(t, srv, http.MethodPut, "/policy/hosts", "broken entry")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, store.saved)
}

func TestBadJSONRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPut, "/policy/enabled", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}
