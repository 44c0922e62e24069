package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdelane/faultgate/internal/fault/config"
	"github.com/kdelane/faultgate/internal/fault/domain"
)

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func TestBuildApplication(t *testing.T) {
	cfg := &config.AppConfig{
		Env:          "dev",
		LogLevel:     "debug",
		ProxyAddr:    ":0",
		ControlAddr:  ":0",
		Enabled:      true,
		FailureType:  "serviceunavailable",
		BlockedHosts: []string{"blocked.com", domain.SentinelExternalServices},
		CacheSize:    64,
	}

	app, err := buildApplication(cfg)
	require.NoError(t, err)
	require.NotNil(t, app.policy)

	assert.True(t, app.policy.Enabled())
	assert.Equal(t, domain.ServiceUnavailable, app.policy.FailureType())
	assert.True(t, app.policy.BlockNonXboxLive(), "sentinel in blocked_hosts should enable allow-list mode")
	assert.Equal(t, []string{"blocked.com"}, app.policy.BlockedHosts())
	assert.Nil(t, app.store)
}

func TestBuildApplication_HostFileOverridesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.txt")
	require.NoError(t, os.WriteFile(path, []byte("fromfile.com\n"), 0o644))

	cfg := &config.AppConfig{
		Env:          "dev",
		LogLevel:     "info",
		ProxyAddr:    ":0",
		ControlAddr:  ":0",
		FailureType:  "notfound",
		BlockedHosts: []string{"fromconfig.com"},
		HostFile:     path,
	}

	app, err := buildApplication(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"fromfile.com"}, app.policy.BlockedHosts())
	require.NotNil(t, app.store)
}

func TestBuildApplication_InvalidHostFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.txt")
	require.NoError(t, os.WriteFile(path, []byte("broken entry\n"), 0o644))

	cfg := &config.AppConfig{
		Env:         "dev",
		LogLevel:    "info",
		ProxyAddr:   ":0",
		ControlAddr: ":0",
		FailureType: "notfound",
		HostFile:    path,
	}

	_, err := buildApplication(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid host list")
}

// TestApplication_Integration drives the daemon end to end: control API edits
// the policy, the proxy substitutes the canned failure.
func TestApplication_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	proxyPort := freePort(t)
	controlPort := freePortDistinct(t, proxyPort)

	cfg := &config.AppConfig{
		Env:         "dev",
		LogLevel:    "debug",
		ProxyAddr:   fmt.Sprintf("127.0.0.1:%d", proxyPort),
		ControlAddr: fmt.Sprintf("127.0.0.1:%d", controlPort),
		Enabled:     true,
		FailureType: "ratelimitburst",
	}

	app, err := buildApplication(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- app.Run(ctx) }()

	controlBase := fmt.Sprintf("http://127.0.0.1:%d", controlPort)
	waitReachable(t, controlBase+"/policy")

	// Block example.com via the control API.
	req, err := http.NewRequest(http.MethodPut, controlBase+"/policy/hosts", strings.NewReader("example.com"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A proxied request to the blocked host gets the canned 429.
	proxyURL, err := url.Parse(fmt.Sprintf("http://127.0.0.1:%d", proxyPort))
	require.NoError(t, err)
	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		Timeout:   5 * time.Second,
	}
	resp, err = client.Get("http://example.com/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, 429, resp.StatusCode)
	assert.Equal(t, "15", resp.Header.Get("Retry-After"))
	assert.Equal(t, domain.TemplateRateLimitBurst.Body, string(body))

	// Policy state is visible on the control API.
	resp, err = http.Get(controlBase + "/policy")
	require.NoError(t, err)
	var state struct {
		Enabled     bool     `json:"enabled"`
		FailureType string   `json:"failure_type"`
		Hosts       []string `json:"hosts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	_ = resp.Body.Close()
	assert.True(t, state.Enabled)
	assert.Equal(t, "ratelimitburst", state.FailureType)
	assert.Equal(t, []string{"example.com"}, state.Hosts)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("daemon did not shut down")
	}
}

func freePortDistinct(t *testing.T, taken int) int {
	t.Helper()
	for i := 0; i < 10; i++ {
		p := freePort(t)
		if p != taken {
			return p
		}
	}
	t.Fatal("could not find a distinct free port")
	return 0
}

func waitReachable(t *testing.T, rawurl string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(rawurl)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond, "control API did not come up")
}
