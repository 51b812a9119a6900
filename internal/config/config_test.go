package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/termchat/internal/config"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "termchat.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadClient_Defaults(t *testing.T) {
	cfg, _, err := config.LoadClient(nil)
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.Address)
	assert.Equal(t, "localhost", cfg.ServerName)
	assert.Equal(t, "certificate.crt", cfg.CAFile)
	assert.Equal(t, config.TransportTLS, cfg.Transport)
	assert.Equal(t, "terminator", cfg.Framing)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 10*time.Millisecond, cfg.ReadWait)
	assert.Empty(t, cfg.LogFile)
	assert.False(t, cfg.Verbose)
}

func TestLoadClient_Layering(t *testing.T) {
	path := writeFile(t, `
address = "chat.example.com:9000"
framing = "varint"
poll_interval = "250ms"
log_file = "/tmp/from-file.log"
`)
	t.Setenv("TERMCHAT_FRAMING", "terminator")
	t.Setenv("TERMCHAT_LOG_FILE", "/tmp/from-env.log")

	cfg, _, err := config.LoadClient([]string{"--config", path, "--log-file", "/tmp/from-flag.log", "-v"})
	require.NoError(t, err)
	assert.True(t, cfg.Verbose)

	assert.Equal(t, "chat.example.com:9000", cfg.Address, "file overrides default")
	assert.Equal(t, "chat.example.com", cfg.ServerName)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "terminator", cfg.Framing, "env overrides file")
	assert.Equal(t, "/tmp/from-flag.log", cfg.LogFile, "flag overrides env")
}

func TestLoadClient_UnchangedFlagsDoNotOverride(t *testing.T) {
	t.Setenv("TERMCHAT_ADDRESS", "env-host:1")

	cfg, _, err := config.LoadClient([]string{"--framing", "varint"})
	require.NoError(t, err)
	assert.Equal(t, "env-host:1", cfg.Address)
	assert.Equal(t, "varint", cfg.Framing)
}

func TestLoadClient_WebSocketURL(t *testing.T) {
	cfg, _, err := config.LoadClient([]string{"-t", "ws", "-a", "example.org:443"})
	require.NoError(t, err)
	assert.Equal(t, "wss://example.org:443/", cfg.WSURL)

	cfg, _, err = config.LoadClient([]string{"-t", "ws", "--ws-url", "ws://127.0.0.1:8080/chat"})
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8080/chat", cfg.WSURL)
}

func TestLoadClient_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown transport", args: []string{"--transport", "udp"}, want: "unknown transport"},
		{name: "unknown framing", args: []string{"--framing", "json"}, want: "unknown framing"},
		{name: "zero poll interval", args: []string{"--poll-interval", "0s"}, want: "poll_interval"},
		{name: "bad ws url", args: []string{"-t", "ws", "--ws-url", "http://x"}, want: "ws_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := config.LoadClient(tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadClient_Help(t *testing.T) {
	_, fs, err := config.LoadClient([]string{"--help"})
	assert.ErrorIs(t, err, config.ErrHelp)
	assert.NotNil(t, fs)
}

func TestLoadClient_BadFile(t *testing.T) {
	path := writeFile(t, "address = [")
	_, _, err := config.LoadClient([]string{"-c", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode TOML file")
}

func TestLoadServer(t *testing.T) {
	path := writeFile(t, `
listen = "127.0.0.1:0"
rate_limit = 2.5

[[accounts]]
login = "alice"
password = "secret"
username = "Alice"
`)
	t.Setenv("TERMCHAT_RATE_BURST", "3")

	cfg, _, err := config.LoadServer([]string{"-c", path, "-v", "--handshake-timeout", "2s"})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:0", cfg.Listen)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, 3, cfg.RateBurst)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, 2*time.Second, cfg.HandshakeTimeout)
	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, config.Account{Login: "alice", Password: "secret", Username: "Alice"}, cfg.Accounts[0])
}

func TestLoadServer_Invalid(t *testing.T) {
	_, _, err := config.LoadServer([]string{"--cert-file", "server.crt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cert_file and key_file")

	_, _, err = config.LoadServer([]string{"--rate-limit", "0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit")

	_, _, err = config.LoadServer([]string{"--handshake-timeout", "0s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handshake_timeout")
}
