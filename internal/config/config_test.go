package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kiosk.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidInStubMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "stub"
	assert.NoError(t, cfg.Validate())
}

func TestLiveModeNeedsCredentials(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_id and client_secret")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "stub"

[kiosk]
id = "front-desk"
default_auction_id = "spring-gala"
run_timeout = "90s"

[fulfillment]
max_poll_attempts = 5

[server]
port = 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "front-desk", cfg.Kiosk.ID)
	assert.Equal(t, "spring-gala", cfg.Kiosk.DefaultAuctionID)
	assert.Equal(t, 90*time.Second, cfg.Kiosk.RunTimeout.Duration)
	assert.Equal(t, time.Hour, cfg.Kiosk.SessionTTL.Duration)
	assert.Equal(t, 5, cfg.Fulfillment.MaxPollAttempts)
	assert.Equal(t, time.Second, cfg.Fulfillment.PollInterval.Duration)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
mode = "stub"
[api]
client_id = "from-file"
`)
	t.Setenv("KIOSK_MODE", "live")
	t.Setenv("KIOSK_API_CLIENT_ID", "from-env")
	t.Setenv("KIOSK_API_CLIENT_SECRET", "shh")
	t.Setenv("KIOSK_RUN_TIMEOUT", "45s")
	t.Setenv("KIOSK_NOTIFY_EVENTS", "run.failed, ,pin.locked")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.Mode)
	assert.Equal(t, "from-env", cfg.API.ClientID)
	assert.Equal(t, 45*time.Second, cfg.Kiosk.RunTimeout.Duration)
	assert.Equal(t, []string{"run.failed", "pin.locked"}, cfg.Notify.Events)
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "kiosk-1", cfg.Kiosk.ID)
}

func TestLoadBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
[kiosk]
run_timeout = "soon"
`))
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.Kiosk.ID = " "
	cfg.Fulfillment.MaxPollAttempts = 0
	cfg.Server.Port = 0
	cfg.Notify.TelegramToken = "tok"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "turbo"`,
		"kiosk: id",
		"max_poll_attempts",
		"server: port",
		"telegram_token and telegram_chat_id",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestSessionTTLMustCoverRun(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "stub"
	cfg.Kiosk.SessionTTL = duration{time.Minute}
	assert.ErrorContains(t, cfg.Validate(), "session_ttl")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.API.ClientSecret = "secret"
	cfg.Postgres.Password = "pg"
	cfg.Server.APIKey = "key"
	cfg.Notify.TelegramToken = "tg"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.API.ClientSecret)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Empty(t, out.S3.SecretKey)

	out.Notify.Events[0] = "changed"
	assert.Equal(t, "run.failed", cfg.Notify.Events[0])
	assert.Equal(t, "secret", cfg.API.ClientSecret)
}
