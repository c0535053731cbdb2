package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func noDatabase(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")
	configPath = filepath.Join(t.TempDir(), "missing.yaml")
}

func TestPostcodeCommand(t *testing.T) {
	out, err := run(t, "postcode", "0872", "Lot", "4", "Mine", "Rd")
	require.NoError(t, err)
	var d struct {
		Zone struct {
			Tier string `json:"zone"`
		} `json:"zone"`
		MineSite      bool `json:"mine_site"`
		QuoteRequired bool `json:"quote_required"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &d), out)
	assert.Equal(t, "remote", d.Zone.Tier)
	assert.True(t, d.MineSite)
	assert.True(t, d.QuoteRequired)
}

func TestOpenAppFallsBackToMemory(t *testing.T) {
	noDatabase(t)
	a, err := openApp(context.Background(), false)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "memory", a.mode())
	assert.Equal(t, "memory", a.quotes.Mode())

	_, err = openApp(context.Background(), true)
	assert.Error(t, err, "migrate and create-admin need a database")
}

func TestCreateAdminNeedsPassword(t *testing.T) {
	noDatabase(t)
	t.Setenv("ADMIN_PASSWORD", "")
	adminPassword = ""
	_, err := run(t, "create-admin", "--email", "ops@example.com")
	assert.ErrorContains(t, err, "password")
}
