package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configFixture = `
global:
  logger:
    level: info

harvester:
  name: bfs
  source:
    url: https://dam-api.bfs.admin.ch/hub/api/ogd/harvest
    page_size: 50
  destination:
    url: https://api.i14y.admin.ch/api/partner/v1
    token_url: https://identity.bit.admin.ch/realms/bfs-sis-a/protocol/openid-connect/token
    client_id: harvester
    client_secret: ${HARVESTER_TEST_SECRET}
    organization: CH1
  state:
    path: ./data/datasets.json
  reports:
    type: local
    local:
      path: ./reports
    retention_days: 30
  structures:
    enabled: true
    rate_per_second: 2
  interval: 24h
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	fpath := filepath.Join(t.TempDir(), "harvester.yml")
	require.NoError(t, os.WriteFile(fpath, []byte(content), 0o644))
	return fpath
}

func TestNewHarvesterFromFile(t *testing.T) {
	t.Setenv("HARVESTER_TEST_SECRET", "s3cret")

	c, err := NewHarvesterFromFile(writeConfig(t, configFixture))
	require.NoError(t, err)

	assert.Equal(t, "info", c.Global.Logger.Level)
	assert.Equal(t, "bfs", c.Job.Name)
	assert.Equal(t, 50, c.Job.Source.PageSize)
	assert.Equal(t, "CH1", c.Job.Destination.Organization)
	assert.Equal(t, "./data/datasets.json", c.Job.State.Path)
	assert.Equal(t, "local", c.Job.Reports.Type)
	assert.Equal(t, 30, c.Job.Reports.RetentionDays)
	assert.True(t, c.Job.Structures.Enabled)
	assert.Equal(t, 24*time.Hour, c.Job.Interval.Duration())

	// Secrets come from the environment, not the file.
	assert.Equal(t, "s3cret", c.Job.Destination.ClientSecret)
}

func TestNewHarvesterFromFileMissing(t *testing.T) {
	_, err := NewHarvesterFromFile(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestValidateRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		drop string
		want string
	}{
		{"source url", "    url: https://dam-api.bfs.admin.ch/hub/api/ogd/harvest\n", "source.url"},
		{"token url", "    token_url: https://identity.bit.admin.ch/realms/bfs-sis-a/protocol/openid-connect/token\n", "token_url"},
		{"organization", "    organization: CH1\n", "organization"},
		{"state path", "    path: ./data/datasets.json\n", "state.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := configFixture
			require.Contains(t, broken, tt.drop)
			broken = strings.Replace(broken, tt.drop, "", 1)

			_, err := NewHarvesterFromFile(writeConfig(t, broken))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateUnknownReportsType(t *testing.T) {
	broken := strings.Replace(configFixture, "type: local", "type: ftp", 1)

	_, err := NewHarvesterFromFile(writeConfig(t, broken))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown reports type")
}
