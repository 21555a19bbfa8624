package config

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/workdesk/internal/keys"
	"github.com/nhle/workdesk/internal/model"
)

func testConfig() model.AppConfig {
	var cfg model.AppConfig
	cfg.API.BaseURL = "http://localhost:5000/api"
	cfg.Attendance.MinWorkHours = 4
	cfg.Storage.UseKeyring = true
	cfg.Log.Level = "info"
	return cfg
}

func TestApplyValues(t *testing.T) {
	m := New("config.yaml", testConfig(), keys.DefaultKeyMap(), 80, 24)
	m.loadValues()
	assert.Equal(t, "4", m.values.minWorkHours)
	assert.Equal(t, "0", m.values.reconcileEvery)

	m.values.baseURL = " https://portal.example.com/api/ "
	m.values.minWorkHours = "7.5"
	m.values.reconcileEvery = "60"
	m.values.useKeyring = false
	m.values.logLevel = "debug"

	cfg, err := m.applyValues()
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 7.5, cfg.Attendance.MinWorkHours)
	assert.Equal(t, 60, cfg.Notifications.ReconcileIntervalSec)
	assert.False(t, cfg.Storage.UseKeyring)
	assert.Equal(t, "debug", cfg.Log.Level)

	// The view keeps its own copy until the file is written.
	assert.Equal(t, "http://localhost:5000/api", m.cfg.API.BaseURL)
}

func TestApplyValuesRejectsBadNumbers(t *testing.T) {
	m := New("config.yaml", testConfig(), keys.DefaultKeyMap(), 80, 24)
	m.loadValues()
	m.values.minWorkHours = "four"

	_, err := m.applyValues()
	assert.ErrorContains(t, err, "invalid minimum work hours")
}

func TestValidators(t *testing.T) {
	httpURL := validateURL("http", "https")
	assert.NoError(t, httpURL("https://portal.example.com/api"))
	assert.Error(t, httpURL("portal.example.com"))
	assert.EqualError(t, httpURL("ws://portal.example.com"), "scheme must be one of http, https")

	ws := optional(validateURL("ws", "wss"))
	assert.NoError(t, ws(""))
	assert.NoError(t, ws("wss://portal.example.com/ws"))
	assert.Error(t, ws("https://portal.example.com"))

	assert.NoError(t, validatePositiveFloat("0.5"))
	assert.Error(t, validatePositiveFloat("0"))
	assert.Error(t, validatePositiveFloat("x"))

	assert.NoError(t, validateNonNegativeInt("0"))
	assert.Error(t, validateNonNegativeInt("-1"))
}

func TestEscClosesView(t *testing.T) {
	m := New("config.yaml", testConfig(), keys.DefaultKeyMap(), 80, 24)
	m.Init()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, ConfigDoneMsg{}, cmd())
}

func TestSaveWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m := New(path, testConfig(), keys.DefaultKeyMap(), 80, 24)

	cfg := testConfig()
	cfg.Attendance.MinWorkHours = 6
	msg := m.save(cfg)()

	m, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	saved, ok := cmd().(SavedMsg)
	require.True(t, ok)
	assert.Equal(t, 6.0, saved.Config.Attendance.MinWorkHours)
	assert.Contains(t, m.View(), "Settings saved")

	loaded, err := model.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 6.0, loaded.Attendance.MinWorkHours)
	assert.Equal(t, "http://localhost:5000/api", loaded.API.BaseURL)
}

func TestProbeTreatsErrorStatusAsReachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	msg := probe(srv.URL)().(probeResultMsg)
	assert.NoError(t, msg.err)
	assert.Equal(t, srv.URL, msg.url)

	srv.Close()
	msg = probe(srv.URL)().(probeResultMsg)
	assert.Error(t, msg.err)
}
