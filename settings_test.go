package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/ini.v1"
)

func loadTestSettings(t *testing.T, src string) (*Settings, error) {
	t.Helper()
	cfg, err := ini.Load([]byte(src))
	require.NoError(t, err)
	return LoadSettings(cfg)
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := loadTestSettings(t, `
[sip]
pbx_uri = sip:gateway@pbx.example.com
`)
	require.NoError(t, err)

	assert.Equal(t, 5060, s.SIPPort())
	assert.Equal(t, 0, s.SIPPortRange())
	assert.Equal(t, "sip:gsm2sip@localhost", s.IDURI())
	assert.Equal(t, "sip:gateway@pbx.example.com", s.PBXURI())
	assert.Equal(t, "su", s.SuBinary())
	assert.False(t, s.Diagnostics())
	assert.Equal(t, 1, s.SlotCount())
	assert.Equal(t, 500*time.Millisecond, s.PollInterval())
}

func TestLoadSettingsFull(t *testing.T) {
	s, err := loadTestSettings(t, `
[sip]
port = 5080
pbx_uri = sip:trunk@10.0.0.5

[audio]
su_binary = /system/xbin/su
profile = sm6150
diagnostics = true

[telephony]
slots = 2
poll_interval_ms = 250
slot0_number = +15550001111
slot1_number = +15550002222
`)
	require.NoError(t, err)

	assert.Equal(t, 5080, s.SIPPort())
	assert.Equal(t, "/system/xbin/su", s.SuBinary())
	assert.Equal(t, "sm6150", s.AudioProfile())
	assert.True(t, s.Diagnostics())
	assert.Equal(t, 2, s.SlotCount())
	assert.Equal(t, 250*time.Millisecond, s.PollInterval())
	assert.Equal(t, "+15550001111", s.SlotNumber(0))
	assert.Equal(t, "+15550002222", s.SlotNumber(1))
}

func TestLoadSettingsRequiresPBX(t *testing.T) {
	_, err := loadTestSettings(t, "[sip]\n")
	assert.Error(t, err)
}

func TestLoadSettingsValidatesSlots(t *testing.T) {
	_, err := loadTestSettings(t, `
[sip]
pbx_uri = sip:pbx

[telephony]
slots = 3
`)
	assert.Error(t, err)

	_, err = loadTestSettings(t, `
[sip]
pbx_uri = sip:pbx

[telephony]
poll_interval_ms = 0
`)
	assert.Error(t, err)
}

func TestSlotNumberFallback(t *testing.T) {
	s, err := loadTestSettings(t, `
[sip]
pbx_uri = sip:pbx
`)
	require.NoError(t, err)

	assert.Equal(t, "slot0", s.SlotNumber(0))
	assert.Equal(t, "slot1", s.SlotNumber(1))
	assert.Equal(t, "", s.SlotNumber(-1))
	assert.Equal(t, "", s.SlotNumber(2))
}
