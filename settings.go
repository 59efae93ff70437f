package main

import (
	"fmt"
	"time"

	ini "gopkg.in/ini.v1"

	"gsm2sip/audiobridge"
)

// Settings holds application configuration loaded from settings.ini.
type Settings struct {
	sipPort       int
	sipPortRange  int
	publicAddress string
	idURI         string
	pbxURI        string

	suBinary     string
	audioProfile string
	diagnostics  bool

	slotCount    int
	pollInterval int
	slotNumbers  [audiobridge.MaxSims]string
}

// LoadSettings reads configuration from ini file and validates required fields.
func LoadSettings(cfg *ini.File) (*Settings, error) {
	s := &Settings{}

	sec := cfg.Section("sip")
	s.sipPort = sec.Key("port").MustInt(5060)
	s.sipPortRange = sec.Key("port_range").MustInt(0)
	s.publicAddress = sec.Key("public_address").String()
	s.idURI = sec.Key("id_uri").MustString("sip:gsm2sip@localhost")
	s.pbxURI = sec.Key("pbx_uri").String()

	sec = cfg.Section("audio")
	s.suBinary = sec.Key("su_binary").MustString("su")
	s.audioProfile = sec.Key("profile").String()
	s.diagnostics = sec.Key("diagnostics").MustBool(false)

	sec = cfg.Section("telephony")
	s.slotCount = sec.Key("slots").MustInt(1)
	s.pollInterval = sec.Key("poll_interval_ms").MustInt(500)
	for i := 0; i < audiobridge.MaxSims; i++ {
		s.slotNumbers[i] = sec.Key(fmt.Sprintf("slot%d_number", i)).String()
	}

	if s.pbxURI == "" {
		return nil, fmt.Errorf("sip pbx_uri must be set")
	}
	if s.slotCount < 1 || s.slotCount > audiobridge.MaxSims {
		return nil, fmt.Errorf("telephony slots must be between 1 and %d", audiobridge.MaxSims)
	}
	if s.pollInterval <= 0 {
		return nil, fmt.Errorf("telephony poll_interval_ms must be positive")
	}

	return s, nil
}

func (s *Settings) SIPPort() int          { return s.sipPort }
func (s *Settings) SIPPortRange() int     { return s.sipPortRange }
func (s *Settings) PublicAddress() string { return s.publicAddress }
func (s *Settings) IDURI() string         { return s.idURI }
func (s *Settings) PBXURI() string        { return s.pbxURI }

func (s *Settings) SuBinary() string     { return s.suBinary }
func (s *Settings) AudioProfile() string { return s.audioProfile }
func (s *Settings) Diagnostics() bool    { return s.diagnostics }

func (s *Settings) SlotCount() int { return s.slotCount }

// SlotNumber returns the caller identity presented for a SIM slot.
func (s *Settings) SlotNumber(slot int) string {
	if slot < 0 || slot >= audiobridge.MaxSims {
		return ""
	}
	if s.slotNumbers[slot] != "" {
		return s.slotNumbers[slot]
	}
	return fmt.Sprintf("slot%d", slot)
}

func (s *Settings) PollInterval() time.Duration {
	return time.Duration(s.pollInterval) * time.Millisecond
}
