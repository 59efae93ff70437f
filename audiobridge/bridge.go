// Package audiobridge routes call audio between a GSM call leg and a SIP
// call leg on a rooted device by reconfiguring the hardware mixer and the
// call-audio mode through privileged shell commands. There is no in-process
// sample path: once the mixer is switched, the modem and the voice stream
// are connected in hardware.
package audiobridge

import (
	"errors"
	"fmt"

	"github.com/pion/sdp/v3"
	"github.com/sirupsen/logrus"
)

// MaxSims is the number of SIM slots the bridge supports.
const MaxSims = 2

// Pool sizing for per-slot bridge allocations.
const (
	poolSize      = 4000
	poolIncrement = 4000
)

// ErrInvalidSlot indicates a slot index outside [0, MaxSims).
var ErrInvalidSlot = errors.New("slot index out of range")

// bridge is the per-slot bridge record. The endpoint reference is borrowed;
// the pool is owned and released on Destroy.
type bridge struct {
	active   bool
	slot     int
	endpoint Endpoint
	pool     Pool
}

// Set holds the bridge records for all SIM slots and applies the routing
// profile through the runner. Methods are synchronous and blocking; the Set
// performs no locking of its own, so callers must serialize access per slot.
type Set struct {
	runner  Runner
	profile RouteProfile
	log     *logrus.Entry
	bridges [MaxSims]bridge
}

// NewSet creates a bridge set using the given command runner and routing
// profile.
func NewSet(runner Runner, profile RouteProfile, log *logrus.Entry) *Set {
	return &Set{runner: runner, profile: profile, log: log}
}

// Init prepares the bridge record for a slot: the record is reset, the
// endpoint reference stored and a memory pool acquired from it.
func (s *Set) Init(slot int, endpoint Endpoint) error {
	if slot < 0 || slot >= MaxSims {
		return ErrInvalidSlot
	}

	br := &s.bridges[slot]
	*br = bridge{slot: slot, endpoint: endpoint}

	pool, err := endpoint.NewPool("audio_bridge", poolSize, poolIncrement)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	br.pool = pool

	s.log.Infof("audio bridge initialized for slot %d", slot)
	return nil
}

// Start switches the device audio path into bridged voice-call mode for a
// slot. Starting an already active slot is a successful no-op. The session
// offers describe the SIP leg; root-level routing connects the legs in
// hardware, so they are recorded for logging only.
func (s *Set) Start(slot int, localOffer, remoteOffer *sdp.SessionDescription) error {
	if slot < 0 || slot >= MaxSims {
		return ErrInvalidSlot
	}

	br := &s.bridges[slot]
	if br.active {
		s.log.Infof("audio bridge already active for slot %d", slot)
		return nil
	}

	s.log.Infof("starting audio bridge for slot %d (profile %s)", slot, s.profile.Name)
	if localOffer != nil && remoteOffer != nil {
		s.log.Debugf("slot %d media: local %s, remote %s", slot,
			sessionName(localOffer), sessionName(remoteOffer))
	}

	if err := s.apply(s.profile.Enable); err != nil {
		s.log.Errorf("failed to configure audio routing for slot %d: %v", slot, err)
		return err
	}

	br.active = true
	s.log.Infof("audio bridge active for slot %d", slot)
	return nil
}

// Stop restores the normal audio path for a slot. Invalid or inactive slots
// are ignored. Restoration failures are logged, never propagated: the record
// always ends up inactive so the slot can be reused.
func (s *Set) Stop(slot int) {
	if slot < 0 || slot >= MaxSims {
		return
	}

	br := &s.bridges[slot]
	if !br.active {
		return
	}

	s.log.Infof("stopping audio bridge for slot %d", slot)
	if err := s.apply(s.profile.Disable); err != nil {
		s.log.Errorf("failed to restore audio routing for slot %d: %v", slot, err)
	}

	br.active = false
	s.log.Infof("audio bridge stopped for slot %d", slot)
}

// Destroy stops the bridge if active, releases the owned pool and resets the
// record. Invalid slots are ignored.
func (s *Set) Destroy(slot int) {
	if slot < 0 || slot >= MaxSims {
		return
	}

	s.Stop(slot)

	br := &s.bridges[slot]
	if br.pool != nil {
		br.pool.Release()
		br.pool = nil
	}
	*br = bridge{}

	s.log.Infof("audio bridge destroyed for slot %d", slot)
}

// Active reports whether the bridge for a slot is currently routing audio.
// Invalid slots report false.
func (s *Set) Active(slot int) bool {
	if slot < 0 || slot >= MaxSims {
		return false
	}
	return s.bridges[slot].active
}

// apply runs a command sequence in order. A failed fatal step aborts the
// sequence and returns its error; non-fatal failures are logged and the
// sequence continues.
func (s *Set) apply(seq []Command) error {
	for _, cmd := range seq {
		err := s.runner.Run(cmd.Line)
		if err == nil {
			continue
		}
		if cmd.Fatal {
			return err
		}
		s.log.Warnf("non-fatal routing step failed: %v", err)
	}
	return nil
}

// OnGsmAudioCaptured is the managed-runtime capture callback. Root-level
// routing bypasses the in-process audio path, so samples are dropped.
func (s *Set) OnGsmAudioCaptured(slot int, samples []int16) {}

// GsmAudioSamples is the managed-runtime playback callback. Unused under
// root-level routing; always reports zero samples written.
func (s *Set) GsmAudioSamples(slot int, samples []int16) int { return 0 }

func sessionName(offer *sdp.SessionDescription) string {
	if offer == nil {
		return "-"
	}
	if offer.SessionName != "" {
		return string(offer.SessionName)
	}
	return offer.Origin.UnicastAddress
}
