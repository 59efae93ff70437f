package main

import (
	"context"
	"strconv"
	"strings"
	"time"

	"gsm2sip/audiobridge"
)

// GSM call states as reported by the telephony registry. The values match
// TelephonyManager.CALL_STATE_*.
const (
	gsmIdle    = 0
	gsmRinging = 1
	gsmOffhook = 2
)

// GsmCallEvent reports a call-state transition on a SIM slot.
type GsmCallEvent struct {
	Slot   int
	State  int
	Number string
}

// Monitor polls the telephony registry through the root shell and emits an
// event whenever a slot's call state changes. Dual-SIM devices report one
// registry section per phone.
type Monitor struct {
	runner   audiobridge.Runner
	slots    int
	interval time.Duration
	events   chan GsmCallEvent
	last     [audiobridge.MaxSims]int
}

// NewMonitor creates a monitor for the first slots SIM slots.
func NewMonitor(runner audiobridge.Runner, slots int, interval time.Duration) *Monitor {
	if slots > audiobridge.MaxSims {
		slots = audiobridge.MaxSims
	}
	return &Monitor{
		runner:   runner,
		slots:    slots,
		interval: interval,
		events:   make(chan GsmCallEvent, 8),
	}
}

// Events returns the channel of call-state transitions.
func (m *Monitor) Events() <-chan GsmCallEvent {
	return m.events
}

// Run polls until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	coreLog.Infof("monitoring GSM call state on %d slot(s)", m.slots)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.poll()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) poll() {
	out, err := m.runner.Output("dumpsys telephony.registry")
	if err != nil {
		coreLog.Warnf("telephony registry poll failed: %v", err)
		return
	}
	for _, st := range parseCallStates(out) {
		if st.slot < 0 || st.slot >= m.slots {
			continue
		}
		if st.state == m.last[st.slot] {
			continue
		}
		m.last[st.slot] = st.state
		coreLog.Infof("slot %d call state -> %d (number %q)", st.slot, st.state, st.number)
		m.events <- GsmCallEvent{Slot: st.slot, State: st.state, Number: st.number}
	}
}

type slotCallState struct {
	slot   int
	state  int
	number string
}

// parseCallStates extracts per-phone call state from `dumpsys
// telephony.registry` output. Each phone section starts with "Phone Id=N"
// and carries mCallState and mCallIncomingNumber lines; single-SIM builds
// omit the section header, which maps to slot 0.
func parseCallStates(out string) []slotCallState {
	var states []slotCallState
	current := slotCallState{slot: 0, state: -1}

	flush := func() {
		if current.state >= 0 {
			states = append(states, current)
		}
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Phone Id="):
			flush()
			id, err := strconv.Atoi(strings.TrimPrefix(line, "Phone Id="))
			if err != nil {
				id = 0
			}
			current = slotCallState{slot: id, state: -1}
		case strings.HasPrefix(line, "mCallState="):
			if v, err := strconv.Atoi(strings.TrimPrefix(line, "mCallState=")); err == nil {
				current.state = v
			}
		case strings.HasPrefix(line, "mCallIncomingNumber="):
			current.number = strings.TrimPrefix(line, "mCallIncomingNumber=")
		}
	}
	flush()
	return states
}
