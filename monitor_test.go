package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gsm2sip/audiobridge"
)

const dualSimRegistry = `Phone Id=0
  mCallState=1
  mCallIncomingNumber=+15551234567
  mServiceState=0
Phone Id=1
  mCallState=0
  mCallIncomingNumber=
  mServiceState=0
`

// fakeShell serves canned dumpsys output to the monitor.
type fakeShell struct {
	output string
	fail   bool
}

func (f *fakeShell) Run(cmd string) error { return nil }

func (f *fakeShell) Output(cmd string) (string, error) {
	if f.fail {
		return "", fmt.Errorf("%w: %s", audiobridge.ErrCommandFailed, cmd)
	}
	return f.output, nil
}

func init() {
	// handlers log unconditionally; point the globals somewhere harmless
	coreLog = testEntry()
	sipLog = testEntry()
	audioLog = testEntry()
}

func TestParseCallStatesDualSim(t *testing.T) {
	states := parseCallStates(dualSimRegistry)

	require.Len(t, states, 2)
	assert.Equal(t, slotCallState{slot: 0, state: gsmRinging, number: "+15551234567"}, states[0])
	assert.Equal(t, slotCallState{slot: 1, state: gsmIdle, number: ""}, states[1])
}

func TestParseCallStatesSingleSim(t *testing.T) {
	states := parseCallStates("mCallState=2\nmCallIncomingNumber=555\n")

	require.Len(t, states, 1)
	assert.Equal(t, slotCallState{slot: 0, state: gsmOffhook, number: "555"}, states[0])
}

func TestParseCallStatesEmpty(t *testing.T) {
	assert.Empty(t, parseCallStates(""))
	assert.Empty(t, parseCallStates("Phone Id=0\n  mServiceState=0\n"))
}

func drainEvents(m *Monitor) []GsmCallEvent {
	var events []GsmCallEvent
	for {
		select {
		case ev := <-m.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestMonitorEmitsTransitionsOnly(t *testing.T) {
	shell := &fakeShell{output: dualSimRegistry}
	m := NewMonitor(shell, 2, time.Second)

	m.poll()
	events := drainEvents(m)
	require.Len(t, events, 1, "idle slots produce no event")
	assert.Equal(t, GsmCallEvent{Slot: 0, State: gsmRinging, Number: "+15551234567"}, events[0])

	// Unchanged state stays silent.
	m.poll()
	assert.Empty(t, drainEvents(m))

	// Call answered on slot 0.
	shell.output = "Phone Id=0\n  mCallState=2\nPhone Id=1\n  mCallState=0\n"
	m.poll()
	events = drainEvents(m)
	require.Len(t, events, 1)
	assert.Equal(t, GsmCallEvent{Slot: 0, State: gsmOffhook}, events[0])
}

func TestMonitorIgnoresUnmonitoredSlots(t *testing.T) {
	shell := &fakeShell{output: dualSimRegistry}
	m := NewMonitor(shell, 1, time.Second)

	shell.output = "Phone Id=0\n  mCallState=0\nPhone Id=1\n  mCallState=1\n"
	m.poll()
	assert.Empty(t, drainEvents(m))
}

func TestMonitorPollFailure(t *testing.T) {
	shell := &fakeShell{fail: true}
	m := NewMonitor(shell, 2, time.Second)

	m.poll()
	assert.Empty(t, drainEvents(m))
}
