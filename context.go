package main

import "github.com/pion/sdp/v3"

// CallState represents states of a bridged GSM<->SIP call.
type CallState int

const (
	StateRinging CallState = iota
	StateDialing
	StateActive
	StateCleanup
)

func (s CallState) String() string {
	switch s {
	case StateRinging:
		return "ringing"
	case StateDialing:
		return "dialing"
	case StateActive:
		return "active"
	case StateCleanup:
		return "cleanup"
	}
	return "unknown"
}

// CallContext holds state for a single bridged call.
type CallContext struct {
	SIPCallID   string
	Slot        int
	Number      string
	State       CallState
	Offer       *sdp.SessionDescription
	RemoteOffer *sdp.SessionDescription
}

// sipEventType enumerates SIP events forwarded into the gateway loop.
type sipEventType int

const (
	evInvite sipEventType = iota
	evAnswered
	evBye
	evDtmf
)

// sipEvent is pushed by the SIP transaction handlers and consumed by the
// gateway loop, which owns all bridge state.
type sipEvent struct {
	typ    sipEventType
	callID string
	slot   int
	body   string
}
