package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	gosip "github.com/ghettovoice/gosip"
	"github.com/ghettovoice/gosip/sip"

	"gsm2sip/audiobridge"
)

// Gateway connects the GSM call legs of the device to a SIP PBX. It owns
// the audio bridge set; every bridge call happens on the gateway loop
// goroutine, which satisfies the bridge's per-slot serialization contract.
type Gateway struct {
	sipServer gosip.Server
	sipClient *SIPClient
	bridges   *audiobridge.Set
	monitor   *Monitor
	endpoint  audiobridge.Endpoint
	settings  *Settings
	host      string

	events chan sipEvent
	calls  map[string]*CallContext
	bySlot [audiobridge.MaxSims]*CallContext
}

// NewGateway creates a new Gateway instance.
func NewGateway(sipSrv gosip.Server, settings *Settings, bridges *audiobridge.Set,
	monitor *Monitor, endpoint audiobridge.Endpoint, host string) *Gateway {
	return &Gateway{
		sipServer: sipSrv,
		sipClient: NewSIPClient(sipSrv),
		bridges:   bridges,
		monitor:   monitor,
		endpoint:  endpoint,
		settings:  settings,
		host:      host,
		events:    make(chan sipEvent, 16),
		calls:     make(map[string]*CallContext),
	}
}

// Start runs the gateway until ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.sipServer.OnRequest(sip.INVITE, g.handleInvite); err != nil {
		return err
	}
	if err := g.sipServer.OnRequest(sip.ACK, g.handleAck); err != nil {
		return err
	}
	if err := g.sipServer.OnRequest(sip.BYE, g.handleBye); err != nil {
		return err
	}
	if err := g.sipServer.OnRequest(sip.INFO, g.handleInfo); err != nil {
		return err
	}

	for slot := 0; slot < g.settings.SlotCount(); slot++ {
		if err := g.bridges.Init(slot, g.endpoint); err != nil {
			return err
		}
	}
	defer func() {
		for slot := 0; slot < g.settings.SlotCount(); slot++ {
			g.bridges.Destroy(slot)
		}
	}()

	go g.monitor.Run(ctx)

	for {
		select {
		case ev := <-g.monitor.Events():
			g.handleGsmEvent(ctx, ev)
		case ev := <-g.events:
			g.handleSipEvent(ctx, ev)
		case <-ctx.Done():
			return nil
		}
	}
}

// handleGsmEvent reacts to call-state transitions on a SIM slot.
func (g *Gateway) handleGsmEvent(ctx context.Context, ev GsmCallEvent) {
	call := g.bySlot[ev.Slot]

	switch ev.State {
	case gsmRinging:
		if call != nil {
			coreLog.Warnf("slot %d ringing while call %s in progress", ev.Slot, call.SIPCallID)
			return
		}
		offer := buildLocalOffer(g.host, 4000+2*ev.Slot)
		body, err := marshalOffer(offer)
		if err != nil {
			coreLog.Errorf("offer for slot %d: %v", ev.Slot, err)
			return
		}
		callID, err := g.sipClient.Dial(ctx, g.settings.SlotNumber(ev.Slot), g.settings.PBXURI(), ev.Slot, body)
		if err != nil {
			coreLog.Errorf("dial PBX for slot %d: %v", ev.Slot, err)
			return
		}
		call = &CallContext{SIPCallID: callID, Slot: ev.Slot, Number: ev.Number, State: StateDialing}
		g.calls[callID] = call
		g.bySlot[ev.Slot] = call

	case gsmOffhook:
		if call == nil {
			coreLog.Warnf("slot %d off hook without a tracked call", ev.Slot)
			return
		}
		if err := g.bridges.Start(ev.Slot, call.Offer, call.RemoteOffer); err != nil {
			coreLog.Errorf("bridge start for slot %d: %v", ev.Slot, err)
			return
		}
		call.State = StateActive

	case gsmIdle:
		if call == nil {
			return
		}
		call.State = StateCleanup
		g.bridges.Stop(ev.Slot)
		if err := g.sipClient.Hangup(ctx, call.SIPCallID); err != nil {
			sipLog.Warnf("hangup %s: %v", call.SIPCallID, err)
		}
		delete(g.calls, call.SIPCallID)
		g.bySlot[ev.Slot] = nil
	}
}

// handleSipEvent reacts to SIP events forwarded from transaction handlers.
func (g *Gateway) handleSipEvent(ctx context.Context, ev sipEvent) {
	switch ev.typ {
	case evInvite:
		if g.bySlot[ev.slot] != nil {
			coreLog.Warnf("slot %d busy, rejecting call %s", ev.slot, ev.callID)
			return
		}
		remote, err := parseOffer(ev.body)
		if err != nil {
			sipLog.Warnf("invite %s: %v", ev.callID, err)
		}
		local := buildLocalOffer(g.host, 4000+2*ev.slot)
		answer, err := marshalOffer(local)
		if err != nil {
			coreLog.Errorf("answer for slot %d: %v", ev.slot, err)
			return
		}
		if err := g.sipClient.Answer(ctx, ev.callID, answer); err != nil {
			sipLog.Warnf("answer %s: %v", ev.callID, err)
			return
		}
		call := &CallContext{SIPCallID: ev.callID, Slot: ev.slot, State: StateRinging,
			Offer: local, RemoteOffer: remote}
		g.calls[ev.callID] = call
		g.bySlot[ev.slot] = call
		if err := g.bridges.Start(ev.slot, local, remote); err != nil {
			coreLog.Errorf("bridge start for slot %d: %v", ev.slot, err)
			return
		}
		call.State = StateActive

	case evAnswered:
		if call, ok := g.calls[ev.callID]; ok {
			call.State = StateActive
		}

	case evBye:
		call, ok := g.calls[ev.callID]
		if !ok {
			return
		}
		call.State = StateCleanup
		g.bridges.Stop(call.Slot)
		delete(g.calls, ev.callID)
		g.bySlot[call.Slot] = nil

	case evDtmf:
		coreLog.Infof("DTMF relay on %s: %s", ev.callID, strings.TrimSpace(ev.body))
	}
}

// slotFromRequest extracts the SIM slot from the X-GSM-Slot header.
// Requests without the header target slot 0.
func slotFromRequest(req sip.Request) int {
	for _, h := range req.GetHeaders(slotHeader) {
		gh, ok := h.(*sip.GenericHeader)
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(strings.TrimSpace(gh.Contents)); err == nil {
			return v
		}
	}
	return 0
}

// requestCallID extracts the Call-ID header value from a request.
func requestCallID(req sip.Request) string {
	cid, _ := req.CallID()
	if cid == nil {
		return ""
	}
	return cid.String()
}

// handleInvite tracks the transaction and forwards the call to the loop.
func (g *Gateway) handleInvite(req sip.Request, tx sip.ServerTransaction) {
	callID := requestCallID(req)
	from, _ := req.From()
	to, _ := req.To()
	sipLog.Infof("received SIP INVITE: %s -> %s", from, to)

	slot := slotFromRequest(req)
	if slot < 0 || slot >= g.settings.SlotCount() {
		sipLog.Warnf("INVITE %s targets unknown slot %d", callID, slot)
		if tx != nil {
			g.sipServer.RespondOnRequest(req, sip.StatusCode(404), "Not Found", "", nil)
		}
		return
	}

	g.sipClient.TrackInvite(req, tx)
	if tx != nil {
		g.sipServer.RespondOnRequest(req, sip.StatusCode(100), "Trying", "", nil)
	}

	g.events <- sipEvent{typ: evInvite, callID: callID, slot: slot, body: req.Body()}
}

// handleAck marks the call answered.
func (g *Gateway) handleAck(req sip.Request, tx sip.ServerTransaction) {
	callID := requestCallID(req)
	sipLog.Infof("received SIP ACK: %s", callID)
	g.events <- sipEvent{typ: evAnswered, callID: callID}
}

// handleBye tears the bridged call down.
func (g *Gateway) handleBye(req sip.Request, tx sip.ServerTransaction) {
	callID := requestCallID(req)
	sipLog.Infof("received SIP BYE: %s", callID)
	g.events <- sipEvent{typ: evBye, callID: callID}
	if tx != nil {
		g.sipServer.RespondOnRequest(req, sip.StatusCode(200), "OK", "", nil)
	}
}

// handleInfo forwards DTMF relay bodies to the loop.
func (g *Gateway) handleInfo(req sip.Request, tx sip.ServerTransaction) {
	callID := requestCallID(req)
	sipLog.Infof("received SIP INFO: %s", callID)
	g.events <- sipEvent{typ: evDtmf, callID: callID, body: req.Body()}
	if tx != nil {
		g.sipServer.RespondOnRequest(req, sip.StatusCode(200), "OK", "", nil)
	}
}

// startGateway initializes and starts the gateway component.
func startGateway(settings *Settings, runner audiobridge.Runner, host string) error {
	coreLog.Info("starting gateway")

	platform := settings.AudioProfile()
	if platform == "" {
		platform = audiobridge.DetectPlatform(runner)
	}
	profile := audiobridge.ProfileFor(platform)
	coreLog.Infof("using audio routing profile %s (platform %q)", profile.Name, platform)

	bridges := audiobridge.NewSet(runner, profile, audioLog)
	monitor := NewMonitor(runner, settings.SlotCount(), settings.PollInterval())
	endpoint := audiobridge.NewBufferEndpoint()

	gw := NewGateway(sipServer, settings, bridges, monitor, endpoint, host)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return gw.Start(ctx)
}
