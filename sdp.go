package main

import (
	"fmt"
	"time"

	"github.com/pion/sdp/v3"
)

// buildLocalOffer describes the gateway's audio leg towards the PBX:
// a single G.711 µ-law stream, the codec GSM voice audio is carried as.
func buildLocalOffer(host string, port int) *sdp.SessionDescription {
	id := uint64(time.Now().Unix())
	return &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      id,
			SessionVersion: id,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: host,
		},
		SessionName: "gsm2sip",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: host},
		},
		TimeDescriptions: []sdp.TimeDescription{{}},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: port},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{"0"},
				},
				Attributes: []sdp.Attribute{
					{Key: "rtpmap", Value: "0 PCMU/8000"},
				},
			},
		},
	}
}

// parseOffer parses an SDP body received in a SIP request.
func parseOffer(body string) (*sdp.SessionDescription, error) {
	if body == "" {
		return nil, nil
	}
	offer := &sdp.SessionDescription{}
	if err := offer.Unmarshal([]byte(body)); err != nil {
		return nil, fmt.Errorf("parse sdp: %w", err)
	}
	return offer, nil
}

// marshalOffer renders an offer for use as a SIP body.
func marshalOffer(offer *sdp.SessionDescription) (string, error) {
	raw, err := offer.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal sdp: %w", err)
	}
	return string(raw), nil
}
