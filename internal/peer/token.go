package peer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"quizmesh/internal/domain"
)

// EncodeToken turns a complete session description (candidates included)
// into the opaque string exchanged through the relay
func EncodeToken(sd webrtc.SessionDescription) (string, error) {
	data, err := json.Marshal(sd)
	if err != nil {
		return "", fmt.Errorf("encode descriptor: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeToken reverses EncodeToken. Anything that is not base64 JSON of an
// offer or answer with a non-empty SDP is domain.ErrMalformedDescriptor.
func DecodeToken(token string) (webrtc.SessionDescription, error) {
	var sd webrtc.SessionDescription

	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return sd, fmt.Errorf("%w: %v", domain.ErrMalformedDescriptor, err)
	}
	if err := json.Unmarshal(data, &sd); err != nil {
		return sd, fmt.Errorf("%w: %v", domain.ErrMalformedDescriptor, err)
	}
	if sd.Type != webrtc.SDPTypeOffer && sd.Type != webrtc.SDPTypeAnswer {
		return sd, fmt.Errorf("%w: unexpected type %q", domain.ErrMalformedDescriptor, sd.Type.String())
	}
	if sd.SDP == "" {
		return sd, fmt.Errorf("%w: empty sdp", domain.ErrMalformedDescriptor)
	}
	return sd, nil
}
