// Package signaling implements the client side of the rendezvous relay.
// The relay only bootstraps peer connections: it carries join notifications
// and offer/answer descriptors, never game messages.
package signaling

import "encoding/json"

// FrameType is the tag of a relay frame
type FrameType string

const (
	FrameJoin       FrameType = "join"        // client -> relay; relay echoes it back as the ack
	FramePeerJoined FrameType = "peer-joined" // relay -> client
	FrameOffer      FrameType = "offer"       // both directions, peerId is the target or the sender
	FrameAnswer     FrameType = "answer"      // both directions, peerId is the target or the sender
	FramePeerLeft   FrameType = "peer-left"   // relay -> client
)

// Frame is one relay message. On the way to the relay PeerID names the
// target; on the way back the relay rewrites it to the sender.
type Frame struct {
	Type        FrameType `json:"type"`
	SessionCode string    `json:"sessionCode"`
	PeerID      string    `json:"peerId,omitempty"`
	Descriptor  string    `json:"descriptor,omitempty"`
}

// Marshal serializes a frame to JSON bytes.
func (f *Frame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalFrame deserializes JSON bytes into a frame.
func UnmarshalFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
