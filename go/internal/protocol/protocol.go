// Package protocol defines the wire format of the watch-party relay: one
// JSON object per WebSocket text frame, discriminated by a "type" field
// and carrying an epoch-milliseconds "timestamp".
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/syncparty/go/internal/party"
)

// Type discriminates message variants.
type Type string

// Client → server message types.
const (
	TypeCreateParty Type = "create-party"
	TypeJoin        Type = "join"
	TypeLeave       Type = "leave"
	TypeSync        Type = "sync"
	TypeVideoInfo   Type = "video-info"
	TypePing        Type = "ping"
)

// Server → client message types.
const (
	TypePartyCreated Type = "party-created"
	TypeJoined       Type = "joined"
	TypeLeft         Type = "left"
	TypeParticipants Type = "participants"
	TypeError        Type = "error"
	TypePong         Type = "pong"
)

// Action is a playback state change carried by a sync message.
type Action string

const (
	ActionPlay       Action = "play"
	ActionPause      Action = "pause"
	ActionSeek       Action = "seek"
	ActionRateChange Action = "ratechange"
)

// Valid reports whether the action is one of the closed set.
func (a Action) Valid() bool {
	switch a {
	case ActionPlay, ActionPause, ActionSeek, ActionRateChange:
		return true
	}
	return false
}

// SyncData carries the type-specific payload of a sync message. Fields are
// pointers so that "absent" survives a relay round trip.
type SyncData struct {
	CurrentTime  *float64 `json:"currentTime,omitempty"`
	PlaybackRate *float64 `json:"playbackRate,omitempty"`
}

// CreateParty asks the server to create a party with the sender as first
// participant.
type CreateParty struct {
	Type       Type   `json:"type"`
	Timestamp  int64  `json:"timestamp"`
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"`
	Persistent bool   `json:"persistent,omitempty"`
}

// Join asks the server to add the sender to an existing party.
type Join struct {
	Type      Type   `json:"type"`
	Timestamp int64  `json:"timestamp"`
	PartyCode string `json:"partyCode"`
	Username  string `json:"username"`
	Password  string `json:"password,omitempty"`
}

// Leave removes the sender from its current party.
type Leave struct {
	Type      Type  `json:"type"`
	Timestamp int64 `json:"timestamp"`
}

// Sync reports a local playback state change for relay to the rest of the
// party. Username is set by the server on the relayed copy.
type Sync struct {
	Type      Type     `json:"type"`
	Timestamp int64    `json:"timestamp"`
	Action    Action   `json:"action"`
	Data      SyncData `json:"data"`
	Username  string   `json:"username,omitempty"`
}

// VideoInfo reports the sender's current video for the shared descriptor.
// Username is set by the server on the relayed copy.
type VideoInfo struct {
	Type      Type            `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      party.VideoInfo `json:"data"`
	Username  string          `json:"username,omitempty"`
}

// Ping is the client's application-level keep-alive.
type Ping struct {
	Type      Type  `json:"type"`
	Timestamp int64 `json:"timestamp"`
}

// PartyCreated confirms party creation to the creator.
type PartyCreated struct {
	Type        Type   `json:"type"`
	Timestamp   int64  `json:"timestamp"`
	PartyCode   string `json:"partyCode"`
	Username    string `json:"username"`
	HasPassword bool   `json:"hasPassword"`
	Persistent  bool   `json:"persistent"`
}

// Joined confirms a successful join and carries the party snapshot.
type Joined struct {
	Type         Type                    `json:"type"`
	Timestamp    int64                   `json:"timestamp"`
	PartyCode    string                  `json:"partyCode"`
	Username     string                  `json:"username"`
	Participants []party.ParticipantView `json:"participants"`
	Video        *party.VideoInfo        `json:"video,omitempty"`
}

// Left confirms the sender left its party.
type Left struct {
	Type      Type  `json:"type"`
	Timestamp int64 `json:"timestamp"`
}

// Participants refreshes every member's view of the party roster.
type Participants struct {
	Type         Type                    `json:"type"`
	Timestamp    int64                   `json:"timestamp"`
	Participants []party.ParticipantView `json:"participants"`
}

// Error reports a per-message failure; the connection stays open.
type Error struct {
	Type      Type   `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// Pong answers a client ping.
type Pong struct {
	Type      Type  `json:"type"`
	Timestamp int64 `json:"timestamp"`
}

// UnknownTypeError is returned by Decode for an unrecognized or missing
// type tag. The caller answers with an error frame instead of ignoring
// the message.
type UnknownTypeError struct {
	Tag Type
}

func (e *UnknownTypeError) Error() string {
	if e.Tag == "" {
		return "message has no type"
	}
	return fmt.Sprintf("unknown message type %q", e.Tag)
}

// Decode parses one inbound client frame into its concrete variant. Only
// client → server types are accepted; a server-side tag arriving from a
// client is treated as unknown.
func Decode(data []byte) (any, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch head.Type {
	case TypeCreateParty:
		var m CreateParty
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", head.Type, err)
		}
		return m, nil

	case TypeJoin:
		var m Join
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", head.Type, err)
		}
		return m, nil

	case TypeLeave:
		var m Leave
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", head.Type, err)
		}
		return m, nil

	case TypeSync:
		var m Sync
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", head.Type, err)
		}
		if !m.Action.Valid() {
			return nil, fmt.Errorf("malformed %s: unknown action %q", head.Type, m.Action)
		}
		return m, nil

	case TypeVideoInfo:
		var m VideoInfo
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", head.Type, err)
		}
		return m, nil

	case TypePing:
		var m Ping
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", head.Type, err)
		}
		return m, nil

	default:
		return nil, &UnknownTypeError{Tag: head.Type}
	}
}

// Encode marshals an outbound message to one frame.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", msg, err)
	}
	return data, nil
}
