package ari

import "encoding/json"

// EventType enumerates the ARI Stasis event types the call lifecycle
// controller reacts to. Only the subset the controller drives state off of
// is modeled; anything else decodes with an empty Type-specific payload
// and is ignored by the dispatcher.
type EventType string

const (
	EventStasisStart           EventType = "StasisStart"
	EventStasisEnd             EventType = "StasisEnd"
	EventChannelDtmfReceived   EventType = "ChannelDtmfReceived"
	EventChannelHangupRequest  EventType = "ChannelHangupRequest"
	EventChannelStateChange    EventType = "ChannelStateChange"
	EventPlaybackStarted       EventType = "PlaybackStarted"
	EventPlaybackFinished      EventType = "PlaybackFinished"
	EventBridgeAttendedXfer    EventType = "BridgeAttendedTransfer"
	EventBridgeBlindXfer       EventType = "BridgeBlindTransfer"
	EventChannelLeftBridge     EventType = "ChannelLeftBridge"
	EventChannelEnteredBridge  EventType = "ChannelEnteredBridge"
)

// Channel is the ARI channel resource shape relevant to lifecycle control.
type Channel struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	State        string            `json:"state"`
	Caller       CallerID          `json:"caller"`
	Dialplan     DialplanLocation  `json:"dialplan"`
	ChannelVars  map[string]string `json:"channelvars,omitempty"`
}

// CallerID holds caller display/number fields from an ARI channel.
type CallerID struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

// DialplanLocation is the dialplan context/extension/priority a channel is
// parked at.
type DialplanLocation struct {
	Context  string `json:"context"`
	Exten    string `json:"exten"`
	Priority int    `json:"priority"`
}

// Playback is the ARI playback resource shape.
type Playback struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	MediaURI  string `json:"media_uri"`
	TargetURI string `json:"target_uri"`
}

// Event is one decoded ARI Stasis event.
type Event struct {
	Type        EventType `json:"type"`
	Application string    `json:"application"`
	Timestamp   string    `json:"timestamp"`

	Channel  *Channel  `json:"channel,omitempty"`
	Playback *Playback `json:"playback,omitempty"`

	// DTMF-specific.
	Digit string `json:"digit,omitempty"`

	// Attended/blind transfer specific.
	TransfereeChannel *Channel `json:"transferee,omitempty"`
	ReplaceChannel    *Channel `json:"replace_channel,omitempty"`
	DestinationType   string   `json:"destination_type,omitempty"`

	// StasisStart args (dialplan-supplied Stasis() arguments).
	Args []string `json:"args,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func parseEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, err
	}
	ev.Raw = raw
	return ev, nil
}
