// Package protocol defines the wire format of the session sync channel.
//
// THE ENVELOPE:
// Every frame on the channel is one JSON object:
//
//	{"command": "t", "payload": {"uid": "...", "title": "..."}, "sender": "..."}
//
// command is a one-character tag, payload is the event body, and sender is
// the connection id stamped by the hub (clients never set it).
//
// THE EVENT SUM TYPE:
// Decoding turns a Message into one of eight concrete Event structs.
// Consumers switch on the concrete type:
//
//	switch ev := ev.(type) {
//	case protocol.UpdateTitle:
//	    ...
//	}
//
// The Event interface has an unexported method, so the set of kinds is closed
// to this package. Adding a kind means adding a struct here and a case to
// every switch, which the compiler cannot enforce but review can.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sakif/portfolio/internal/model"
)

// Command tags.
const (
	CmdAnnounceSlide     = "s"
	CmdUpdateTitle       = "t"
	CmdUpdateDescription = "d"
	CmdUpdateComment     = "c"
	CmdShareColors       = "C"
	CmdUpdateStar        = "S"
	CmdReset             = "R"
	CmdJoinAnnounce      = "j"
)

var (
	// ErrUnknownCommand is returned for a tag outside the eight kinds.
	// Such a frame is never partially interpreted.
	ErrUnknownCommand = errors.New("protocol: unknown command")
	// ErrMalformed is returned when the payload does not fit the command.
	ErrMalformed = errors.New("protocol: malformed payload")
)

// HostSender is the Sender stamped on frames the host itself sends. The
// hub overwrites Sender on everything it relays, so a guest cannot claim it.
const HostSender = "host"

// Message is one frame on the channel.
type Message struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Sender  string          `json:"sender,omitempty"`
}

// Event is implemented by the eight event kinds.
type Event interface {
	Command() string
	event()
}

// AnnounceSlide carries the full content of one slide. Only the host sends it.
//
// Preview is a base64 PNG, nil when the slide has no image. Owner names the
// participant the slide belongs to; older senders leave it empty.
type AnnounceSlide struct {
	UID         string          `json:"uid"`
	Title       string          `json:"title"`
	Preview     *string         `json:"preview"`
	Description string          `json:"description"`
	Comments    []model.Comment `json:"comments"`
	Owner       string          `json:"owner,omitempty"`
}

type UpdateTitle struct {
	UID   string `json:"uid"`
	Title string `json:"title"`
}

type UpdateDescription struct {
	UID         string `json:"uid"`
	Description string `json:"description"`
}

// UpdateComment carries the whole thread, never a delta.
type UpdateComment struct {
	UID      string          `json:"uid"`
	Comments []model.Comment `json:"comments"`
}

type UpdateStar struct {
	UID string `json:"uid"`
	Fav bool   `json:"fav"`
}

// Reset tells peers a rescan started: everything is inactive until announced again.
type Reset struct{}

// JoinAnnounce carries a participant's display name. The payload is a bare
// JSON string.
type JoinAnnounce struct {
	Nick string
}

// ShareColors carries the host's theme as a two-element array.
type ShareColors struct {
	Colors model.Colors
}

func (AnnounceSlide) Command() string     { return CmdAnnounceSlide }
func (UpdateTitle) Command() string       { return CmdUpdateTitle }
func (UpdateDescription) Command() string { return CmdUpdateDescription }
func (UpdateComment) Command() string     { return CmdUpdateComment }
func (UpdateStar) Command() string        { return CmdUpdateStar }
func (Reset) Command() string             { return CmdReset }
func (JoinAnnounce) Command() string      { return CmdJoinAnnounce }
func (ShareColors) Command() string       { return CmdShareColors }

func (AnnounceSlide) event()     {}
func (UpdateTitle) event()       {}
func (UpdateDescription) event() {}
func (UpdateComment) event()     {}
func (UpdateStar) event()        {}
func (Reset) event()             {}
func (JoinAnnounce) event()      {}
func (ShareColors) event()       {}

// Encode wraps an event into a Message ready to send.
func Encode(ev Event) (Message, error) {
	var body any
	switch ev := ev.(type) {
	case Reset:
		body = nil
	case JoinAnnounce:
		body = ev.Nick
	case ShareColors:
		body = ev.Colors
	default:
		body = ev
	}

	msg := Message{Command: ev.Command()}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return Message{}, fmt.Errorf("protocol: encoding %s: %w", ev.Command(), err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// Decode turns a Message into its Event.
//
// Unknown tags fail with ErrUnknownCommand; a payload that does not parse,
// or a uid-scoped event without a uid, fails with ErrMalformed.
func Decode(msg Message) (Event, error) {
	switch msg.Command {
	case CmdAnnounceSlide:
		return decodeScoped[AnnounceSlide](msg)
	case CmdUpdateTitle:
		return decodeScoped[UpdateTitle](msg)
	case CmdUpdateDescription:
		return decodeScoped[UpdateDescription](msg)
	case CmdUpdateComment:
		return decodeScoped[UpdateComment](msg)
	case CmdUpdateStar:
		return decodeScoped[UpdateStar](msg)
	case CmdReset:
		return Reset{}, nil
	case CmdJoinAnnounce:
		var ev JoinAnnounce
		if err := unmarshal(msg, &ev.Nick); err != nil {
			return nil, err
		}
		return ev, nil
	case CmdShareColors:
		var ev ShareColors
		if err := unmarshal(msg, &ev.Colors); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, msg.Command)
	}
}

// Scoped is implemented by the events that name one slide.
type Scoped interface {
	Event
	SlideUID() string
}

func (e AnnounceSlide) SlideUID() string     { return e.UID }
func (e UpdateTitle) SlideUID() string       { return e.UID }
func (e UpdateDescription) SlideUID() string { return e.UID }
func (e UpdateComment) SlideUID() string     { return e.UID }
func (e UpdateStar) SlideUID() string        { return e.UID }

func decodeScoped[T Scoped](msg Message) (Event, error) {
	var ev T
	if err := unmarshal(msg, &ev); err != nil {
		return nil, err
	}
	if ev.SlideUID() == "" {
		return nil, fmt.Errorf("%w: %s without uid", ErrMalformed, msg.Command)
	}
	return ev, nil
}

func unmarshal(msg Message, v any) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformed, msg.Command)
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, msg.Command, err)
	}
	return nil
}
