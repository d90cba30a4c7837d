package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/portfolio/internal/model"
)

func TestEncodeDecode(t *testing.T) {
	preview := "iVBORw0KGgo="
	tests := []struct {
		name string
		ev   Event
	}{
		{"announce", AnnounceSlide{
			UID: "x1", Title: "Intro", Preview: &preview, Description: "about",
			Comments: []model.Comment{{From: "bo", Message: "nice", IconColor: "#000,#fff"}},
			Owner:    "ana",
		}},
		{"announce without preview", AnnounceSlide{UID: "x1", Title: "Intro"}},
		{"title", UpdateTitle{UID: "x1", Title: "Introduction"}},
		{"description", UpdateDescription{UID: "x1", Description: "d"}},
		{"comment", UpdateComment{UID: "x1", Comments: []model.Comment{{From: "a", Message: "b"}}}},
		{"star", UpdateStar{UID: "x1", Fav: true}},
		{"reset", Reset{}},
		{"join", JoinAnnounce{Nick: "ana"}},
		{"colors", ShareColors{Colors: model.Colors{"#111", "#222"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Encode(tt.ev)
			require.NoError(t, err)

			// Through the wire and back.
			raw, err := json.Marshal(msg)
			require.NoError(t, err)
			var got Message
			require.NoError(t, json.Unmarshal(raw, &got))

			ev, err := Decode(got)
			require.NoError(t, err)
			assert.Equal(t, tt.ev, ev)
		})
	}
}

func TestEncode_PayloadShapes(t *testing.T) {
	msg, err := Encode(JoinAnnounce{Nick: "ana"})
	require.NoError(t, err)
	assert.JSONEq(t, `"ana"`, string(msg.Payload))

	msg, err = Encode(ShareColors{Colors: model.Colors{"#111", "#222"}})
	require.NoError(t, err)
	assert.JSONEq(t, `["#111","#222"]`, string(msg.Payload))

	msg, err = Encode(Reset{})
	require.NoError(t, err)
	assert.Equal(t, "R", msg.Command)
	assert.Empty(t, msg.Payload)

	msg, err = Encode(AnnounceSlide{UID: "x1"})
	require.NoError(t, err)
	assert.Contains(t, string(msg.Payload), `"preview":null`)
}

func TestDecode_UnknownCommand(t *testing.T) {
	ev, err := Decode(Message{Command: "z", Payload: json.RawMessage(`{"uid":"x1"}`)})

	assert.Nil(t, ev)
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"not json", Message{Command: CmdUpdateTitle, Payload: json.RawMessage(`{`)}},
		{"wrong type", Message{Command: CmdUpdateStar, Payload: json.RawMessage(`{"uid":"x","fav":"yes"}`)}},
		{"missing uid", Message{Command: CmdUpdateTitle, Payload: json.RawMessage(`{"title":"t"}`)}},
		{"no payload", Message{Command: CmdAnnounceSlide}},
		{"colors not array", Message{Command: CmdShareColors, Payload: json.RawMessage(`"red"`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode(tt.msg)
			assert.Nil(t, ev)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestMessage_SenderRoundTrip(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"command":"R","sender":"peer-1"}`), &msg))

	assert.Equal(t, "peer-1", msg.Sender)
	ev, err := Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, Reset{}, ev)
}
