package http

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatnest-server/internal/core"
	"github.com/vovakirdan/chatnest-server/internal/proto"
)

func TestOutboundFromEvent(t *testing.T) {
	tests := []struct {
		name  string
		event *core.Event
		want  string
	}{
		{
			name:  "empty presence",
			event: &core.Event{Kind: core.EventPresence},
			want:  `{"online":[]}`,
		},
		{
			name: "presence",
			event: &core.Event{Kind: core.EventPresence, Online: []core.Presence{
				{UserID: "u1", Username: "alice"},
				{UserID: "u2", Username: "bob"},
			}},
			want: `{"online":[{"userId":"u1","username":"alice"},{"userId":"u2","username":"bob"}]}`,
		},
		{
			name: "text message",
			event: &core.Event{Kind: core.EventMessage, Message: core.Message{
				ID: "m1", Sender: "u1", Recipient: "u2", Text: "hi",
			}},
			want: `{"text":"hi","sender":"u1","recipient":"u2","file":null,"_id":"m1"}`,
		},
		{
			name: "file message",
			event: &core.Event{Kind: core.EventMessage, Message: core.Message{
				ID: "m2", Sender: "u1", Recipient: "u2", File: "abc.png",
			}},
			want: `{"sender":"u1","recipient":"u2","file":"abc.png","_id":"m2"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(outboundFromEvent(tt.event))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}

	assert.Nil(t, outboundFromEvent(&core.Event{Kind: core.EventKind(99)}))
}

func TestInboundToRequest(t *testing.T) {
	req := inboundToRequest(proto.Inbound{
		Recipient: "u2",
		Text:      "see attached",
		File:      &proto.File{Name: "a.txt", Data: "data:text/plain;base64,aGk="},
	})
	assert.Equal(t, "u2", req.Recipient)
	assert.Equal(t, "see attached", req.Text)
	require.NotNil(t, req.File)
	assert.Equal(t, "a.txt", req.File.Name)

	assert.Nil(t, inboundToRequest(proto.Inbound{Recipient: "u2", Text: "plain"}).File)
}
