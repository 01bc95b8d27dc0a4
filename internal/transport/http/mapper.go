package http

import (
	"github.com/vovakirdan/chatnest-server/internal/core"
	"github.com/vovakirdan/chatnest-server/internal/proto"
	"github.com/vovakirdan/chatnest-server/internal/service/delivery"
)

func inboundToRequest(inbound proto.Inbound) delivery.Request {
	req := delivery.Request{
		Recipient: inbound.Recipient,
		Text:      inbound.Text,
	}
	if inbound.File != nil {
		req.File = &delivery.Attachment{Name: inbound.File.Name, Data: inbound.File.Data}
	}
	return req
}

// outboundFromEvent returns the JSON frame for event, or nil for unknown kinds.
func outboundFromEvent(event *core.Event) any {
	switch event.Kind {
	case core.EventPresence:
		online := make([]proto.OnlineUser, 0, len(event.Online))
		for _, p := range event.Online {
			online = append(online, proto.OnlineUser{UserID: p.UserID, Username: p.Username})
		}
		return proto.Presence{Online: online}
	case core.EventMessage:
		msg := event.Message
		out := proto.Delivery{
			Text:      msg.Text,
			Sender:    msg.Sender,
			Recipient: msg.Recipient,
			ID:        msg.ID,
		}
		if msg.File != "" {
			file := msg.File
			out.File = &file
		}
		return out
	default:
		return nil
	}
}
