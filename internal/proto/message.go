// Package proto defines the JSON frames exchanged over the /ws connection.
package proto

// Inbound is a send request from the client.
//
//	{"recipient":"…","text":"…","file":{"name":"a.png","data":"data:image/png;base64,…"}}
type Inbound struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text,omitempty"`
	File      *File  `json:"file,omitempty"`
}

// File is an attachment carried as a data URL.
type File struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// OnlineUser is one entry of a presence push.
type OnlineUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Presence is pushed to every connection whenever the online set changes.
type Presence struct {
	Online []OnlineUser `json:"online"`
}

// Delivery is a persisted message forwarded to its recipient.
// File is null when the message has no attachment.
type Delivery struct {
	Text      string  `json:"text,omitempty"`
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	File      *string `json:"file"`
	ID        string  `json:"_id"`
}
