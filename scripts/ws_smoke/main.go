package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/xid"

	"github.com/vovakirdan/chatnest-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

type account struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// run registers two throwaway users, sends one message between them and
// waits for the delivery.
func run() error {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	suffix := xid.New().String()[12:]
	sender, err := register(ctx, *server, "smoke-a-"+suffix)
	if err != nil {
		return err
	}
	receiver, err := register(ctx, *server, "smoke-b-"+suffix)
	if err != nil {
		return err
	}

	wsURL := strings.Replace(*server, "http", "ws", 1) + "/ws"
	dial := func(token string) (*websocket.Conn, error) {
		conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
			HTTPHeader: http.Header{"Cookie": []string{"token=" + token}},
		})
		if err != nil {
			return nil, fmt.Errorf("dial: %w", err)
		}
		return conn, nil
	}

	recvConn, err := dial(receiver.Token)
	if err != nil {
		return err
	}
	defer recvConn.Close(websocket.StatusNormalClosure, "bye")

	sendConn, err := dial(sender.Token)
	if err != nil {
		return err
	}
	defer sendConn.Close(websocket.StatusNormalClosure, "bye")

	// Drain the sender's pushes so its pings are answered.
	go func() {
		for {
			if _, _, err := sendConn.Read(ctx); err != nil {
				return
			}
		}
	}()

	if err := wsjson.Write(ctx, sendConn, proto.Inbound{Recipient: receiver.ID, Text: *text}); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	for {
		var raw map[string]json.RawMessage
		if err := wsjson.Read(ctx, recvConn, &raw); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if online, ok := raw["online"]; ok {
			fmt.Printf("Presence: %s\n", online)
			continue
		}

		data, _ := json.Marshal(raw)
		var msg proto.Delivery
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("unmarshal delivery: %w", err)
		}
		fmt.Printf("Delivery: id=%s sender=%s text=%q\n", msg.ID, msg.Sender, msg.Text)
		if msg.Sender != sender.ID || msg.Text != *text {
			return fmt.Errorf("unexpected delivery %+v", msg)
		}
		return nil
	}
}

func register(ctx context.Context, server, username string) (account, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": "password123"})
	if err != nil {
		return account{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/register", bytes.NewReader(body))
	if err != nil {
		return account{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return account{}, fmt.Errorf("register %s: %w", username, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return account{}, fmt.Errorf("register %s: unexpected status %s", username, resp.Status)
	}

	var acc account
	if err := json.NewDecoder(resp.Body).Decode(&acc); err != nil {
		return account{}, fmt.Errorf("decode register response: %w", err)
	}
	return acc, nil
}
