package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/chatnest-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	user := flag.String("user", "cli-user", "username")
	password := flag.String("password", "password123", "password")
	register := flag.Bool("register", false, "register the user before logging in")
	to := flag.String("to", "", "username to chat with")
	flag.Parse()

	if *to == "" {
		return errors.New("-to is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	endpoint := "/api/login"
	if *register {
		endpoint = "/api/register"
	}
	token, err := authenticate(ctx, *server+endpoint, *user, *password)
	if err != nil {
		return err
	}

	names, err := people(ctx, *server, token)
	if err != nil {
		return err
	}
	recipient := ""
	for id, name := range names {
		if name == *to {
			recipient = id
		}
	}
	if recipient == "" {
		return fmt.Errorf("unknown user %q", *to)
	}

	wsURL := strings.Replace(*server, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Cookie": []string{"token=" + token}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to %s as %s, chatting with %s\n", wsURL, *user, *to)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn, names)
	}()

	writeLoop(ctx, conn, recipient)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func authenticate(ctx context.Context, url, user, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"username": user, "password": password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("login: unexpected status %s", resp.Status)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	return out.Token, nil
}

// people returns user id -> username.
func people(ctx context.Context, server, token string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/api/people", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("people: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("people: unexpected status %s", resp.Status)
	}

	var list []struct {
		ID       string `json:"_id"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode people: %w", err)
	}
	names := make(map[string]string, len(list))
	for _, u := range list {
		names[u.ID] = u.Username
	}
	return names, nil
}

func readLoop(ctx context.Context, conn *websocket.Conn, names map[string]string) {
	for {
		var raw map[string]json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if online, ok := raw["online"]; ok {
			var users []proto.OnlineUser
			if err := json.Unmarshal(online, &users); err != nil {
				log.Printf("unmarshal presence: %v", err)
				continue
			}
			list := make([]string, 0, len(users))
			for _, u := range users {
				list = append(list, u.Username)
			}
			fmt.Printf("[online] %s\n", strings.Join(list, ", "))
			continue
		}

		data, _ := json.Marshal(raw)
		var msg proto.Delivery
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("unmarshal delivery: %v", err)
			continue
		}
		from := names[msg.Sender]
		if from == "" {
			from = msg.Sender
		}
		if msg.File != nil {
			fmt.Printf("%s: [file /uploads/%s] %s\n", from, *msg.File, msg.Text)
			continue
		}
		fmt.Printf("%s: %s\n", from, msg.Text)
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, recipient string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			if err := wsjson.Write(ctx, conn, proto.Inbound{Recipient: recipient, Text: text}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
