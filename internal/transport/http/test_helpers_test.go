package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatnest-server/internal/auth"
	"github.com/vovakirdan/chatnest-server/internal/blob"
	"github.com/vovakirdan/chatnest-server/internal/config"
	"github.com/vovakirdan/chatnest-server/internal/core"
	"github.com/vovakirdan/chatnest-server/internal/proto"
	"github.com/vovakirdan/chatnest-server/internal/service/delivery"
	"github.com/vovakirdan/chatnest-server/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	auth  *auth.Service
	store *sqlite.SQLiteStore
	fs    afero.Fs
	hub   core.Hub
}

// startTestServer runs the full HTTP stack over an in-memory store and
// filesystem. mutate may adjust the config before the server is built.
func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	return startTestServerWithRouter(t, mutate, nil)
}

// startTestServerWithRouter is startTestServer with the message router
// wrapped by wrap, when set.
func startTestServerWithRouter(t *testing.T, mutate func(*config.Config), wrap func(MessageRouter) MessageRouter) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWT.Secret = "test-secret"
	cfg.RateLimit = config.RateLimitConfig{}
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	disabledLogger := zerolog.New(nil)

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWT.Secret),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      cfg.JWT.TTL,
	})

	hub := core.NewHub(&disabledLogger, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	fs := afero.NewMemMapFs()
	blobs := blob.New(fs, "/uploads")
	var router MessageRouter = delivery.New(st, blobs, hub, &disabledLogger)
	if wrap != nil {
		router = wrap(router)
	}

	server := NewServer(Deps{
		Hub:    hub,
		Auth:   authService,
		Store:  st,
		Blobs:  blobs,
		Router: router,
	}, &cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, auth: authService, store: st, fs: fs, hub: hub}
}

type testUser struct {
	id    string
	name  string
	token string
}

func (e *testEnv) register(t *testing.T, username string) testUser {
	t.Helper()
	token, user, err := e.auth.Register(context.Background(), username, "password123")
	require.NoError(t, err)
	return testUser{id: user.ID, name: user.Username, token: token}
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

// frame is a decoded server push; exactly one of the two shapes is set.
type frame struct {
	presence *proto.Presence
	delivery *proto.Delivery
}

// wsClient keeps reading in the background so pings are always answered.
type wsClient struct {
	conn   *websocket.Conn
	frames chan frame
	closed chan error
}

func (e *testEnv) dial(t *testing.T, token string) *wsClient {
	t.Helper()

	c := e.dialRaw(t, token)
	go c.pump()
	return c
}

func (e *testEnv) dialRaw(t *testing.T, token string) *wsClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := &websocket.DialOptions{}
	if token != "" {
		opts.HTTPHeader = http.Header{"Cookie": []string{TokenCookie + "=" + token}}
	}
	conn, _, err := websocket.Dial(ctx, e.wsURL(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })

	return &wsClient{
		conn:   conn,
		frames: make(chan frame, 64),
		closed: make(chan error, 1),
	}
}

func (c *wsClient) pump() {
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			c.closed <- err
			close(c.frames)
			return
		}
		var probe map[string]json.RawMessage
		if json.Unmarshal(data, &probe) != nil {
			continue
		}
		if _, ok := probe["online"]; ok {
			var p proto.Presence
			if json.Unmarshal(data, &p) == nil {
				c.frames <- frame{presence: &p}
			}
			continue
		}
		var d proto.Delivery
		if json.Unmarshal(data, &d) == nil {
			c.frames <- frame{delivery: &d}
		}
	}
}

func (c *wsClient) send(t *testing.T, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.conn.Write(ctx, websocket.MessageText, data))
}

// expectPresence waits for a presence push listing exactly the given ids,
// in any order.
func (c *wsClient) expectPresence(t *testing.T, ids ...string) {
	t.Helper()

	ids = slices.Clone(ids)
	slices.Sort(ids)
	deadline := time.After(3 * time.Second)
	var last *proto.Presence
	for {
		select {
		case f, ok := <-c.frames:
			if !ok {
				t.Fatalf("connection closed waiting for presence %v (last %+v)", ids, last)
			}
			if f.presence == nil {
				continue
			}
			last = f.presence
			if onlineIDs(*f.presence) == strings.Join(ids, ",") {
				return
			}
		case <-deadline:
			t.Fatalf("expected presence %v, last seen %+v", ids, last)
		}
	}
}

// expectDelivery waits for the next delivered message, skipping presence pushes.
func (c *wsClient) expectDelivery(t *testing.T) proto.Delivery {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case f, ok := <-c.frames:
			if !ok {
				t.Fatal("connection closed waiting for delivery")
			}
			if f.delivery != nil {
				return *f.delivery
			}
		case <-deadline:
			t.Fatal("expected a delivery")
		}
	}
}

// expectNoDelivery asserts nothing but presence arrives within d.
func (c *wsClient) expectNoDelivery(t *testing.T, d time.Duration) {
	t.Helper()

	deadline := time.After(d)
	for {
		select {
		case f, ok := <-c.frames:
			if !ok {
				return
			}
			if f.delivery != nil {
				t.Fatalf("unexpected delivery %+v", *f.delivery)
			}
		case <-deadline:
			return
		}
	}
}

// onlineIDs joins the ids of a presence push; the registry sorts them.
func onlineIDs(p proto.Presence) string {
	ids := make([]string, 0, len(p.Online))
	for _, u := range p.Online {
		ids = append(ids, u.UserID)
	}
	return strings.Join(ids, ",")
}
