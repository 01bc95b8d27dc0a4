package delivery

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatnest-server/internal/blob"
	"github.com/vovakirdan/chatnest-server/internal/core"
	"github.com/vovakirdan/chatnest-server/internal/store"
	"github.com/vovakirdan/chatnest-server/internal/store/sqlite"
)

type recordingForwarder struct {
	mu   sync.Mutex
	msgs []core.Message
}

func (f *recordingForwarder) Deliver(msg core.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *recordingForwarder) delivered() []core.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Message(nil), f.msgs...)
}

type recordingPublisher struct {
	ids []string
	err error
}

func (p *recordingPublisher) Publish(_ context.Context, msg *store.Message) error {
	p.ids = append(p.ids, msg.ID)
	return p.err
}

type routerFixture struct {
	router  *Router
	store   *sqlite.SQLiteStore
	fs      afero.Fs
	forward *recordingForwarder
}

func newFixture(t *testing.T, fs afero.Fs) *routerFixture {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fwd := &recordingForwarder{}
	return &routerFixture{
		router:  New(st, blob.New(fs, "/uploads"), fwd, nil),
		store:   st,
		fs:      fs,
		forward: fwd,
	}
}

func pngDataURL(payload []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)
}

func TestRoute_PersistsThenForwards(t *testing.T) {
	f := newFixture(t, afero.NewMemMapFs())
	ctx := context.Background()

	msg, err := f.router.Route(ctx, "alice", Request{Recipient: "bob", Text: "hi"})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.NotEmpty(t, msg.ID)

	history, err := f.store.ListConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
	assert.Equal(t, "hi", history[0].Text)

	delivered := f.forward.delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, core.Message{
		ID:        msg.ID,
		Sender:    "alice",
		Recipient: "bob",
		Text:      "hi",
		CreatedAt: msg.CreatedAt,
	}, delivered[0])
}

func TestRoute_AssignsFreshIDs(t *testing.T) {
	f := newFixture(t, afero.NewMemMapFs())
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		msg, err := f.router.Route(ctx, "alice", Request{Recipient: "bob", Text: "same text"})
		require.NoError(t, err)
		_, dup := seen[msg.ID]
		require.False(t, dup, "duplicate id %s", msg.ID)
		seen[msg.ID] = struct{}{}
	}
}

func TestRoute_PreservesSendOrder(t *testing.T) {
	f := newFixture(t, afero.NewMemMapFs())
	ctx := context.Background()

	texts := []string{"one", "two", "three", "four"}
	for _, text := range texts {
		_, err := f.router.Route(ctx, "alice", Request{Recipient: "bob", Text: text})
		require.NoError(t, err)
	}

	history, err := f.store.ListConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, history, len(texts))
	for i, text := range texts {
		assert.Equal(t, text, history[i].Text)
	}

	delivered := f.forward.delivered()
	require.Len(t, delivered, len(texts))
	for i, text := range texts {
		assert.Equal(t, text, delivered[i].Text)
	}
}

func TestRoute_StoresAttachment(t *testing.T) {
	f := newFixture(t, afero.NewMemMapFs())
	ctx := context.Background()

	payload := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	msg, err := f.router.Route(ctx, "alice", Request{
		Recipient: "bob",
		File:      &Attachment{Name: "cat.png", Data: pngDataURL(payload)},
	})
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.NotEmpty(t, msg.File)
	assert.Regexp(t, `^[0-9a-v]{20}\.png$`, msg.File)

	got, err := afero.ReadFile(f.fs, "/uploads/"+msg.File)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	history, err := f.store.ListConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.File, history[0].File)
	assert.Empty(t, history[0].Text)

	delivered := f.forward.delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, msg.File, delivered[0].File)
}

func TestRoute_FailedBlobWritePersistsNothing(t *testing.T) {
	f := newFixture(t, afero.NewReadOnlyFs(afero.NewMemMapFs()))
	ctx := context.Background()

	msg, err := f.router.Route(ctx, "alice", Request{
		Recipient: "bob",
		Text:      "look",
		File:      &Attachment{Name: "cat.png", Data: pngDataURL([]byte("png"))},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrIO), "expected ErrIO, got %v", err)
	assert.Nil(t, msg)

	history, err := f.store.ListConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, f.forward.delivered())
}

func TestRoute_RejectsMalformedAttachment(t *testing.T) {
	f := newFixture(t, afero.NewMemMapFs())
	ctx := context.Background()

	_, err := f.router.Route(ctx, "alice", Request{
		Recipient: "bob",
		File:      &Attachment{Name: "cat.png", Data: "not a data url"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMalformedFrame)

	history, err := f.store.ListConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRoute_DropsIncompleteRequests(t *testing.T) {
	tests := []struct {
		name   string
		sender string
		req    Request
	}{
		{name: "no sender", sender: "", req: Request{Recipient: "bob", Text: "hi"}},
		{name: "no recipient", sender: "alice", req: Request{Text: "hi"}},
		{name: "no content", sender: "alice", req: Request{Recipient: "bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, afero.NewMemMapFs())

			msg, err := f.router.Route(context.Background(), tt.sender, tt.req)
			require.NoError(t, err)
			assert.Nil(t, msg)
			assert.Empty(t, f.forward.delivered())
		})
	}
}

func TestRoute_PublisherFailureDoesNotFailDelivery(t *testing.T) {
	f := newFixture(t, afero.NewMemMapFs())
	pub := &recordingPublisher{err: errors.New("nats down")}
	f.router.WithPublisher(pub)

	msg, err := f.router.Route(context.Background(), "alice", Request{Recipient: "bob", Text: "hi"})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, []string{msg.ID}, pub.ids)
	assert.Len(t, f.forward.delivered(), 1)
}

func TestRoute_UsesInjectedClock(t *testing.T) {
	f := newFixture(t, afero.NewMemMapFs())
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.router.now = func() time.Time { return fixed }

	msg, err := f.router.Route(context.Background(), "alice", Request{Recipient: "bob", Text: "hi"})
	require.NoError(t, err)
	assert.True(t, msg.CreatedAt.Equal(fixed))
}
