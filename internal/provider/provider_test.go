package provider

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall-dev/studyhall/internal/backend"
	"github.com/studyhall-dev/studyhall/internal/model"
	"github.com/studyhall-dev/studyhall/tests/testutil"
)

const testUser = "user-1"

func seedClient() *testutil.FakeClient {
	client := testutil.NewFakeClient()
	client.Profiles[testUser] = model.Profile{ID: testUser, Username: "casey"}
	client.SessionRows = []model.FocusSession{
		{
			ID:              "s1",
			UserID:          testUser,
			DurationSeconds: 1500,
			Mode:            model.ModeFocus,
			InsertedAt:      time.Now().UTC(),
		},
	}
	return client
}

// nextMsg runs the provider's wait command with a timeout so a stuck
// channel fails the test instead of hanging it.
func nextMsg(t *testing.T, p *Provider) tea.Msg {
	t.Helper()

	msgCh := make(chan tea.Msg, 1)
	go func() { msgCh <- p.Wait()() }()

	select {
	case msg := <-msgCh:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for provider message")
		return nil
	}
}

func TestSignInLoadsEverything(t *testing.T) {
	client := seedClient()
	rt := testutil.NewFakeRealtime()
	p := New(client, rt)
	defer p.Close()

	p.HandleAuth(backend.AuthEvent{Type: backend.AuthSignedIn, UserID: testUser})

	msg := nextMsg(t, p)
	refreshed, ok := msg.(RefreshedMsg)
	require.True(t, ok, "expected RefreshedMsg, got %T", msg)
	assert.NoError(t, refreshed.Err)

	snap := p.Snapshot()
	assert.Equal(t, testUser, snap.UserID)
	assert.False(t, snap.Loading)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, "casey", snap.Profile.Username)
	assert.Len(t, snap.Sessions, 1)
	// The inbox was ensured before the first read.
	require.Len(t, snap.Lists, 1)
	assert.True(t, snap.Lists[0].IsInbox())
}

func TestRealtimeEventTriggersRefresh(t *testing.T) {
	client := seedClient()
	rt := testutil.NewFakeRealtime()
	p := New(client, rt)
	defer p.Close()

	p.HandleAuth(backend.AuthEvent{Type: backend.AuthSignedIn, UserID: testUser})
	nextMsg(t, p)

	rt.Emit(backend.ChangeEvent{Table: backend.TableTodos, Type: backend.EventInsert})

	msg := nextMsg(t, p)
	_, ok := msg.(RefreshedMsg)
	require.True(t, ok, "expected RefreshedMsg, got %T", msg)
}

func TestPartialFailureKeepsPreviousData(t *testing.T) {
	client := seedClient()
	rt := testutil.NewFakeRealtime()
	p := New(client, rt)
	defer p.Close()

	p.HandleAuth(backend.AuthEvent{Type: backend.AuthSignedIn, UserID: testUser})
	nextMsg(t, p)
	require.Len(t, p.Snapshot().Sessions, 1)

	client.Errs["Sessions"] = context.DeadlineExceeded
	p.Refresh()

	msg := nextMsg(t, p)
	refreshed, ok := msg.(RefreshedMsg)
	require.True(t, ok)
	assert.Error(t, refreshed.Err)

	// The failed read kept its previous value; the rest still updated.
	snap := p.Snapshot()
	assert.Len(t, snap.Sessions, 1)
	require.NotNil(t, snap.Profile)
}

// gatedClient blocks Sessions until released so tests can hold a
// refresh in flight.
type gatedClient struct {
	*testutil.FakeClient
	entered chan struct{}
	release chan struct{}
}

func (g *gatedClient) Sessions(ctx context.Context, userID string) ([]model.FocusSession, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.FakeClient.Sessions(ctx, userID)
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	client := &gatedClient{
		FakeClient: seedClient(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	rt := testutil.NewFakeRealtime()
	p := New(client, rt)
	defer p.Close()

	p.HandleAuth(backend.AuthEvent{Type: backend.AuthSignedIn, UserID: testUser})
	<-client.entered

	// Pile up refresh requests while the first fetch is in flight.
	for i := 0; i < 5; i++ {
		p.Refresh()
	}
	client.release <- struct{}{}

	msg := nextMsg(t, p)
	_, ok := msg.(RefreshedMsg)
	require.True(t, ok)

	// Exactly one trailing refresh follows, not five.
	<-client.entered
	client.release <- struct{}{}
	nextMsg(t, p)

	select {
	case <-client.entered:
		t.Fatal("expected refreshes to coalesce into a single follow-up")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSignOutDropsState(t *testing.T) {
	client := seedClient()
	rt := testutil.NewFakeRealtime()
	p := New(client, rt)
	defer p.Close()

	p.HandleAuth(backend.AuthEvent{Type: backend.AuthSignedIn, UserID: testUser})
	nextMsg(t, p)

	p.HandleAuth(backend.AuthEvent{Type: backend.AuthSignedOut})

	msg := nextMsg(t, p)
	_, ok := msg.(SignedOutMsg)
	require.True(t, ok, "expected SignedOutMsg, got %T", msg)

	snap := p.Snapshot()
	assert.Empty(t, snap.UserID)
	assert.Empty(t, snap.Lists)
	assert.Nil(t, snap.Profile)
	assert.Empty(t, snap.Sessions)
}
