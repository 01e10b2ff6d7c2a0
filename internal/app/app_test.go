package app

import (
	"context"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall-dev/studyhall/internal/focus"
	"github.com/studyhall-dev/studyhall/internal/keys"
	"github.com/studyhall-dev/studyhall/internal/model"
	"github.com/studyhall-dev/studyhall/internal/notify"
	"github.com/studyhall-dev/studyhall/internal/store"
	settingsview "github.com/studyhall-dev/studyhall/internal/ui/settings"
	"github.com/studyhall-dev/studyhall/internal/ui/todolist"
	"github.com/studyhall-dev/studyhall/tests/testutil"
)

// quietNotifier returns a notifier that never shells out.
func quietNotifier() *notify.Notifier {
	n := notify.NewNotifier()
	n.SetEnabled(false)
	return n
}

func TestWriteSessionRecordsEveryMode(t *testing.T) {
	client := testutil.NewFakeClient()
	m := Model{client: client, notifier: quietNotifier()}

	for _, mode := range []string{model.ModeFocus, model.ModeShortBreak, model.ModeLongBreak} {
		msg := m.writeSession(model.FocusSession{
			ID:              "s-" + mode,
			UserID:          "user-1",
			Mode:            mode,
			DurationSeconds: 300,
		})()
		written, ok := msg.(sessionWrittenMsg)
		require.True(t, ok, "expected sessionWrittenMsg, got %T", msg)
		assert.NoError(t, written.err)
	}

	// Breaks count toward the streak, so they are written like any
	// other completed countdown.
	require.Len(t, client.SessionRows, 3)
	modes := make(map[string]bool)
	for _, s := range client.SessionRows {
		modes[s.Mode] = true
	}
	assert.True(t, modes[model.ModeShortBreak])
	assert.True(t, modes[model.ModeLongBreak])
	assert.True(t, modes[model.ModeFocus])
}

func TestNotificationToggleAppliesAndPersists(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := &model.AppConfig{DataDir: t.TempDir()}
	cfg.Display.Notifications = true

	m := Model{notifier: notify.NewNotifier(), cfg: cfg, configPath: cfgPath}
	updated, cmd := m.Update(settingsview.NotificationsChangedMsg{Enabled: false})
	require.NotNil(t, cmd)
	cmd()

	root, ok := updated.(Model)
	require.True(t, ok)
	assert.False(t, root.notifier.IsEnabled())

	loaded, err := model.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.False(t, loaded.Display.Notifications)
}

func TestViewSwitchPersistsActiveView(t *testing.T) {
	st := testutil.NewTestStore(t)
	m := Model{
		keys:        DefaultKeyMap(),
		currentView: ViewDashboard,
		store:       st,
		todosView:   todolist.New(testutil.NewFakeClient(), keys.DefaultKeyMap(), 80, 24),
	}

	_, _, handled := m.handleGlobalKeys(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("2")})
	require.True(t, handled)

	got, err := st.State(context.Background(), store.KeyActiveView)
	require.NoError(t, err)
	assert.Equal(t, "todos", got)
}

func TestListSelectionPersists(t *testing.T) {
	st := testutil.NewTestStore(t)
	m := Model{store: st, timer: focus.NewTimer(st)}

	m.Update(todolist.ListSelectedMsg{List: model.List{ID: "list-9", Name: "Math"}})

	got, err := st.State(context.Background(), store.KeySelectedLst)
	require.NoError(t, err)
	assert.Equal(t, "list-9", got)
}

func TestRestoreViewState(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SetState(ctx, store.KeyActiveView, "studyhall"))
	require.NoError(t, st.SetState(ctx, store.KeySelectedLst, "list-2"))

	m := Model{
		currentView: ViewDashboard,
		store:       st,
		todosView:   todolist.New(testutil.NewFakeClient(), keys.DefaultKeyMap(), 80, 24),
	}
	m.restoreViewState()

	assert.Equal(t, ViewStudyHall, m.currentView)
}

func TestRestoreViewStateFreshStore(t *testing.T) {
	st := testutil.NewTestStore(t)
	m := Model{
		currentView: ViewDashboard,
		store:       st,
		todosView:   todolist.New(testutil.NewFakeClient(), keys.DefaultKeyMap(), 80, 24),
	}
	m.restoreViewState()

	assert.Equal(t, ViewDashboard, m.currentView)
}
