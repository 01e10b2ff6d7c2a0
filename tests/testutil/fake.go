package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studyhall-dev/studyhall/internal/backend"
	"github.com/studyhall-dev/studyhall/internal/model"
)

// FakeClient is an in-memory backend.Client for tests. All state is
// guarded by a single mutex; per-method error hooks force failures.
type FakeClient struct {
	mu sync.Mutex

	Lists       map[string]model.List
	Memberships []model.Membership
	TodoRows    map[string]model.Todo
	ImageRows   map[string]model.TodoImage
	SessionRows []model.FocusSession
	Profiles    map[string]model.Profile
	Leaderboard []model.LeaderboardEntry

	// Errs forces an error by method name, e.g. Errs["Sessions"].
	Errs map[string]error

	// Calls counts invocations by method name.
	Calls map[string]int
}

var _ backend.Client = (*FakeClient)(nil)

// NewFakeClient creates an empty fake backend.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Lists:     make(map[string]model.List),
		TodoRows:  make(map[string]model.Todo),
		ImageRows: make(map[string]model.TodoImage),
		Profiles:  make(map[string]model.Profile),
		Errs:      make(map[string]error),
		Calls:     make(map[string]int),
	}
}

func (f *FakeClient) hook(method string) error {
	f.Calls[method]++
	return f.Errs[method]
}

func (f *FakeClient) ListMemberships(ctx context.Context, userID string) ([]model.List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("ListMemberships"); err != nil {
		return nil, err
	}

	var lists []model.List
	for _, m := range f.Memberships {
		if m.UserID != userID {
			continue
		}
		if l, ok := f.Lists[m.ListID]; ok {
			l.Role = m.Role
			lists = append(lists, l)
		}
	}
	sort.Slice(lists, func(i, j int) bool { return lists[i].InsertedAt.Before(lists[j].InsertedAt) })
	return lists, nil
}

func (f *FakeClient) CreateList(ctx context.Context, name, ownerID string) (model.List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("CreateList"); err != nil {
		return model.List{}, err
	}

	l := model.List{
		ID:         uuid.New().String(),
		Name:       name,
		OwnerID:    ownerID,
		InsertedAt: time.Now().UTC(),
		Role:       model.RoleOwner,
	}
	f.Lists[l.ID] = l
	f.Memberships = append(f.Memberships, model.Membership{
		ListID: l.ID, UserID: ownerID, Role: model.RoleOwner,
	})
	return l, nil
}

func (f *FakeClient) DeleteList(ctx context.Context, listID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("DeleteList"); err != nil {
		return err
	}

	delete(f.Lists, listID)
	kept := f.Memberships[:0]
	for _, m := range f.Memberships {
		if m.ListID != listID {
			kept = append(kept, m)
		}
	}
	f.Memberships = kept
	for id, todo := range f.TodoRows {
		if todo.ListID == listID {
			delete(f.TodoRows, id)
		}
	}
	for id, img := range f.ImageRows {
		if img.ListID == listID {
			delete(f.ImageRows, id)
		}
	}
	return nil
}

func (f *FakeClient) AddMember(ctx context.Context, m model.Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("AddMember"); err != nil {
		return err
	}

	for _, existing := range f.Memberships {
		if existing.ListID == m.ListID && existing.UserID == m.UserID {
			return &backend.DuplicateError{Table: backend.TableMembers, Message: "already a member"}
		}
	}
	f.Memberships = append(f.Memberships, m)
	return nil
}

func (f *FakeClient) RemoveMember(ctx context.Context, listID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("RemoveMember"); err != nil {
		return err
	}

	kept := f.Memberships[:0]
	for _, m := range f.Memberships {
		if m.ListID != listID || m.UserID != userID {
			kept = append(kept, m)
		}
	}
	f.Memberships = kept
	return nil
}

func (f *FakeClient) EnsureInbox(ctx context.Context, userID string) error {
	f.mu.Lock()
	if err := f.hook("EnsureInbox"); err != nil {
		f.mu.Unlock()
		return err
	}
	for _, m := range f.Memberships {
		if m.UserID == userID {
			f.mu.Unlock()
			return nil
		}
	}
	f.mu.Unlock()

	_, err := f.CreateList(ctx, model.InboxName, userID)
	return err
}

func (f *FakeClient) Todos(ctx context.Context, listID string) ([]model.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("Todos"); err != nil {
		return nil, err
	}

	var todos []model.Todo
	for _, t := range f.TodoRows {
		if t.ListID == listID {
			todos = append(todos, t)
		}
	}
	sort.Slice(todos, func(i, j int) bool { return todos[i].InsertedAt.Before(todos[j].InsertedAt) })
	return todos, nil
}

func (f *FakeClient) CreateTodo(ctx context.Context, todo model.Todo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("CreateTodo"); err != nil {
		return err
	}

	if todo.ID == "" {
		todo.ID = uuid.New().String()
	}
	if todo.InsertedAt.IsZero() {
		todo.InsertedAt = time.Now().UTC()
	}
	f.TodoRows[todo.ID] = todo
	return nil
}

func (f *FakeClient) SetTodoDone(ctx context.Context, todoID string, done bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("SetTodoDone"); err != nil {
		return err
	}

	t, ok := f.TodoRows[todoID]
	if !ok {
		return fmt.Errorf("todo %s not found", todoID)
	}
	t.IsDone = done
	f.TodoRows[todoID] = t
	return nil
}

func (f *FakeClient) RenameTodo(ctx context.Context, todoID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("RenameTodo"); err != nil {
		return err
	}

	t, ok := f.TodoRows[todoID]
	if !ok {
		return fmt.Errorf("todo %s not found", todoID)
	}
	t.Title = title
	f.TodoRows[todoID] = t
	return nil
}

func (f *FakeClient) DeleteTodo(ctx context.Context, todoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("DeleteTodo"); err != nil {
		return err
	}

	delete(f.TodoRows, todoID)
	return nil
}

func (f *FakeClient) CountCompletedTodos(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("CountCompletedTodos"); err != nil {
		return 0, err
	}

	count := 0
	for _, t := range f.TodoRows {
		if t.UserID == userID && t.IsDone {
			count++
		}
	}
	return count, nil
}

func (f *FakeClient) TodoImages(ctx context.Context, listID string) ([]model.TodoImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("TodoImages"); err != nil {
		return nil, err
	}

	var images []model.TodoImage
	for _, img := range f.ImageRows {
		if img.ListID == listID {
			images = append(images, img)
		}
	}
	sort.Slice(images, func(i, j int) bool { return images[i].InsertedAt.Before(images[j].InsertedAt) })
	return images, nil
}

func (f *FakeClient) AttachImage(ctx context.Context, img model.TodoImage, data []byte, contentType string) (model.TodoImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("AttachImage"); err != nil {
		return model.TodoImage{}, err
	}

	if img.ID == "" {
		img.ID = uuid.New().String()
	}
	if img.InsertedAt.IsZero() {
		img.InsertedAt = time.Now().UTC()
	}
	f.ImageRows[img.ID] = img
	return img, nil
}

func (f *FakeClient) ImageURL(path string) string {
	return "https://fake.example/storage/" + path
}

func (f *FakeClient) Sessions(ctx context.Context, userID string) ([]model.FocusSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("Sessions"); err != nil {
		return nil, err
	}

	var sessions []model.FocusSession
	for _, s := range f.SessionRows {
		if s.UserID == userID {
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}

func (f *FakeClient) CreateSession(ctx context.Context, s model.FocusSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("CreateSession"); err != nil {
		return err
	}

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	f.SessionRows = append(f.SessionRows, s)
	return nil
}

func (f *FakeClient) RecentActivity(ctx context.Context, limit int) ([]model.ActivityEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("RecentActivity"); err != nil {
		return nil, err
	}

	sessions := make([]model.FocusSession, len(f.SessionRows))
	copy(sessions, f.SessionRows)
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].InsertedAt.After(sessions[j].InsertedAt) })
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}

	events := make([]model.ActivityEvent, 0, len(sessions))
	for _, s := range sessions {
		evt := model.ActivityEvent{
			ID:              s.ID,
			UserID:          s.UserID,
			Username:        "Anonymous",
			DurationSeconds: s.DurationSeconds,
			InsertedAt:      s.InsertedAt,
		}
		if p, ok := f.Profiles[s.UserID]; ok {
			evt.Username = p.Username
			evt.AvatarURL = p.AvatarURL
		}
		events = append(events, evt)
	}
	return events, nil
}

func (f *FakeClient) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("Profile"); err != nil {
		return nil, err
	}

	if p, ok := f.Profiles[userID]; ok {
		copied := p
		return &copied, nil
	}
	return nil, nil
}

func (f *FakeClient) UpsertProfile(ctx context.Context, p model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("UpsertProfile"); err != nil {
		return err
	}

	if err := model.ValidateUsername(p.Username); err != nil {
		return err
	}
	p.Username = model.NormalizeUsername(p.Username)
	for id, existing := range f.Profiles {
		if id != p.ID && existing.Username == p.Username {
			return &backend.DuplicateError{Table: backend.TableProfiles, Message: "username taken"}
		}
	}
	f.Profiles[p.ID] = p
	return nil
}

func (f *FakeClient) WeeklyLeaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hook("WeeklyLeaderboard"); err != nil {
		return nil, err
	}

	entries := make([]model.LeaderboardEntry, len(f.Leaderboard))
	copy(entries, f.Leaderboard)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// FakeRealtime is an in-memory backend.Realtime; tests push events with
// Emit.
type FakeRealtime struct {
	mu   sync.Mutex
	subs map[string][]chan backend.ChangeEvent
}

var _ backend.Realtime = (*FakeRealtime)(nil)

// NewFakeRealtime creates an empty fake realtime transport.
func NewFakeRealtime() *FakeRealtime {
	return &FakeRealtime{subs: make(map[string][]chan backend.ChangeEvent)}
}

func (f *FakeRealtime) Subscribe(table string) (<-chan backend.ChangeEvent, func()) {
	ch := make(chan backend.ChangeEvent, 16)
	f.mu.Lock()
	f.subs[table] = append(f.subs[table], ch)
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			chans := f.subs[table]
			found := false
			for i, c := range chans {
				if c == ch {
					f.subs[table] = append(chans[:i], chans[i+1:]...)
					found = true
					break
				}
			}
			f.mu.Unlock()
			// Close only if still registered; Close() owns the rest.
			if found {
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Emit delivers an event to every subscriber of its table.
func (f *FakeRealtime) Emit(evt backend.ChangeEvent) {
	f.mu.Lock()
	chans := make([]chan backend.ChangeEvent, len(f.subs[evt.Table]))
	copy(chans, f.subs[evt.Table])
	f.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (f *FakeRealtime) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for table, chans := range f.subs {
		for _, ch := range chans {
			close(ch)
		}
		delete(f.subs, table)
	}
	return nil
}
