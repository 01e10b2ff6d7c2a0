package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studyhall-dev/studyhall/internal/model"
)

const restPrefix = "/rest/v1"

// RestClient implements Client over the backend's HTTP row API.
type RestClient struct {
	api     *httpAPI
	storage *Storage
}

// NewRestClient creates a client for the backend at baseURL. The token
// source supplies the signed-in user's access token; requests fall back
// to the anon key when it is empty.
func NewRestClient(baseURL, anonKey string, tokens TokenSource) *RestClient {
	api := newHTTPAPI(baseURL, anonKey, tokens)
	return &RestClient{
		api:     api,
		storage: NewStorage(baseURL, anonKey, tokens),
	}
}

func tablePath(table string, params url.Values) string {
	if len(params) == 0 {
		return restPrefix + "/" + table
	}
	return restPrefix + "/" + table + "?" + params.Encode()
}

// membershipRow is the shape of a membership joined with its list.
type membershipRow struct {
	Role string     `json:"role"`
	List model.List `json:"todo_lists"`
}

// ListMemberships returns the user's lists, each carrying the caller's
// role from the membership row it was reached through.
func (c *RestClient) ListMemberships(ctx context.Context, userID string) ([]model.List, error) {
	params := url.Values{}
	params.Set("select", "role,todo_lists(*)")
	params.Set("user_id", "eq."+userID)

	var rows []membershipRow
	if err := c.api.getRows(ctx, tablePath(TableMembers, params), &rows); err != nil {
		return nil, fmt.Errorf("fetching list memberships: %w", err)
	}

	lists := make([]model.List, 0, len(rows))
	for _, r := range rows {
		l := r.List
		l.Role = r.Role
		lists = append(lists, l)
	}
	return lists, nil
}

// CreateList inserts a list and the owner membership row for it.
func (c *RestClient) CreateList(ctx context.Context, name, ownerID string) (model.List, error) {
	list := model.List{
		ID:      uuid.New().String(),
		Name:    name,
		OwnerID: ownerID,
	}

	var created []model.List
	err := c.api.insert(ctx, tablePath(TableLists, nil), []model.List{list}, &created)
	if err != nil {
		return model.List{}, fmt.Errorf("creating list %q: %w", name, err)
	}
	if len(created) > 0 {
		list = created[0]
	}

	member := model.Membership{ListID: list.ID, UserID: ownerID, Role: model.RoleOwner}
	if err := c.AddMember(ctx, member); err != nil {
		return model.List{}, fmt.Errorf("creating owner membership for %q: %w", name, err)
	}

	list.Role = model.RoleOwner
	return list, nil
}

// DeleteList removes a list and its dependents. Todos and memberships
// go first so the delete succeeds without relying on cascades.
func (c *RestClient) DeleteList(ctx context.Context, listID string) error {
	params := url.Values{}
	params.Set("list_id", "eq."+listID)
	if err := c.api.delete(ctx, tablePath(TableTodos, params)); err != nil {
		return fmt.Errorf("deleting todos of list %s: %w", listID, err)
	}
	if err := c.api.delete(ctx, tablePath(TableImages, params)); err != nil {
		return fmt.Errorf("deleting images of list %s: %w", listID, err)
	}
	if err := c.api.delete(ctx, tablePath(TableMembers, params)); err != nil {
		return fmt.Errorf("deleting memberships of list %s: %w", listID, err)
	}

	idParams := url.Values{}
	idParams.Set("id", "eq."+listID)
	if err := c.api.delete(ctx, tablePath(TableLists, idParams)); err != nil {
		return fmt.Errorf("deleting list %s: %w", listID, err)
	}
	return nil
}

// AddMember inserts a membership row.
func (c *RestClient) AddMember(ctx context.Context, m model.Membership) error {
	if err := c.api.insert(ctx, tablePath(TableMembers, nil), []model.Membership{m}, nil); err != nil {
		return fmt.Errorf("adding member %s to list %s: %w", m.UserID, m.ListID, err)
	}
	return nil
}

// RemoveMember deletes a membership row. Used when a non-owner leaves.
func (c *RestClient) RemoveMember(ctx context.Context, listID, userID string) error {
	params := url.Values{}
	params.Set("list_id", "eq."+listID)
	params.Set("user_id", "eq."+userID)
	if err := c.api.delete(ctx, tablePath(TableMembers, params)); err != nil {
		return fmt.Errorf("removing member %s from list %s: %w", userID, listID, err)
	}
	return nil
}

// EnsureInbox guarantees the user has at least one list membership. On
// a fresh account it creates the "Inbox" list and its owner membership;
// when the list exists but the membership row is missing it repairs the
// membership instead of violating the unique list name.
func (c *RestClient) EnsureInbox(ctx context.Context, userID string) error {
	params := url.Values{}
	params.Set("select", "list_id")
	params.Set("user_id", "eq."+userID)
	params.Set("limit", "1")

	var memberships []model.Membership
	if err := c.api.getRows(ctx, tablePath(TableMembers, params), &memberships); err != nil {
		return fmt.Errorf("checking memberships: %w", err)
	}
	if len(memberships) > 0 {
		return nil
	}

	inboxParams := url.Values{}
	inboxParams.Set("select", "id")
	inboxParams.Set("owner_id", "eq."+userID)
	inboxParams.Set("name", "eq."+model.InboxName)

	var existing []model.List
	if err := c.api.getRows(ctx, tablePath(TableLists, inboxParams), &existing); err != nil {
		return fmt.Errorf("looking up existing inbox: %w", err)
	}
	if len(existing) > 0 {
		member := model.Membership{ListID: existing[0].ID, UserID: userID, Role: model.RoleOwner}
		if err := c.api.upsert(ctx, tablePath(TableMembers, nil), []model.Membership{member}); err != nil {
			return fmt.Errorf("repairing inbox membership: %w", err)
		}
		return nil
	}

	if _, err := c.CreateList(ctx, model.InboxName, userID); err != nil {
		return fmt.Errorf("creating inbox: %w", err)
	}
	return nil
}

// Todos returns the todos of a list, newest first.
func (c *RestClient) Todos(ctx context.Context, listID string) ([]model.Todo, error) {
	params := url.Values{}
	params.Set("select", "id,user_id,list_id,title,is_done,inserted_at")
	params.Set("list_id", "eq."+listID)
	params.Set("order", "inserted_at.desc")

	var todos []model.Todo
	if err := c.api.getRows(ctx, tablePath(TableTodos, params), &todos); err != nil {
		return nil, fmt.Errorf("fetching todos of list %s: %w", listID, err)
	}
	return todos, nil
}

// CreateTodo inserts a todo row.
func (c *RestClient) CreateTodo(ctx context.Context, todo model.Todo) error {
	if todo.ID == "" {
		todo.ID = uuid.New().String()
	}
	if err := c.api.insert(ctx, tablePath(TableTodos, nil), []model.Todo{todo}, nil); err != nil {
		return fmt.Errorf("creating todo %q: %w", todo.Title, err)
	}
	return nil
}

// SetTodoDone flips the done flag on a todo.
func (c *RestClient) SetTodoDone(ctx context.Context, todoID string, done bool) error {
	params := url.Values{}
	params.Set("id", "eq."+todoID)
	body := map[string]bool{"is_done": done}
	if err := c.api.patch(ctx, tablePath(TableTodos, params), body); err != nil {
		return fmt.Errorf("updating todo %s: %w", todoID, err)
	}
	return nil
}

// RenameTodo replaces the title of a todo.
func (c *RestClient) RenameTodo(ctx context.Context, todoID, title string) error {
	params := url.Values{}
	params.Set("id", "eq."+todoID)
	body := map[string]string{"title": title}
	if err := c.api.patch(ctx, tablePath(TableTodos, params), body); err != nil {
		return fmt.Errorf("renaming todo %s: %w", todoID, err)
	}
	return nil
}

// DeleteTodo removes a todo row. There is no soft delete.
func (c *RestClient) DeleteTodo(ctx context.Context, todoID string) error {
	params := url.Values{}
	params.Set("id", "eq."+todoID)
	if err := c.api.delete(ctx, tablePath(TableTodos, params)); err != nil {
		return fmt.Errorf("deleting todo %s: %w", todoID, err)
	}
	return nil
}

// CountCompletedTodos returns how many of the user's todos are done,
// without transferring the rows.
func (c *RestClient) CountCompletedTodos(ctx context.Context, userID string) (int, error) {
	params := url.Values{}
	params.Set("select", "id")
	params.Set("user_id", "eq."+userID)
	params.Set("is_done", "eq.true")

	n, err := c.api.count(ctx, tablePath(TableTodos, params))
	if err != nil {
		return 0, fmt.Errorf("counting completed todos: %w", err)
	}
	return n, nil
}

// TodoImages returns the image rows of a list, newest first.
func (c *RestClient) TodoImages(ctx context.Context, listID string) ([]model.TodoImage, error) {
	params := url.Values{}
	params.Set("select", "id,todo_id,user_id,list_id,path,inserted_at")
	params.Set("list_id", "eq."+listID)
	params.Set("order", "inserted_at.desc")

	var images []model.TodoImage
	if err := c.api.getRows(ctx, tablePath(TableImages, params), &images); err != nil {
		return nil, fmt.Errorf("fetching images of list %s: %w", listID, err)
	}
	return images, nil
}

// AttachImage uploads the image bytes to storage and records the row.
func (c *RestClient) AttachImage(ctx context.Context, img model.TodoImage, data []byte, contentType string) (model.TodoImage, error) {
	if img.ID == "" {
		img.ID = uuid.New().String()
	}
	if img.Path == "" {
		img.Path = fmt.Sprintf("%s/%s/%s", img.UserID, img.TodoID, img.ID)
	}

	if err := c.storage.Upload(ctx, ImageBucket, img.Path, data, contentType); err != nil {
		return model.TodoImage{}, fmt.Errorf("uploading image: %w", err)
	}
	if err := c.api.insert(ctx, tablePath(TableImages, nil), []model.TodoImage{img}, nil); err != nil {
		return model.TodoImage{}, fmt.Errorf("recording image row: %w", err)
	}
	return img, nil
}

// ImageURL resolves the public URL of an uploaded image path.
func (c *RestClient) ImageURL(path string) string {
	return c.storage.PublicURL(ImageBucket, path)
}

// sessionRow is the shape of a session joined with its list name.
type sessionRow struct {
	model.FocusSession
	TodoLists *struct {
		Name string `json:"name"`
	} `json:"todo_lists"`
}

// Sessions returns the user's full session history, oldest first, with
// list names resolved for subject attribution.
func (c *RestClient) Sessions(ctx context.Context, userID string) ([]model.FocusSession, error) {
	params := url.Values{}
	params.Set("select", "*,todo_lists(name)")
	params.Set("user_id", "eq."+userID)
	params.Set("order", "inserted_at.asc")

	var rows []sessionRow
	if err := c.api.getRows(ctx, tablePath(TableSessions, params), &rows); err != nil {
		return nil, fmt.Errorf("fetching focus sessions: %w", err)
	}

	sessions := make([]model.FocusSession, 0, len(rows))
	for _, r := range rows {
		s := r.FocusSession
		if r.TodoLists != nil {
			s.ListName = r.TodoLists.Name
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// CreateSession records one completed countdown.
func (c *RestClient) CreateSession(ctx context.Context, s model.FocusSession) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if err := c.api.insert(ctx, tablePath(TableSessions, nil), []model.FocusSession{s}, nil); err != nil {
		return fmt.Errorf("recording focus session: %w", err)
	}
	return nil
}

// RecentActivity returns the most recent completed focus sessions
// across all users, enriched with the authors' public profiles.
func (c *RestClient) RecentActivity(ctx context.Context, limit int) ([]model.ActivityEvent, error) {
	params := url.Values{}
	params.Set("select", "id,user_id,duration_seconds,inserted_at")
	params.Set("mode", "eq."+model.ModeFocus)
	params.Set("order", "inserted_at.desc")
	params.Set("limit", strconv.Itoa(limit))

	var sessions []model.FocusSession
	if err := c.api.getRows(ctx, tablePath(TableSessions, params), &sessions); err != nil {
		return nil, fmt.Errorf("fetching recent activity: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(sessions))
	seen := make(map[string]bool)
	for _, s := range sessions {
		if !seen[s.UserID] {
			seen[s.UserID] = true
			ids = append(ids, s.UserID)
		}
	}

	profileParams := url.Values{}
	profileParams.Set("select", "id,username,avatar_url")
	profileParams.Set("id", "in.("+strings.Join(ids, ",")+")")

	var profiles []model.Profile
	if err := c.api.getRows(ctx, tablePath(TableProfiles, profileParams), &profiles); err != nil {
		return nil, fmt.Errorf("fetching activity profiles: %w", err)
	}
	byID := make(map[string]model.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}

	events := make([]model.ActivityEvent, 0, len(sessions))
	for _, s := range sessions {
		e := model.ActivityEvent{
			ID:              s.ID,
			UserID:          s.UserID,
			Username:        "Anonymous",
			DurationSeconds: s.DurationSeconds,
			InsertedAt:      s.InsertedAt,
		}
		if p, ok := byID[s.UserID]; ok && p.Username != "" {
			e.Username = p.Username
			e.AvatarURL = p.AvatarURL
		}
		events = append(events, e)
	}
	return events, nil
}

// Profile returns the user's profile row, or nil when it does not
// exist yet (profiles are created lazily).
func (c *RestClient) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	params := url.Values{}
	params.Set("select", "id,username,full_name,email,avatar_url")
	params.Set("id", "eq."+userID)

	var profiles []model.Profile
	if err := c.api.getRows(ctx, tablePath(TableProfiles, params), &profiles); err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return &profiles[0], nil
}

// UpsertProfile creates or updates the user's profile. The username is
// normalized before saving; a conflict with another user's handle comes
// back as a DuplicateError with the existing row untouched.
func (c *RestClient) UpsertProfile(ctx context.Context, p model.Profile) error {
	if err := model.ValidateUsername(p.Username); err != nil {
		return err
	}
	p.Username = model.NormalizeUsername(p.Username)

	params := url.Values{}
	params.Set("on_conflict", "id")
	if err := c.api.upsert(ctx, tablePath(TableProfiles, params), []model.Profile{p}); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}

// WeeklyLeaderboard reads the pre-ranked weekly view. Rank is assigned
// from row position since the view is ordered.
func (c *RestClient) WeeklyLeaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	params := url.Values{}
	params.Set("select", "user_id,username,avatar_url,total_minutes")
	params.Set("limit", strconv.Itoa(limit))

	var entries []model.LeaderboardEntry
	if err := c.api.getRows(ctx, tablePath(TableLeaderboard, params), &entries); err != nil {
		return nil, fmt.Errorf("fetching weekly leaderboard: %w", err)
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// WeekStart returns the Monday 00:00 UTC boundary the leaderboard
// resets on, for display purposes.
func WeekStart(now time.Time) time.Time {
	now = now.UTC()
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	day := now.AddDate(0, 0, -(weekday - 1))
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}
