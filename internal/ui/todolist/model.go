// Package todolist renders the collaborative lists view: a sidebar of
// the user's lists and the todos of the selected list.
package todolist

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/studyhall-dev/studyhall/internal/backend"
	"github.com/studyhall-dev/studyhall/internal/keys"
	"github.com/studyhall-dev/studyhall/internal/model"
	"github.com/studyhall-dev/studyhall/internal/theme"
)

// pane identifies which panel owns navigation keys.
type pane int

const (
	paneLists pane = iota
	paneTodos
)

// formKind identifies the active input form, if any.
type formKind int

const (
	formNone formKind = iota
	formNewTodo
	formRenameTodo
	formNewList
	formInvite
	formConfirmLeave
	formAttachImage
)

const callTimeout = 30 * time.Second

// ListSelectedMsg tells the root model which list now has focus, so the
// timer can attribute sessions to it.
type ListSelectedMsg struct {
	List model.List
}

// StatusMsg carries a transient status-line message for the root model.
type StatusMsg struct {
	Text  string
	IsErr bool
}

// todosLoadedMsg delivers the todos and image rows of the selected list.
type todosLoadedMsg struct {
	listID string
	todos  []model.Todo
	images []model.TodoImage
	err    error
}

// mutationDoneMsg reports the outcome of a write.
type mutationDoneMsg struct {
	action string
	err    error
}

// Model is the Bubble Tea model for the todo lists view.
type Model struct {
	client backend.Client
	keys   *keys.KeyMap

	userID string
	lists  []model.List
	todos  []model.Todo

	// images indexes the selected list's attachments by todo id.
	images map[string][]model.TodoImage

	// preferred is a list id to select when it next appears in
	// SetLists, restoring the previous run's selection.
	preferred string

	listCursor int
	todoCursor int
	focused    pane

	form     *huh.Form
	formKind formKind
	fb       *formBindings

	width, height int
}

// formBindings holds form field values on the heap so huh's Value()
// pointers stay valid across Bubble Tea model copies.
type formBindings struct {
	title     string
	name      string
	userID    string
	path      string
	confirmed bool
}

// New creates a new todo lists view model.
func New(client backend.Client, k *keys.KeyMap, width, height int) Model {
	return Model{
		client: client,
		keys:   k,
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// SetUser sets the signed-in user for list/todo attribution.
func (m *Model) SetUser(userID string) {
	m.userID = userID
}

// SetLists replaces the sidebar contents from a provider snapshot and
// returns a command that reloads the selected list's todos.
func (m *Model) SetLists(lists []model.List) tea.Cmd {
	m.lists = lists
	if m.preferred != "" {
		for i, list := range lists {
			if list.ID == m.preferred {
				m.listCursor = i
				m.preferred = ""
				break
			}
		}
	}
	if m.listCursor >= len(lists) {
		m.listCursor = 0
	}
	return m.Reload()
}

// SelectListID marks a list to select when it next appears in SetLists.
func (m *Model) SelectListID(id string) {
	m.preferred = id
}

// Reload re-fetches the selected list's todos.
func (m Model) Reload() tea.Cmd {
	list, ok := m.selectedList()
	if !ok {
		return nil
	}
	return m.loadTodos(list.ID)
}

// InputActive reports whether a form currently owns the keyboard.
func (m Model) InputActive() bool {
	return m.form != nil
}

// selectedList returns the list the cursor is on.
func (m Model) selectedList() (model.List, bool) {
	if m.listCursor < 0 || m.listCursor >= len(m.lists) {
		return model.List{}, false
	}
	return m.lists[m.listCursor], true
}

// Update handles messages for the todo lists view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case todosLoadedMsg:
		if msg.err != nil {
			return m, status(fmt.Sprintf("Loading todos: %v", msg.err), true)
		}
		if list, ok := m.selectedList(); !ok || list.ID != msg.listID {
			// Cursor moved while the fetch was in flight.
			return m, nil
		}
		m.todos = msg.todos
		m.images = groupImages(msg.images)
		if m.todoCursor >= len(m.todos) {
			m.todoCursor = 0
		}
		return m, nil

	case mutationDoneMsg:
		if msg.err != nil {
			if backend.IsDuplicateError(msg.err) {
				return m, status("Already a member of that list", true)
			}
			return m, tea.Batch(
				m.Reload(),
				status(fmt.Sprintf("%s failed: %v", msg.action, msg.err), true),
			)
		}
		return m, m.Reload()
	}

	if m.form != nil {
		return m.updateForm(msg)
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		return m.handleKeys(keyMsg)
	}
	return m, nil
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Down):
		return m.moveCursor(1)
	case key.Matches(msg, m.keys.Up):
		return m.moveCursor(-1)

	case msg.String() == "tab", msg.String() == "h", msg.String() == "l":
		if m.focused == paneLists {
			m.focused = paneTodos
		} else {
			m.focused = paneLists
		}
		return m, nil

	case key.Matches(msg, m.keys.Select):
		if m.focused == paneLists {
			if list, ok := m.selectedList(); ok {
				return m, func() tea.Msg { return ListSelectedMsg{List: list} }
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.NewTodo):
		if _, ok := m.selectedList(); !ok {
			return m, nil
		}
		m.fb.title = ""
		return m.openForm(formNewTodo, m.buildTitleForm("New todo", "What needs doing?"))

	case key.Matches(msg, m.keys.ToggleDone):
		if todo, ok := m.selectedTodo(); ok {
			return m, m.setDone(todo.ID, !todo.IsDone)
		}
		return m, nil

	case key.Matches(msg, m.keys.Rename):
		if todo, ok := m.selectedTodo(); ok {
			m.fb.title = todo.Title
			return m.openForm(formRenameTodo, m.buildTitleForm("Rename todo", ""))
		}
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if todo, ok := m.selectedTodo(); ok {
			return m, m.deleteTodo(todo.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.AttachImage):
		if _, ok := m.selectedTodo(); ok {
			m.fb.path = ""
			return m.openForm(formAttachImage, m.buildImageForm())
		}
		return m, nil

	case key.Matches(msg, m.keys.NewList):
		m.fb.name = ""
		return m.openForm(formNewList, m.buildNameForm())

	case key.Matches(msg, m.keys.Invite):
		list, ok := m.selectedList()
		if !ok {
			return m, nil
		}
		if list.OwnerID != m.userID {
			return m, status("Only the owner can invite members", true)
		}
		m.fb.userID = ""
		return m.openForm(formInvite, m.buildInviteForm())

	case key.Matches(msg, m.keys.Leave):
		list, ok := m.selectedList()
		if !ok {
			return m, nil
		}
		if list.IsInbox() {
			return m, status("The Inbox cannot be deleted or left", true)
		}
		m.fb.confirmed = false
		return m.openForm(formConfirmLeave, m.buildConfirmLeaveForm(list))
	}

	return m, nil
}

func (m Model) moveCursor(delta int) (Model, tea.Cmd) {
	if m.focused == paneLists {
		if len(m.lists) == 0 {
			return m, nil
		}
		m.listCursor = (m.listCursor + delta + len(m.lists)) % len(m.lists)
		m.todoCursor = 0
		return m, m.Reload()
	}

	if len(m.todos) == 0 {
		return m, nil
	}
	m.todoCursor = (m.todoCursor + delta + len(m.todos)) % len(m.todos)
	return m, nil
}

func (m Model) selectedTodo() (model.Todo, bool) {
	if m.todoCursor < 0 || m.todoCursor >= len(m.todos) {
		return model.Todo{}, false
	}
	return m.todos[m.todoCursor], true
}

// --- Forms ---

func (m Model) openForm(kind formKind, form *huh.Form) (Model, tea.Cmd) {
	m.formKind = kind
	m.form = form
	return m, form.Init()
}

func (m Model) buildTitleForm(title, placeholder string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Placeholder(placeholder).
				Value(&m.fb.title).
				Validate(validateRequired("Title")),
		),
	).WithWidth(m.formWidth())
}

func (m Model) buildNameForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("New list").
				Placeholder("Biology 101").
				Value(&m.fb.name).
				Validate(validateListName),
		),
	).WithWidth(m.formWidth())
}

func (m Model) buildInviteForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Invite member").
				Description("The user id of the classmate to add as an editor").
				Value(&m.fb.userID).
				Validate(validateRequired("User id")),
		),
	).WithWidth(m.formWidth())
}

func (m Model) buildImageForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Attach image").
				Description("Path to an image file on disk").
				Placeholder("~/Pictures/notes.png").
				Value(&m.fb.path).
				Validate(validateRequired("Path")),
		),
	).WithWidth(m.formWidth())
}

func (m Model) buildConfirmLeaveForm(list model.List) *huh.Form {
	title := fmt.Sprintf("Leave %q?", list.Name)
	description := "You will lose access to its todos."
	if list.OwnerID == m.userID {
		title = fmt.Sprintf("Delete %q?", list.Name)
		description = "The list and all its todos will be removed for every member."
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Value(&m.fb.confirmed),
		),
	).WithWidth(m.formWidth())
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateAborted {
		m.form = nil
		m.formKind = formNone
		return m, nil
	}
	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	kind := m.formKind
	m.form = nil
	m.formKind = formNone

	switch kind {
	case formNewTodo:
		list, ok := m.selectedList()
		if !ok {
			return m, nil
		}
		return m, m.createTodo(list.ID, m.fb.title)
	case formRenameTodo:
		if todo, ok := m.selectedTodo(); ok {
			return m, m.renameTodo(todo.ID, m.fb.title)
		}
		return m, nil
	case formNewList:
		return m, m.createList(m.fb.name)
	case formInvite:
		list, ok := m.selectedList()
		if !ok {
			return m, nil
		}
		return m, m.invite(list.ID, strings.TrimSpace(m.fb.userID))
	case formAttachImage:
		if todo, ok := m.selectedTodo(); ok {
			return m, m.attachImage(todo, strings.TrimSpace(m.fb.path))
		}
		return m, nil
	case formConfirmLeave:
		if !m.fb.confirmed {
			return m, nil
		}
		list, ok := m.selectedList()
		if !ok {
			return m, nil
		}
		return m, m.leaveOrDelete(list)
	}

	return m, nil
}

// --- Commands ---

func (m Model) loadTodos(listID string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		todos, err := client.Todos(ctx, listID)
		if err != nil {
			return todosLoadedMsg{listID: listID, err: err}
		}
		images, err := client.TodoImages(ctx, listID)
		return todosLoadedMsg{listID: listID, todos: todos, images: images, err: err}
	}
}

// groupImages indexes a list's image rows by their todo.
func groupImages(images []model.TodoImage) map[string][]model.TodoImage {
	grouped := make(map[string][]model.TodoImage, len(images))
	for _, img := range images {
		grouped[img.TodoID] = append(grouped[img.TodoID], img)
	}
	return grouped
}

// attachImage reads a local file and uploads it as an attachment of the
// todo, recording the row with the list denormalized for filtering.
func (m Model) attachImage(todo model.Todo, path string) tea.Cmd {
	client := m.client
	userID := m.userID
	return func() tea.Msg {
		data, err := os.ReadFile(expandHome(path))
		if err != nil {
			return mutationDoneMsg{action: "Attaching image", err: err}
		}

		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		_, err = client.AttachImage(ctx, model.TodoImage{
			TodoID: todo.ID,
			UserID: userID,
			ListID: todo.ListID,
		}, data, http.DetectContentType(data))
		return mutationDoneMsg{action: "Attaching image", err: err}
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func (m Model) createTodo(listID, title string) tea.Cmd {
	todo := model.Todo{
		ID:         uuid.New().String(),
		UserID:     m.userID,
		ListID:     listID,
		Title:      strings.TrimSpace(title),
		InsertedAt: time.Now().UTC(),
	}
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		return mutationDoneMsg{action: "Creating todo", err: client.CreateTodo(ctx, todo)}
	}
}

func (m Model) setDone(todoID string, done bool) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		return mutationDoneMsg{action: "Updating todo", err: client.SetTodoDone(ctx, todoID, done)}
	}
}

func (m Model) renameTodo(todoID, title string) tea.Cmd {
	client := m.client
	title = strings.TrimSpace(title)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		return mutationDoneMsg{action: "Renaming todo", err: client.RenameTodo(ctx, todoID, title)}
	}
}

func (m Model) deleteTodo(todoID string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		return mutationDoneMsg{action: "Deleting todo", err: client.DeleteTodo(ctx, todoID)}
	}
}

func (m Model) createList(name string) tea.Cmd {
	client := m.client
	userID := m.userID
	name = strings.TrimSpace(name)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		_, err := client.CreateList(ctx, name, userID)
		return mutationDoneMsg{action: "Creating list", err: err}
	}
}

func (m Model) invite(listID, userID string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		err := client.AddMember(ctx, model.Membership{
			ListID: listID,
			UserID: userID,
			Role:   model.RoleEditor,
		})
		return mutationDoneMsg{action: "Inviting member", err: err}
	}
}

// leaveOrDelete removes the user's membership, or deletes the whole
// list when the user owns it.
func (m Model) leaveOrDelete(list model.List) tea.Cmd {
	client := m.client
	userID := m.userID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		if list.OwnerID == userID {
			return mutationDoneMsg{action: "Deleting list", err: client.DeleteList(ctx, list.ID)}
		}
		return mutationDoneMsg{action: "Leaving list", err: client.RemoveMember(ctx, list.ID, userID)}
	}
}

// --- View ---

// View renders the two-panel lists view, or the active form.
func (m Model) View() string {
	if m.form != nil {
		return lipgloss.Place(
			m.width, m.height,
			lipgloss.Center, lipgloss.Center,
			theme.CardStyle.Render(m.form.View()),
		)
	}

	sidebarWidth := m.width / 3
	if sidebarWidth > 36 {
		sidebarWidth = 36
	}

	sidebar := m.renderSidebar(sidebarWidth)
	todos := m.renderTodos(m.width - sidebarWidth - 4)

	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, todos)
}

func (m Model) renderSidebar(width int) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue)

	var lines []string
	lines = append(lines, titleStyle.Render("Lists"))
	for i, list := range m.lists {
		label := list.Name
		if !list.IsInbox() {
			label += " " + theme.RoleStyle(list.Role).Render(list.Role)
		}
		if i == m.listCursor {
			lines = append(lines, theme.SelectedItemStyle.Render(label))
		} else {
			lines = append(lines, theme.ListItemStyle.Render(label))
		}
	}
	if len(m.lists) == 0 {
		lines = append(lines, theme.HelpStyle.Render("No lists yet"))
	}

	style := theme.BorderStyle.Width(width).Height(m.height - 2)
	if m.focused == paneLists {
		style = style.BorderForeground(theme.ColorBlue)
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) renderTodos(width int) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue)

	var lines []string
	if list, ok := m.selectedList(); ok {
		lines = append(lines, titleStyle.Render(list.Name))
	} else {
		lines = append(lines, titleStyle.Render("Todos"))
	}

	for i, todo := range m.todos {
		check := "[ ]"
		label := todo.Title
		if todo.IsDone {
			check = "[x]"
			label = theme.DoneStyle.Render(label)
		}
		line := fmt.Sprintf("%s %s", check, label)
		images := m.images[todo.ID]
		if len(images) > 0 {
			line += " " + theme.HelpStyle.Render(fmt.Sprintf("(%d img)", len(images)))
		}

		selected := i == m.todoCursor && m.focused == paneTodos
		if selected {
			lines = append(lines, theme.SelectedItemStyle.Render(line))
			// Attachment URLs unfold under the cursor.
			for _, img := range images {
				lines = append(lines, theme.HelpStyle.Render("      "+m.client.ImageURL(img.Path)))
			}
		} else {
			lines = append(lines, theme.ListItemStyle.Render(line))
		}
	}
	if len(m.todos) == 0 {
		lines = append(lines, theme.HelpStyle.Render("Nothing here. Press n to add a todo."))
	}

	style := theme.BorderStyle.Width(width).Height(m.height - 2)
	if m.focused == paneTodos {
		style = style.BorderForeground(theme.ColorBlue)
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) formWidth() int {
	w := m.width - 8
	if w > 64 {
		w = 64
	}
	if w < 24 {
		w = 24
	}
	return w
}

func status(text string, isErr bool) tea.Cmd {
	return func() tea.Msg {
		return StatusMsg{Text: text, IsErr: isErr}
	}
}

func validateRequired(field string) func(string) error {
	return func(v string) error {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateListName(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return fmt.Errorf("Name is required")
	}
	if v == model.InboxName {
		return fmt.Errorf("%q is reserved", model.InboxName)
	}
	return nil
}
