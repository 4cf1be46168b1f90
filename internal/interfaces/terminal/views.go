package terminal

import (
	"strconv"
	"strings"
	"sync"

	"github.com/inbucket/html2text"

	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/interfaces/presenter"
)

// statusLabels are the terminal texts of the status title keys.
var statusLabels = map[string]string{
	"authorization.loading":            "Loading...",
	"authorization.confirm_processing": "Confirming...",
	"authorization.deny_processing":    "Denying...",
	"authorization.confirmed":          "Confirmed",
	"authorization.denied":             "Denied",
	"authorization.error":              "Error",
	"authorization.time_out":           "Timed out",
	"authorization.unavailable":        "Unavailable",
}

func statusLabel(state presenter.ViewState) string {
	if state.StatusTitleKey == "" {
		return "Pending"
	}
	if label, ok := statusLabels[state.StatusTitleKey]; ok {
		return label
	}
	return string(state.Status)
}

// RenderDescription turns a description into terminal text. Markup is converted to plain text.
func RenderDescription(description string, mode models.DescriptionMode) string {
	if mode != models.DescriptionModeMarkup {
		return description
	}
	text, err := html2text.FromString(description, html2text.Options{
		PrettyTables: true,
		OmitLinks:    false,
	})
	if err != nil {
		return description
	}
	return text
}

func eventText(event presenter.Event) string {
	switch event.Kind {
	case presenter.EventErrorMessage:
		return event.Message
	case presenter.EventRequestLocationPermission:
		return "Location permission is required for this authorization. Set location.enabled in the configuration."
	case presenter.EventRequestLocationEnable:
		return "Location is turned off. Enable it to answer this authorization."
	case presenter.EventConnectionInvalidated:
		return "Connection revoked by the provider: " + strings.Join(event.ConnectionIDs, ", ")
	default:
		return ""
	}
}

// closer is closed once the view receives a close event.
type closer struct {
	once sync.Once
	done chan struct{}
}

func newCloser() closer {
	return closer{done: make(chan struct{})}
}

func (c *closer) close() {
	c.once.Do(func() { close(c.done) })
}

// AuthorizationView 单个授权请求的终端视图
type AuthorizationView struct {
	console *Console
	closer

	mu   sync.Mutex
	last string
}

// NewAuthorizationView creates the view.
func NewAuthorizationView(console *Console) *AuthorizationView {
	return &AuthorizationView{console: console, closer: newCloser()}
}

// Render implements presenter.View. Countdown-only changes are not reprinted.
func (v *AuthorizationView) Render(state presenter.ViewState) {
	key := state.AuthorizationID + "|" + string(state.Status) + "|" + state.Title
	v.mu.Lock()
	if key == v.last {
		v.mu.Unlock()
		return
	}
	v.last = key
	v.mu.Unlock()

	var b strings.Builder
	b.WriteString("\n")
	if state.ConnectionName != "" {
		b.WriteString("[" + state.ConnectionName + "] ")
	}
	b.WriteString(statusLabel(state))
	if state.CountdownText != "" {
		b.WriteString(" (expires in " + state.CountdownText + ")")
	}
	b.WriteString("\n")
	if state.Title != "" {
		b.WriteString(state.Title + "\n")
	}
	if state.Description != "" {
		b.WriteString(RenderDescription(state.Description, state.DescriptionMode) + "\n")
	}
	if state.ActionsEnabled {
		b.WriteString("[c]onfirm  [d]eny  [q]uit\n")
	}
	v.console.Printf("%s", b.String())
}

// Handle implements presenter.View.
func (v *AuthorizationView) Handle(event presenter.Event) {
	switch event.Kind {
	case presenter.EventCloseView, presenter.EventCloseApp:
		v.close()
	default:
		if text := eventText(event); text != "" {
			v.console.Printf("! %s\n", text)
		}
	}
}

// Done is closed when the controller closes the view.
func (v *AuthorizationView) Done() <-chan struct{} { return v.done }

// ListView 授权请求列表的终端视图
type ListView struct {
	console *Console
	closer

	mu     sync.Mutex
	states []presenter.ViewState
	last   string
}

// NewListView creates the view.
func NewListView(console *Console) *ListView {
	return &ListView{console: console, closer: newCloser()}
}

// RenderList implements presenter.ListView. Countdown-only changes are not reprinted.
func (v *ListView) RenderList(states []presenter.ViewState) {
	keys := make([]string, 0, len(states))
	for _, state := range states {
		keys = append(keys, state.ConnectionID+"/"+state.AuthorizationID+"|"+string(state.Status))
	}
	key := strings.Join(keys, ",")

	v.mu.Lock()
	v.states = append(v.states[:0:0], states...)
	changed := key != v.last
	v.last = key
	v.mu.Unlock()
	if !changed {
		return
	}

	var b strings.Builder
	b.WriteString("\n")
	if len(states) == 0 {
		b.WriteString("No pending authorizations.\n")
	}
	for idx, state := range states {
		line := []string{strconv.Itoa(idx+1) + ".", statusLabel(state)}
		if state.ConnectionName != "" {
			line = append(line, "["+state.ConnectionName+"]")
		}
		if state.Title != "" {
			line = append(line, state.Title)
		}
		if state.CountdownText != "" {
			line = append(line, "("+state.CountdownText+")")
		}
		b.WriteString(strings.Join(line, " ") + "\n")
	}
	if len(states) > 0 {
		b.WriteString("c <n> confirm, d <n> deny, s <n> show, q quit\n")
	}
	v.console.Printf("%s", b.String())
}

// Handle implements presenter.ListView.
func (v *ListView) Handle(event presenter.Event) {
	switch event.Kind {
	case presenter.EventCloseView, presenter.EventCloseApp:
		v.close()
	default:
		if text := eventText(event); text != "" {
			v.console.Printf("! %s\n", text)
		}
	}
}

// Done is closed when the controller closes the view.
func (v *ListView) Done() <-chan struct{} { return v.done }

// State returns the item shown at the 1-based position n.
func (v *ListView) State(n int) (presenter.ViewState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if n < 1 || n > len(v.states) {
		return presenter.ViewState{}, false
	}
	return v.states[n-1], true
}

// ShowDetails prints the full description of the item at position n.
func (v *ListView) ShowDetails(n int) bool {
	state, ok := v.State(n)
	if !ok {
		return false
	}
	v.console.Printf("\n%s\n%s\n", state.Title, RenderDescription(state.Description, state.DescriptionMode))
	return true
}

// MultiListView fans list renders and events out to several views.
type MultiListView []presenter.ListView

// RenderList implements presenter.ListView.
func (m MultiListView) RenderList(states []presenter.ViewState) {
	for _, view := range m {
		view.RenderList(states)
	}
}

// Handle implements presenter.ListView.
func (m MultiListView) Handle(event presenter.Event) {
	for _, view := range m {
		view.Handle(event)
	}
}
