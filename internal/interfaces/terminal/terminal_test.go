package terminal

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/turtacn/authenticator/internal/config"
	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/domain/service"
	"github.com/turtacn/authenticator/internal/interfaces/presenter"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes of views.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestConsole(input string) (*Console, *syncBuffer) {
	out := &syncBuffer{}
	return NewConsole(strings.NewReader(input), out), out
}

func TestConsole_ReadLine(t *testing.T) {
	console, _ := newTestConsole("first\r\nsecond")
	ctx := context.Background()

	line, err := console.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", line)

	line, err = console.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", line)

	_, err = console.ReadLine(ctx)
	assert.Error(t, err)
}

func TestConsole_ReadLineCancelled(t *testing.T) {
	console := NewConsole(blockingReader{}, &syncBuffer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := console.ReadLine(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type blockingReader struct{}

func (blockingReader) Read(p []byte) (int, error) {
	select {}
}

func hashFor(t *testing.T, passcode string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestPasscodeAuthenticator(t *testing.T) {
	hash := hashFor(t, "1234")
	tests := []struct {
		name   string
		hash   string
		input  string
		result service.GateResult
	}{
		{"correct passcode", hash, "1234\n", service.GateSuccess},
		{"second attempt", hash, "0000\n1234\n", service.GateSuccess},
		{"three wrong attempts", hash, "1\n2\n3\n1234\n", service.GateCancel},
		{"empty cancels", hash, "\n", service.GateCancel},
		{"closed input", hash, "", service.GateCancel},
		{"confirmation without hash", "", "yes\n", service.GateSuccess},
		{"declined without hash", "", "n\n", service.GateCancel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			console, _ := newTestConsole(tt.input)
			gate := NewPasscodeAuthenticator(console, config.PasscodeConfig{Hash: tt.hash}, nil)

			assert.Equal(t, service.GateFallback, gate.AuthenticateBiometric(context.Background()))
			assert.Equal(t, tt.result, gate.AuthenticatePasscode(context.Background()))
		})
	}
}

func TestHashPasscode(t *testing.T) {
	hash, err := HashPasscode("2468")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("2468")))

	_, err = HashPasscode("")
	assert.Error(t, err)
}

func TestStaticLocation(t *testing.T) {
	disabled := NewStaticLocation(config.LocationConfig{})
	assert.False(t, disabled.LocationPermissionsGranted())
	assert.Empty(t, disabled.CurrentLocationDescription())

	enabled := NewStaticLocation(config.LocationConfig{Enabled: true, Latitude: 52.506931, Longitude: 13.144558})
	assert.True(t, enabled.LocationPermissionsGranted())
	assert.True(t, enabled.IsLocationEnabled())
	assert.Equal(t, "GEO:52.506931;13.144558", enabled.CurrentLocationDescription())
}

func TestRenderDescription(t *testing.T) {
	assert.Equal(t, "Pay 10 EUR", RenderDescription("Pay 10 EUR", models.DescriptionModePlain))

	text := RenderDescription("<p>Pay <b>10 EUR</b></p>", models.DescriptionModeMarkup)
	assert.Contains(t, text, "10 EUR")
	assert.NotContains(t, text, "<b>")
}

func pendingState(id string) presenter.ViewState {
	return presenter.ViewState{
		AuthorizationID: id,
		ConnectionID:    "c1",
		ConnectionName:  "Demo Bank",
		Status:          models.AuthorizationStatusPending,
		Title:           "Payment " + id,
		CountdownText:   "1:00",
		ActionsEnabled:  true,
	}
}

func TestAuthorizationView_SkipsCountdownOnlyRenders(t *testing.T) {
	console, out := newTestConsole("")
	view := NewAuthorizationView(console)

	state := pendingState("a1")
	view.Render(state)
	state.CountdownText = "0:59"
	view.Render(state)

	assert.Equal(t, 1, strings.Count(out.String(), "Payment a1"))
	assert.Contains(t, out.String(), "[c]onfirm")

	state.Status = models.AuthorizationStatusConfirmed
	state.StatusTitleKey = "authorization.confirmed"
	state.ActionsEnabled = false
	view.Render(state)
	assert.Contains(t, out.String(), "Confirmed")
}

func TestAuthorizationView_Events(t *testing.T) {
	console, out := newTestConsole("")
	view := NewAuthorizationView(console)

	view.Handle(presenter.Event{Kind: presenter.EventErrorMessage, Message: "Request failed"})
	view.Handle(presenter.Event{Kind: presenter.EventRequestLocationPermission})
	assert.Contains(t, out.String(), "! Request failed")
	assert.Contains(t, out.String(), "Location permission")

	view.Handle(presenter.Event{Kind: presenter.EventCloseView})
	view.Handle(presenter.Event{Kind: presenter.EventCloseApp})
	select {
	case <-view.Done():
	default:
		t.Fatal("view was not closed")
	}
}

func TestListView(t *testing.T) {
	console, out := newTestConsole("")
	view := NewListView(console)

	view.RenderList(nil)
	assert.Contains(t, out.String(), "No pending authorizations.")

	view.RenderList([]presenter.ViewState{pendingState("a1"), pendingState("a2")})
	view.RenderList([]presenter.ViewState{pendingState("a1"), pendingState("a2")})
	assert.Equal(t, 1, strings.Count(out.String(), "2. Pending [Demo Bank] Payment a2"))

	state, ok := view.State(2)
	require.True(t, ok)
	assert.Equal(t, "a2", state.AuthorizationID)
	_, ok = view.State(3)
	assert.False(t, ok)
	assert.True(t, view.ShowDetails(1))
}

type recordingListView struct {
	states [][]presenter.ViewState
	events []presenter.Event
}

func (r *recordingListView) RenderList(states []presenter.ViewState) {
	r.states = append(r.states, states)
}

func (r *recordingListView) Handle(event presenter.Event) { r.events = append(r.events, event) }

func TestMultiListView(t *testing.T) {
	first, second := &recordingListView{}, &recordingListView{}
	multi := MultiListView{first, second}

	multi.RenderList([]presenter.ViewState{pendingState("a1")})
	multi.Handle(presenter.Event{Kind: presenter.EventCloseView})

	for _, view := range []*recordingListView{first, second} {
		assert.Len(t, view.states, 1)
		assert.Len(t, view.events, 1)
	}
}

type mockAuthorizationActions struct{ mock.Mock }

func (m *mockAuthorizationActions) OnConfirm(ctx context.Context) bool { return m.Called().Bool(0) }
func (m *mockAuthorizationActions) OnDeny(ctx context.Context) bool    { return m.Called().Bool(0) }
func (m *mockAuthorizationActions) OnBack()                            { m.Called() }

func TestRunAuthorizationPrompt(t *testing.T) {
	console, out := newTestConsole("\nx\nc\nd\nq\n")
	actions := &mockAuthorizationActions{}
	actions.On("OnConfirm").Return(true).Once()
	actions.On("OnDeny").Return(false).Once()
	actions.On("OnBack").Once()

	RunAuthorizationPrompt(context.Background(), console, actions, NewAuthorizationView(console))

	actions.AssertExpectations(t)
	assert.Contains(t, out.String(), `Unknown command "x"`)
	assert.Contains(t, out.String(), "Deny is not available.")
}

func TestRunAuthorizationPrompt_EndOfInputGoesBack(t *testing.T) {
	console, _ := newTestConsole("")
	actions := &mockAuthorizationActions{}
	actions.On("OnBack").Once()

	RunAuthorizationPrompt(context.Background(), console, actions, NewAuthorizationView(console))
	actions.AssertExpectations(t)
}

func TestRunAuthorizationPrompt_StopsWhenViewCloses(t *testing.T) {
	console := NewConsole(blockingReader{}, &syncBuffer{})
	view := NewAuthorizationView(console)
	actions := &mockAuthorizationActions{}

	done := make(chan struct{})
	go func() {
		RunAuthorizationPrompt(context.Background(), console, actions, view)
		close(done)
	}()
	view.Handle(presenter.Event{Kind: presenter.EventCloseView})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("prompt did not stop")
	}
	actions.AssertNotCalled(t, "OnBack")
}

type mockListActions struct{ mock.Mock }

func (m *mockListActions) OnConfirm(ctx context.Context, identity models.Identity) bool {
	return m.Called(identity).Bool(0)
}

func (m *mockListActions) OnDeny(ctx context.Context, identity models.Identity) bool {
	return m.Called(identity).Bool(0)
}

func (m *mockListActions) OnBack() { m.Called() }

func TestRunListPrompt(t *testing.T) {
	console, out := newTestConsole("c 2\nd 1\nc 9\nc\ns 1\nquit\n")
	view := NewListView(console)
	view.RenderList([]presenter.ViewState{pendingState("a1"), pendingState("a2")})

	actions := &mockListActions{}
	actions.On("OnConfirm", models.Identity{AuthorizationID: "a2", ConnectionID: "c1"}).Return(true).Once()
	actions.On("OnDeny", models.Identity{AuthorizationID: "a1", ConnectionID: "c1"}).Return(true).Once()
	actions.On("OnBack").Once()

	RunListPrompt(context.Background(), console, actions, view)

	actions.AssertExpectations(t)
	assert.Contains(t, out.String(), "No authorization at position 9.")
	assert.Contains(t, out.String(), "Usage:")
}
