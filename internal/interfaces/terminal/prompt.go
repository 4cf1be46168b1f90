package terminal

import (
	"context"
	"strconv"
	"strings"

	"github.com/turtacn/authenticator/internal/domain/models"
)

// AuthorizationActions are the user intents of the single authorization screen.
type AuthorizationActions interface {
	OnConfirm(ctx context.Context) bool
	OnDeny(ctx context.Context) bool
	OnBack()
}

// ListActions are the user intents of the list screen.
type ListActions interface {
	OnConfirm(ctx context.Context, identity models.Identity) bool
	OnDeny(ctx context.Context, identity models.Identity) bool
	OnBack()
}

// untilClosed derives a context cancelled when done is closed.
func untilClosed(ctx context.Context, done <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// readCommand returns the next command. ok is false once input ended or ctx is done.
func readCommand(ctx context.Context, console *Console) (verb string, arg string, ok bool) {
	line, err := console.ReadLine(ctx)
	if err != nil {
		return "", "", false
	}
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return "", "", true
	}
	verb = fields[0]
	if len(fields) > 1 {
		arg = fields[1]
	}
	return verb, arg, true
}

// RunAuthorizationPrompt reads commands for one authorization until the view closes,
// ctx is done or the user quits.
func RunAuthorizationPrompt(ctx context.Context, console *Console, actions AuthorizationActions, view *AuthorizationView) {
	ctx, cancel := untilClosed(ctx, view.Done())
	defer cancel()

	for {
		verb, _, ok := readCommand(ctx, console)
		if !ok {
			if ctx.Err() == nil {
				actions.OnBack()
			}
			return
		}
		switch verb {
		case "":
		case "c", "confirm":
			if !actions.OnConfirm(ctx) {
				console.Printf("Confirm is not available.\n")
			}
		case "d", "deny":
			if !actions.OnDeny(ctx) {
				console.Printf("Deny is not available.\n")
			}
		case "q", "quit":
			actions.OnBack()
			return
		default:
			console.Printf("Unknown command %q. Use c, d or q.\n", verb)
		}
	}
}

// RunListPrompt reads list commands until the view closes, ctx is done or the user quits.
func RunListPrompt(ctx context.Context, console *Console, actions ListActions, view *ListView) {
	ctx, cancel := untilClosed(ctx, view.Done())
	defer cancel()

	for {
		verb, arg, ok := readCommand(ctx, console)
		if !ok {
			if ctx.Err() == nil {
				actions.OnBack()
			}
			return
		}
		switch verb {
		case "":
			continue
		case "q", "quit":
			actions.OnBack()
			return
		}

		n, err := strconv.Atoi(arg)
		if err != nil {
			console.Printf("Usage: c <n>, d <n>, s <n> or q\n")
			continue
		}
		state, found := view.State(n)
		if !found {
			console.Printf("No authorization at position %d.\n", n)
			continue
		}
		identity := models.Identity{AuthorizationID: state.AuthorizationID, ConnectionID: state.ConnectionID}
		switch verb {
		case "c", "confirm":
			if !actions.OnConfirm(ctx, identity) {
				console.Printf("Confirm is not available for %d.\n", n)
			}
		case "d", "deny":
			if !actions.OnDeny(ctx, identity) {
				console.Printf("Deny is not available for %d.\n", n)
			}
		case "s", "show":
			view.ShowDetails(n)
		default:
			console.Printf("Unknown command %q.\n", verb)
		}
	}
}
