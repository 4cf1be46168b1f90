package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appservice "github.com/turtacn/authenticator/internal/application/service"
	"github.com/turtacn/authenticator/internal/interfaces/presenter"
	"github.com/turtacn/authenticator/internal/interfaces/terminal"
)

func newAuthorizeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "authorize <connection-id> <authorization-id>",
		Short: "Show one authorization and confirm or deny it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runAuthorize(ctx, opts, args[0], args[1])
		},
	}
}

func runAuthorize(ctx context.Context, opts *rootOptions, connectionID, authorizationID string) error {
	app, err := bootstrap(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	console := terminal.NewStdConsole()
	location := terminal.NewStaticLocation(app.cfg.Location)
	gate := terminal.NewPasscodeAuthenticator(console, app.cfg.Passcode, app.log)

	interactor := appservice.NewAuthorizationInteractor(app.dependencies(location), app.timing())
	controller := presenter.NewAuthorizationController(interactor, app.controllerOptions(location, gate))
	view := terminal.NewAuthorizationView(console)
	controller.SetView(view)
	defer controller.Stop()

	if !controller.Start(ctx, connectionID, authorizationID) {
		return fmt.Errorf("connection %s is not usable", connectionID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go controller.Run(runCtx)

	terminal.RunAuthorizationPrompt(runCtx, console, controller, view)
	return nil
}
