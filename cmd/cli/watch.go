package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	appservice "github.com/turtacn/authenticator/internal/application/service"
	"github.com/turtacn/authenticator/internal/infrastructure/consumers"
	statushttp "github.com/turtacn/authenticator/internal/interfaces/http"
	"github.com/turtacn/authenticator/internal/interfaces/http/handlers"
	"github.com/turtacn/authenticator/internal/interfaces/presenter"
	"github.com/turtacn/authenticator/internal/interfaces/terminal"
)

type watchOptions struct {
	serve bool
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	watchOpts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "List the pending authorizations of all connections and answer them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, opts, watchOpts)
		},
	}
	cmd.Flags().BoolVar(&watchOpts.serve, "serve", false, "serve the status API even when server.enabled is false")
	return cmd
}

func runWatch(ctx context.Context, opts *rootOptions, watchOpts *watchOptions) error {
	app, err := bootstrap(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()
	app.watchConfig(ctx)

	console := terminal.NewStdConsole()
	location := terminal.NewStaticLocation(app.cfg.Location)
	gate := terminal.NewPasscodeAuthenticator(console, app.cfg.Passcode, app.log)

	interactor := appservice.NewAuthorizationsListInteractor(app.dependencies(location), app.timing())
	controller := presenter.NewAuthorizationsListController(interactor, app.controllerOptions(location, gate))
	view := terminal.NewListView(console)
	snapshot := handlers.NewAuthorizationsHandler()
	controller.SetView(terminal.MultiListView{view, snapshot})
	defer controller.Stop()

	if !controller.Start(ctx) {
		return fmt.Errorf("no usable connections; add one with 'authenticator connections add'")
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		controller.Run(runCtx)
		return nil
	})

	if app.cfg.Server.Enabled || watchOpts.serve {
		router := statushttp.NewRouter(&app.cfg.Server, app.log, statushttp.Dependencies{
			Health:         handlers.NewHealthHandler(app.healthChecks(), app.log),
			Authorizations: snapshot,
			Gatherer:       app.registry,
			Tracing:        app.tracing,
		})
		g.Go(func() error { return router.Start(runCtx) })
	}

	if len(app.cfg.Kafka.Brokers) > 0 && app.cfg.Kafka.RevocationTopic != "" {
		consumer := consumers.NewRevocationConsumer(app.cfg.Kafka, app.connections, app.audit, app.log)
		g.Go(func() error {
			defer consumer.Close()
			consumer.Run(runCtx)
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		terminal.RunListPrompt(runCtx, console, controller, view)
		return nil
	})

	if err := g.Wait(); err != nil {
		app.log.Error(context.Background(), "Watch stopped", err)
		return err
	}
	app.log.Info(context.Background(), "Watch stopped")
	return nil
}
