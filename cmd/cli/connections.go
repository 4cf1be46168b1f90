package cli

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/infrastructure/kms"
	"github.com/turtacn/authenticator/pkg/errors"
)

// connectionStore is the part of the connection repository the admin commands use.
type connectionStore interface {
	GetConnection(ctx context.Context, connectionID string) (*models.Connection, error)
	ListConnections(ctx context.Context) ([]*models.Connection, error)
	Save(ctx context.Context, connection *models.Connection) error
	Delete(ctx context.Context, connectionID string) error
}

type addConnectionInput struct {
	ID                  string
	Code                string
	Name                string
	ConnectURL          string
	AccessToken         string
	GeolocationRequired bool
	PrivateKeyFile      string
}

func (in *addConnectionInput) validate() error {
	if in.ID == "" {
		return errors.ErrInvalidRequest("--id is required")
	}
	if in.AccessToken == "" {
		return errors.ErrInvalidRequest("--access-token is required")
	}
	u, err := url.Parse(in.ConnectURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.ErrInvalidRequest("--connect-url must be an absolute http(s) URL")
	}
	return nil
}

func newConnectionsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn"},
		Short:   "Manage the provider connections of this device",
	}

	input := &addConnectionInput{}
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a connection and print its public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()
			publicPEM, err := addConnection(cmd.Context(), app.connections, app.keys, input, time.Now())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(publicPEM)
			return err
		},
	}
	addCmd.Flags().StringVar(&input.ID, "id", "", "provider connection id")
	addCmd.Flags().StringVar(&input.Code, "code", "", "provider code")
	addCmd.Flags().StringVar(&input.Name, "name", "", "provider display name")
	addCmd.Flags().StringVar(&input.ConnectURL, "connect-url", "", "provider API base URL")
	addCmd.Flags().StringVar(&input.AccessToken, "access-token", "", "access token issued by the provider")
	addCmd.Flags().BoolVar(&input.GeolocationRequired, "geolocation-required", false, "require a location before confirm or deny")
	addCmd.Flags().StringVar(&input.PrivateKeyFile, "private-key", "", "import an RSA private key PEM instead of generating one")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()
			return listConnections(cmd.Context(), app.connections, cmd.OutOrStdout())
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <connection-id>",
		Short: "Remove a connection and its private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()
			return removeConnection(cmd.Context(), app.connections, app.keys, args[0])
		},
	}

	publicKeyCmd := &cobra.Command{
		Use:   "public-key <connection-id>",
		Short: "Print the public key of a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()
			key, err := app.keys.GetPrivateKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			publicPEM, err := kms.EncodePublicKeyPEM(key)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(publicPEM)
			return err
		},
	}

	cmd.AddCommand(addCmd, listCmd, removeCmd, publicKeyCmd)
	return cmd
}

// addConnection stores the connection and its key, and returns the public key PEM to hand to the provider.
func addConnection(ctx context.Context, store connectionStore, keys kms.KeyManager, in *addConnectionInput, now time.Time) ([]byte, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var key *rsa.PrivateKey
	var err error
	if in.PrivateKeyFile != "" {
		key, err = readPrivateKey(in.PrivateKeyFile)
		if err == nil {
			err = keys.StorePrivateKey(ctx, in.ID, key)
		}
	} else {
		key, err = kms.GenerateKey(ctx, keys, in.ID)
	}
	if err != nil {
		return nil, err
	}

	connection := &models.Connection{
		ID:                  in.ID,
		Code:                in.Code,
		Name:                in.Name,
		ConnectURL:          in.ConnectURL,
		AccessToken:         in.AccessToken,
		Status:              models.ConnectionStatusActive,
		GeolocationRequired: in.GeolocationRequired,
		CreatedAt:           now.UTC(),
		UpdatedAt:           now.UTC(),
	}
	if existing, getErr := store.GetConnection(ctx, in.ID); getErr == nil {
		connection.CreatedAt = existing.CreatedAt
	}
	if err := store.Save(ctx, connection); err != nil {
		return nil, err
	}
	return kms.EncodePublicKeyPEM(key)
}

func readPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("read private key: %v", err))
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("parse private key: %v", err))
	}
	return key, nil
}

func listConnections(ctx context.Context, store connectionStore, out io.Writer) error {
	connections, err := store.ListConnections(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tGEO\tCONNECT URL")
	for _, c := range connections {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", c.ID, c.Name, c.Status, c.GeolocationRequired, c.ConnectURL)
	}
	return w.Flush()
}

func removeConnection(ctx context.Context, store connectionStore, keys kms.KeyManager, connectionID string) error {
	if _, err := store.GetConnection(ctx, connectionID); err != nil {
		return err
	}
	if err := keys.DeletePrivateKey(ctx, connectionID); err != nil {
		return err
	}
	return store.Delete(ctx, connectionID)
}
