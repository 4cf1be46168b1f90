package terminal

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/turtacn/authenticator/internal/config"
	"github.com/turtacn/authenticator/internal/domain/service"
	"github.com/turtacn/authenticator/pkg/logger"
)

// maxPasscodeAttempts bounds the passcode prompt before it counts as cancelled.
const maxPasscodeAttempts = 3

// PasscodeAuthenticator 终端本地用户验证
// A terminal has no biometric sensor, so the biometric gate always falls back to the passcode.
type PasscodeAuthenticator struct {
	console *Console
	hash    []byte
	log     logger.Logger
}

// NewPasscodeAuthenticator creates the gate. Without a configured hash the passcode prompt
// becomes an explicit yes/no confirmation.
func NewPasscodeAuthenticator(console *Console, cfg config.PasscodeConfig, log logger.Logger) *PasscodeAuthenticator {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &PasscodeAuthenticator{
		console: console,
		hash:    []byte(cfg.Hash),
		log:     log.WithComponent("PasscodeAuthenticator"),
	}
}

// AuthenticateBiometric implements service.UserAuthenticator.
func (a *PasscodeAuthenticator) AuthenticateBiometric(ctx context.Context) service.GateResult {
	return service.GateFallback
}

// AuthenticatePasscode implements service.UserAuthenticator.
func (a *PasscodeAuthenticator) AuthenticatePasscode(ctx context.Context) service.GateResult {
	if len(a.hash) == 0 {
		a.console.Printf("Confirm this authorization? [y/N]: ")
		answer, err := a.console.ReadLine(ctx)
		if err != nil {
			return service.GateCancel
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return service.GateSuccess
		default:
			return service.GateCancel
		}
	}

	for attempt := 1; attempt <= maxPasscodeAttempts; attempt++ {
		passcode, err := a.console.ReadSecret(ctx, "Passcode (empty to cancel): ")
		if err != nil || passcode == "" {
			return service.GateCancel
		}
		if bcrypt.CompareHashAndPassword(a.hash, []byte(passcode)) == nil {
			return service.GateSuccess
		}
		a.log.Warn(ctx, "Wrong passcode", logger.Fields{"attempt": attempt})
		a.console.Printf("Wrong passcode (%d/%d)\n", attempt, maxPasscodeAttempts)
	}
	return service.GateCancel
}

// HashPasscode returns the bcrypt hash to put into passcode.hash.
func HashPasscode(passcode string) (string, error) {
	if passcode == "" {
		return "", fmt.Errorf("passcode must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// StaticLocation reports a configured device location.
type StaticLocation struct {
	cfg config.LocationConfig
}

// NewStaticLocation creates the location collaborator from configuration.
func NewStaticLocation(cfg config.LocationConfig) *StaticLocation {
	return &StaticLocation{cfg: cfg}
}

// LocationPermissionsGranted implements service.LocationProvider.
func (l *StaticLocation) LocationPermissionsGranted() bool { return l.cfg.Enabled }

// IsLocationEnabled implements service.LocationProvider.
func (l *StaticLocation) IsLocationEnabled() bool { return l.cfg.Enabled }

// CurrentLocationDescription implements service.LocationProvider.
func (l *StaticLocation) CurrentLocationDescription() string {
	if !l.cfg.Enabled {
		return ""
	}
	return fmt.Sprintf("GEO:%.6f;%.6f", l.cfg.Latitude, l.cfg.Longitude)
}
