package models

import (
	"fmt"
	"regexp"
	"time"
)

// EncryptedData is the envelope delivered by the provider for one authorization.
// The AES key and IV are RSA encrypted with the connection public key; all binary fields are base64.
// EncryptedData 是提供方为单个授权下发的加密信封。
type EncryptedData struct {
	ID           string `json:"id"`
	ConnectionID string `json:"connection_id"`
	Algorithm    string `json:"algorithm"`
	Key          string `json:"key"`
	IV           string `json:"iv"`
	Data         string `json:"data"`
}

// AuthorizationData is the decrypted payload of an EncryptedData envelope.
// AuthorizationData 是加密信封解密后的授权数据。
type AuthorizationData struct {
	ID                  string     `json:"id"`
	ConnectionID        string     `json:"connection_id"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	CreatedAt           *time.Time `json:"created_at,omitempty"`
	ExpiresAt           time.Time  `json:"expires_at"`
	AuthorizationCode   string     `json:"authorization_code,omitempty"`
	Status              string     `json:"status,omitempty"`
	GeolocationRequired bool       `json:"required_location,omitempty"`
}

// DescriptionMode selects the rendering path of a description.
type DescriptionMode string

const (
	DescriptionModePlain  DescriptionMode = "plain"
	DescriptionModeMarkup DescriptionMode = "markup"
)

var htmlTagPattern = regexp.MustCompile(`<\s*/?\s*[a-zA-Z][a-zA-Z0-9]*(\s[^<>]*)?/?\s*>`)

// DetectDescriptionMode returns markup when the text contains HTML tags.
func DetectDescriptionMode(description string) DescriptionMode {
	if htmlTagPattern.MatchString(description) {
		return DescriptionModeMarkup
	}
	return DescriptionModePlain
}

// Identity is the merge key of an authorization.
type Identity struct {
	AuthorizationID string
	ConnectionID    string
}

func (i Identity) String() string { return i.ConnectionID + "/" + i.AuthorizationID }

// AuthorizationItem is the view-level representation of one authorization.
// It is owned by exactly one interactor; every status write goes through ApplyStatus.
// AuthorizationItem 是单个授权的视图层表示，由一个交互器独占持有。
type AuthorizationItem struct {
	AuthorizationID     string
	ConnectionID        string
	ConnectionName      string
	AuthorizationCode   string
	Title               string
	Description         string
	CreatedAt           time.Time
	ExpiresAt           time.Time
	ValidSeconds        int
	Status              AuthorizationStatus
	DestroyAt           time.Time
	GeolocationRequired bool
}

// NewLoadingItem creates the placeholder shown before the first poll result arrives.
func NewLoadingItem(connectionID, authorizationID string) *AuthorizationItem {
	return &AuthorizationItem{
		AuthorizationID: authorizationID,
		ConnectionID:    connectionID,
		Status:          AuthorizationStatusLoading,
	}
}

// FinalStatus returns the final status reported inside the payload, if any.
func (d *AuthorizationData) FinalStatus() (AuthorizationStatus, bool) {
	status, ok := ParseAuthorizationStatus(d.Status)
	if !ok || !status.IsFinal() {
		return "", false
	}
	return status, true
}

// NewAuthorizationItem builds a pending item from a decrypted payload. A final status reported
// in the payload is applied by the owner through ApplyStatus so that DestroyAt gets set.
func NewAuthorizationItem(data *AuthorizationData, connection *Connection) *AuthorizationItem {
	item := &AuthorizationItem{
		AuthorizationID:   data.ID,
		ConnectionID:      data.ConnectionID,
		AuthorizationCode: data.AuthorizationCode,
		Title:             data.Title,
		Description:       data.Description,
		ExpiresAt:         data.ExpiresAt.UTC(),
		Status:            AuthorizationStatusPending,
	}
	if data.CreatedAt != nil {
		item.CreatedAt = data.CreatedAt.UTC()
		item.ValidSeconds = secondsBetween(item.CreatedAt, item.ExpiresAt)
	}
	item.GeolocationRequired = data.GeolocationRequired
	if connection != nil {
		if item.ConnectionID == "" {
			item.ConnectionID = connection.ID
		}
		item.ConnectionName = connection.Name
		item.GeolocationRequired = item.GeolocationRequired || connection.GeolocationRequired
	}
	return item
}

func secondsBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from) / time.Second)
}

// Identity returns the (authorization, connection) merge key.
func (a *AuthorizationItem) Identity() Identity {
	return Identity{AuthorizationID: a.AuthorizationID, ConnectionID: a.ConnectionID}
}

// IsExpired reports whether now is at or past ExpiresAt.
func (a *AuthorizationItem) IsExpired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

func (a *AuthorizationItem) CanBeAuthorized() bool { return a.Status == AuthorizationStatusPending }

func (a *AuthorizationItem) HasFinalStatus() bool { return a.Status.IsFinal() }

// IsProcessingMode reports an in-flight confirm/deny; poll results must be ignored meanwhile.
func (a *AuthorizationItem) IsProcessingMode() bool { return a.Status.IsProcessing() }

func (a *AuthorizationItem) ShouldBeSetTimeOutMode(now time.Time) bool {
	return a.IsExpired(now) && !a.HasFinalStatus() && a.Status != AuthorizationStatusLoading
}

// IgnoreTimeUpdate freezes the countdown once any non-default state is entered.
func (a *AuthorizationItem) IgnoreTimeUpdate() bool { return a.Status != AuthorizationStatusPending }

func (a *AuthorizationItem) ShouldBeDestroyed(now time.Time) bool {
	return !a.DestroyAt.IsZero() && !now.Before(a.DestroyAt)
}

// RemainedSecondsTillExpire returns the whole seconds left, never negative.
func (a *AuthorizationItem) RemainedSecondsTillExpire(now time.Time) int {
	if !now.Before(a.ExpiresAt) {
		return 0
	}
	return int(a.ExpiresAt.Sub(now) / time.Second)
}

// RemainedTimeString formats the countdown as minutes:seconds.
func (a *AuthorizationItem) RemainedTimeString(now time.Time) string {
	remained := a.RemainedSecondsTillExpire(now)
	return fmt.Sprintf("%d:%02d", remained/60, remained%60)
}

// DescriptionMode returns the rendering path of the description.
func (a *AuthorizationItem) DescriptionMode() DescriptionMode {
	return DetectDescriptionMode(a.Description)
}

// ApplyStatus writes a new status if the transition is allowed. DestroyAt is set once, when
// the first final status is assigned. Returns false when nothing changed.
func (a *AuthorizationItem) ApplyStatus(to AuthorizationStatus, now time.Time, destroyDelay time.Duration) bool {
	if !CanTransition(a.Status, to) {
		return false
	}
	a.Status = to
	if to.IsFinal() && a.DestroyAt.IsZero() {
		a.DestroyAt = now.Add(destroyDelay)
	}
	return true
}

// CopyContentFrom copies the content fields of another item, leaving identity and status alone.
func (a *AuthorizationItem) CopyContentFrom(other *AuthorizationItem) {
	a.Title = other.Title
	a.Description = other.Description
	a.CreatedAt = other.CreatedAt
	a.ExpiresAt = other.ExpiresAt
	a.ValidSeconds = other.ValidSeconds
	a.AuthorizationCode = other.AuthorizationCode
}

// Clone returns a copy that can be handed to observers.
func (a *AuthorizationItem) Clone() *AuthorizationItem {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// Equal is the structural equality used to suppress redundant UI refreshes.
func (a *AuthorizationItem) Equal(other *AuthorizationItem) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.AuthorizationID == other.AuthorizationID &&
		a.ConnectionID == other.ConnectionID &&
		a.ConnectionName == other.ConnectionName &&
		a.AuthorizationCode == other.AuthorizationCode &&
		a.Title == other.Title &&
		a.Description == other.Description &&
		a.CreatedAt.Equal(other.CreatedAt) &&
		a.ExpiresAt.Equal(other.ExpiresAt) &&
		a.ValidSeconds == other.ValidSeconds &&
		a.Status == other.Status &&
		a.DestroyAt.Equal(other.DestroyAt) &&
		a.GeolocationRequired == other.GeolocationRequired
}
