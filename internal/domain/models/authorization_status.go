// Package models defines the domain models.
package models

// AuthorizationStatus represents the lifecycle status of an authorization as seen by the user.
// AuthorizationStatus 表示用户看到的授权请求的生命周期状态。
type AuthorizationStatus string

const (
	// AuthorizationStatusLoading indicates that no data has been received yet.
	// AuthorizationStatusLoading 表示尚未收到任何数据。
	AuthorizationStatusLoading AuthorizationStatus = "loading"
	// AuthorizationStatusPending indicates that the user may confirm or deny.
	// AuthorizationStatusPending 表示用户可以确认或拒绝。
	AuthorizationStatusPending AuthorizationStatus = "pending"
	// AuthorizationStatusConfirmProcessing indicates that a confirm request is in flight.
	// AuthorizationStatusConfirmProcessing 表示确认请求正在处理中。
	AuthorizationStatusConfirmProcessing AuthorizationStatus = "confirm_processing"
	// AuthorizationStatusDenyProcessing indicates that a deny request is in flight.
	// AuthorizationStatusDenyProcessing 表示拒绝请求正在处理中。
	AuthorizationStatusDenyProcessing AuthorizationStatus = "deny_processing"
	// AuthorizationStatusConfirmed indicates that the provider accepted the confirmation.
	// AuthorizationStatusConfirmed 表示提供方已接受确认。
	AuthorizationStatusConfirmed AuthorizationStatus = "confirmed"
	// AuthorizationStatusDenied indicates that the provider accepted the denial.
	// AuthorizationStatusDenied 表示提供方已接受拒绝。
	AuthorizationStatusDenied AuthorizationStatus = "denied"
	// AuthorizationStatusError indicates an unrecoverable failure.
	// AuthorizationStatusError 表示不可恢复的错误。
	AuthorizationStatusError AuthorizationStatus = "error"
	// AuthorizationStatusTimeOut indicates that the approval window elapsed.
	// AuthorizationStatusTimeOut 表示审批窗口已过期。
	AuthorizationStatusTimeOut AuthorizationStatus = "time_out"
	// AuthorizationStatusUnavailable indicates that the authorization cannot be shown.
	// AuthorizationStatusUnavailable 表示授权请求不可用。
	AuthorizationStatusUnavailable AuthorizationStatus = "unavailable"
)

// statusCapabilities describes what a status means for the lifecycle and for display.
type statusCapabilities struct {
	final      bool
	processing bool
	titleKey   string
	imageKey   string
}

// statusTable is the only place where status behaviour is defined.
var statusTable = map[AuthorizationStatus]statusCapabilities{
	AuthorizationStatusLoading:           {titleKey: "authorization.loading", imageKey: ""},
	AuthorizationStatusPending:           {titleKey: "", imageKey: ""},
	AuthorizationStatusConfirmProcessing: {processing: true, titleKey: "authorization.confirm_processing", imageKey: ""},
	AuthorizationStatusDenyProcessing:    {processing: true, titleKey: "authorization.deny_processing", imageKey: ""},
	AuthorizationStatusConfirmed:         {final: true, titleKey: "authorization.confirmed", imageKey: "ic_status_success"},
	AuthorizationStatusDenied:            {final: true, titleKey: "authorization.denied", imageKey: "ic_status_denied"},
	AuthorizationStatusError:             {final: true, titleKey: "authorization.error", imageKey: "ic_status_error"},
	AuthorizationStatusTimeOut:           {final: true, titleKey: "authorization.time_out", imageKey: "ic_status_timeout"},
	AuthorizationStatusUnavailable:       {final: true, titleKey: "authorization.unavailable", imageKey: "ic_status_unavailable"},
}

// payloadStatusAliases maps provider-reported statuses onto local ones.
var payloadStatusAliases = map[string]AuthorizationStatus{
	"confirm_processed": AuthorizationStatusConfirmed,
	"deny_processed":    AuthorizationStatusDenied,
	"closed":            AuthorizationStatusUnavailable,
}

// IsValid reports whether the status is known.
func (s AuthorizationStatus) IsValid() bool {
	_, ok := statusTable[s]
	return ok
}

// IsFinal reports whether no further automatic transition may occur.
func (s AuthorizationStatus) IsFinal() bool { return statusTable[s].final }

// IsProcessing reports whether a confirm/deny request is in flight.
func (s AuthorizationStatus) IsProcessing() bool { return statusTable[s].processing }

// TitleKey is the string resource key of the status caption.
func (s AuthorizationStatus) TitleKey() string { return statusTable[s].titleKey }

// ImageKey is the image resource key of the status illustration.
func (s AuthorizationStatus) ImageKey() string { return statusTable[s].imageKey }

// ParseAuthorizationStatus converts a provider-reported status. Unknown values return false.
func ParseAuthorizationStatus(value string) (AuthorizationStatus, bool) {
	if alias, ok := payloadStatusAliases[value]; ok {
		return alias, true
	}
	status := AuthorizationStatus(value)
	return status, status.IsValid()
}

// CanTransition reports whether a status write from -> to is allowed.
// A final status may only be corrected to another final status; nothing goes back to loading.
func CanTransition(from, to AuthorizationStatus) bool {
	if from == to || !to.IsValid() {
		return false
	}
	if to == AuthorizationStatusLoading {
		return false
	}
	if from.IsFinal() {
		return to.IsFinal()
	}
	return true
}
