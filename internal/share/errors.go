package share

import "errors"

// Reason names a policy or validation failure. Callers map reasons to their
// own transport responses.
type Reason string

const (
	ReasonCodeRequired               Reason = "CodeRequired"
	ReasonShareNotFound              Reason = "ShareNotFound"
	ReasonShareRevoked               Reason = "ShareRevoked"
	ReasonShareNotYetValid           Reason = "ShareNotYetValid"
	ReasonShareExpired               Reason = "ShareExpired"
	ReasonShareNotAuthorized         Reason = "ShareNotAuthorized"
	ReasonShareIPNotAllowed          Reason = "ShareIpNotAllowed"
	ReasonShareViewQuotaExceeded     Reason = "ShareViewQuotaExceeded"
	ReasonShareDownloadQuotaExceeded Reason = "ShareDownloadQuotaExceeded"
	ReasonPasswordRequired           Reason = "PasswordRequired"
	ReasonPasswordInvalid            Reason = "PasswordInvalid"
	ReasonDownloadNotAllowed         Reason = "DownloadNotAllowed"
	ReasonVersionRequired            Reason = "VersionRequired"
	ReasonDocumentVersionNotFound    Reason = "DocumentVersionNotFound"

	ReasonShareIDRequired       Reason = "ShareIdRequired"
	ReasonInvalidValidityWindow Reason = "InvalidValidityWindow"
	ReasonMaxViewsInvalid       Reason = "MaxViewsInvalid"
	ReasonMaxDownloadsInvalid   Reason = "MaxDownloadsInvalid"
	ReasonPermissionsInvalid    Reason = "PermissionsInvalid"
	ReasonInvalidIPAddress      Reason = "InvalidIpAddress"
	ReasonFileSizeInvalid       Reason = "FileSizeInvalid"
)

var reasonMessages = map[Reason]string{
	ReasonCodeRequired:               "share code is required",
	ReasonShareNotFound:              "share not found",
	ReasonShareRevoked:               "share has been revoked",
	ReasonShareNotYetValid:           "share is not yet valid",
	ReasonShareExpired:               "share has expired",
	ReasonShareNotAuthorized:         "caller is not authorized for this share",
	ReasonShareIPNotAllowed:          "remote address is not allowed for this share",
	ReasonShareViewQuotaExceeded:     "share view quota exceeded",
	ReasonShareDownloadQuotaExceeded: "share download quota exceeded",
	ReasonPasswordRequired:           "share password is required",
	ReasonPasswordInvalid:            "share password is invalid",
	ReasonDownloadNotAllowed:         "share does not permit download",
	ReasonVersionRequired:            "share has no document version",
	ReasonDocumentVersionNotFound:    "document version not found",
	ReasonShareIDRequired:            "share id is required",
	ReasonInvalidValidityWindow:      "valid_to must not be before valid_from",
	ReasonMaxViewsInvalid:            "max views must not be negative",
	ReasonMaxDownloadsInvalid:        "max downloads must not be negative",
	ReasonPermissionsInvalid:         "permissions contain unknown bits",
	ReasonInvalidIPAddress:           "allowed ip entry is not a valid address",
	ReasonFileSizeInvalid:            "file size must not be negative",
}

// Error is a named share failure
type Error struct {
	Reason Reason
}

func (e *Error) Error() string {
	if msg, ok := reasonMessages[e.Reason]; ok {
		return msg
	}
	return "share error: " + string(e.Reason)
}

// Is matches any *Error with the same reason
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

// Common errors
var (
	ErrCodeRequired               = &Error{Reason: ReasonCodeRequired}
	ErrShareNotFound              = &Error{Reason: ReasonShareNotFound}
	ErrShareRevoked               = &Error{Reason: ReasonShareRevoked}
	ErrShareNotYetValid           = &Error{Reason: ReasonShareNotYetValid}
	ErrShareExpired               = &Error{Reason: ReasonShareExpired}
	ErrShareNotAuthorized         = &Error{Reason: ReasonShareNotAuthorized}
	ErrShareIPNotAllowed          = &Error{Reason: ReasonShareIPNotAllowed}
	ErrShareViewQuotaExceeded     = &Error{Reason: ReasonShareViewQuotaExceeded}
	ErrShareDownloadQuotaExceeded = &Error{Reason: ReasonShareDownloadQuotaExceeded}
	ErrPasswordRequired           = &Error{Reason: ReasonPasswordRequired}
	ErrPasswordInvalid            = &Error{Reason: ReasonPasswordInvalid}
	ErrDownloadNotAllowed         = &Error{Reason: ReasonDownloadNotAllowed}
	ErrVersionRequired            = &Error{Reason: ReasonVersionRequired}
	ErrDocumentVersionNotFound    = &Error{Reason: ReasonDocumentVersionNotFound}

	ErrShareIDRequired       = &Error{Reason: ReasonShareIDRequired}
	ErrInvalidValidityWindow = &Error{Reason: ReasonInvalidValidityWindow}
	ErrMaxViewsInvalid       = &Error{Reason: ReasonMaxViewsInvalid}
	ErrMaxDownloadsInvalid   = &Error{Reason: ReasonMaxDownloadsInvalid}
	ErrPermissionsInvalid    = &Error{Reason: ReasonPermissionsInvalid}
	ErrInvalidIPAddress      = &Error{Reason: ReasonInvalidIPAddress}
	ErrFileSizeInvalid       = &Error{Reason: ReasonFileSizeInvalid}
)

// ReasonOf extracts the failure reason from err. Collaborator errors carry no
// reason and report false.
func ReasonOf(err error) (Reason, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason, true
	}
	return "", false
}
