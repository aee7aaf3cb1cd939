package access

import (
	"errors"
	"time"
)

var (
	// ErrInvalidToken marks an unknown or swept verification session reference.
	ErrInvalidToken = errors.New("access: invalid verification token")
	// ErrNotReady marks a completion attempt before the wait threshold.
	ErrNotReady = errors.New("access: verification not ready")
)

// UserQuota tracks per-user free-download usage within the current reset window.
type UserQuota struct {
	FreeUsed       uint       `json:"free_used"`
	FreeResetAt    time.Time  `json:"free_reset_at"`
	TotalDownloads uint       `json:"total_downloads"`
	TokensEarned   uint       `json:"tokens_earned"`
	LastAdWatchAt  *time.Time `json:"last_ad_watch_at,omitempty"`
}

// AccessToken is a temporary unlimited-download grant.
type AccessToken struct {
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerificationSession tracks one in-flight ad-verification attempt.
type VerificationSession struct {
	UserID      int64
	MaterialRef string
	AdID        string
	CreatedAt   time.Time
	AdClickedAt time.Time // zero until the first click
	Completed   bool
}

// Decision enumerates gating outcomes surfaced to the transport layer.
type Decision int

const (
	// Delivered means the download may proceed immediately.
	Delivered Decision = iota
	// UseFreeSlot asks the caller to confirm spending one free download.
	UseFreeSlot
	// ShowAdPrompt requires the user to start ad verification.
	ShowAdPrompt
	// StillWaiting reports the remaining wait after an ad click.
	StillWaiting
	// AdNotClicked means verification was polled before the ad link was opened.
	AdNotClicked
	// VerificationExpired means the session reference is unknown or swept.
	VerificationExpired
)

func (d Decision) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case UseFreeSlot:
		return "use_free_slot"
	case ShowAdPrompt:
		return "show_ad_prompt"
	case StillWaiting:
		return "still_waiting"
	case AdNotClicked:
		return "ad_not_clicked"
	case VerificationExpired:
		return "verification_expired"
	default:
		return "unknown"
	}
}

// Outcome carries a gating decision plus the fields relevant to it.
type Outcome struct {
	Decision    Decision
	MaterialRef string

	// FreeLeft is the number of free slots remaining after this decision.
	FreeLeft uint
	// ViaToken marks a delivery covered by an active access token.
	ViaToken bool
	// SessionToken references the verification session for ad flows.
	SessionToken string
	// RemainingSeconds is the ceiling of seconds left in the wait timer.
	RemainingSeconds int
	// TokenExpiresAt is set when a delivery granted or used an access token.
	TokenExpiresAt time.Time
	// TokenGranted marks the single poll that completed verification and
	// minted the token; re-polls of a finished session leave it false.
	TokenGranted bool
}

// SessionStatus enumerates poll results for a verification session.
type SessionStatus int

const (
	// StatusInvalid means the token is unknown.
	StatusInvalid SessionStatus = iota
	// StatusNotClicked means the ad link has not been opened yet.
	StatusNotClicked
	// StatusWaiting means the wait timer is still running.
	StatusWaiting
	// StatusReady means the wait has elapsed (or completion already happened).
	StatusReady
)

// UserStatus is a read-only snapshot for the status display.
type UserStatus struct {
	FreeUsed       uint
	FreeAllowed    uint
	FreeResetAt    time.Time
	TotalDownloads uint
	TokensEarned   uint
	TokenActive    bool
	TokenExpiresAt time.Time
}
