package domain

import "time"

// SessionState is the lifecycle state of a shopper session.
type SessionState string

const (
	SessionUnverified     SessionState = "unverified"
	SessionOTPPending     SessionState = "otp_pending"
	SessionVerified       SessionState = "verified"
	SessionProfilePending SessionState = "profile_pending"
	SessionActive         SessionState = "active"
	SessionExpired        SessionState = "expired"
)

// Session represents one shopper's authentication session. The lifecycle is
// Unverified -> OTPPending -> Verified -> {Active | ProfilePending -> Active}
// -> Expired. Expired is terminal and reachable from any state via TTL elapse
// or logout.
type Session struct {
	ID           string       `json:"id"`
	MobileNumber string       `json:"mobile_number"`
	State        SessionState `json:"state"`
	ChallengeRef string       `json:"challenge_ref,omitempty"`
	UserID       string       `json:"user_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
	// ProfileDeadline bounds the window a new shopper has to complete their
	// profile after OTP verification. Zero for existing shoppers.
	ProfileDeadline time.Time `json:"profile_deadline,omitempty"`
}

// ExpiredAt reports whether the session has passed its expiry at the given
// instant. Expiry is checked lazily on access, there is no background sweep.
func (s *Session) ExpiredAt(now time.Time) bool {
	return s.State == SessionExpired || now.After(s.ExpiresAt)
}

// ProfileWindowElapsed reports whether a pending profile window has closed.
func (s *Session) ProfileWindowElapsed(now time.Time) bool {
	return s.State == SessionProfilePending && !s.ProfileDeadline.IsZero() && now.After(s.ProfileDeadline)
}

// OTPChallenge is a one-time passcode challenge bound to a mobile number.
// Only one challenge per mobile number is live at a time; a new request
// supersedes the previous one.
type OTPChallenge struct {
	Ref          string    `json:"ref"`
	SessionID    string    `json:"session_id"`
	MobileNumber string    `json:"mobile_number"`
	Code         string    `json:"code"`
	ExpiresAt    time.Time `json:"expires_at"`
	Attempts     int       `json:"attempts"`
	Consumed     bool      `json:"consumed"`
}

// MaxOTPAttempts is the number of failed verifications after which a
// challenge is locked and must be re-requested.
const MaxOTPAttempts = 5

// Locked reports whether the challenge has exhausted its attempts.
func (c *OTPChallenge) Locked() bool {
	return c.Attempts >= MaxOTPAttempts
}

// ExpiredAt reports whether the challenge has passed its TTL.
func (c *OTPChallenge) ExpiredAt(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// UserProfile is the minimal shopper profile owned by this core. Full account
// CRUD lives with the external user collaborator.
type UserProfile struct {
	ID              string    `json:"id"`
	MobileNumber    string    `json:"mobile_number"`
	Name            string    `json:"name,omitempty"`
	Email           string    `json:"email,omitempty"`
	ProfileComplete bool      `json:"profile_complete"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
