package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/AaryaPoriya/QuantumCoders/internal/auth"
	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	"github.com/AaryaPoriya/QuantumCoders/internal/repository"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
)

// Defaults for the challenge and session lifecycle.
const (
	DefaultOTPTTL        = 5 * time.Minute
	DefaultProfileWindow = 10 * time.Minute
	DefaultSessionTTL    = 24 * time.Hour

	otpCodeLength = 6
)

// Config tunes the authenticator's timers and throttles.
type Config struct {
	OTPTTL        time.Duration
	ProfileWindow time.Duration
	SessionTTL    time.Duration

	// OTPRequestRate and OTPRequestBurst throttle requests per mobile number.
	OTPRequestRate  rate.Limit
	OTPRequestBurst int
}

// DefaultConfig returns the standard lifecycle configuration: 5 minute
// challenges, a 10 minute profile window, a 24 hour sliding session TTL, and
// at most 3 OTP requests per number per burst, refilling every 30 seconds.
func DefaultConfig() Config {
	return Config{
		OTPTTL:          DefaultOTPTTL,
		ProfileWindow:   DefaultProfileWindow,
		SessionTTL:      DefaultSessionTTL,
		OTPRequestRate:  rate.Every(30 * time.Second),
		OTPRequestBurst: 3,
	}
}

// VerifyResult is the outcome of a successful OTP verification or profile
// completion.
type VerifyResult struct {
	Token          string
	Session        *domain.Session
	ProfilePending bool
}

// Authenticator owns the session lifecycle: it issues and verifies OTP
// challenges, promotes verified mobile numbers to authenticated sessions, and
// tracks the bounded new-profile window. Session expiry is checked lazily on
// access; there is no background sweep.
type Authenticator struct {
	sessions   repository.SessionRepository
	challenges repository.ChallengeRepository
	users      repository.UserRepository
	sender     OTPSender
	tokens     *auth.JWTManager
	limiter    *otpRateLimiter
	logger     *slog.Logger
	cfg        Config

	now func() time.Time
}

// NewAuthenticator creates the session authenticator.
func NewAuthenticator(
	sessions repository.SessionRepository,
	challenges repository.ChallengeRepository,
	users repository.UserRepository,
	sender OTPSender,
	tokens *auth.JWTManager,
	logger *slog.Logger,
	cfg Config,
) *Authenticator {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = DefaultOTPTTL
	}
	if cfg.ProfileWindow <= 0 {
		cfg.ProfileWindow = DefaultProfileWindow
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.OTPRequestRate <= 0 {
		cfg.OTPRequestRate = rate.Every(30 * time.Second)
	}
	if cfg.OTPRequestBurst <= 0 {
		cfg.OTPRequestBurst = 3
	}
	return &Authenticator{
		sessions:   sessions,
		challenges: challenges,
		users:      users,
		sender:     sender,
		tokens:     tokens,
		limiter:    newOTPRateLimiter(cfg.OTPRequestRate, cfg.OTPRequestBurst),
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// RequestOTP creates a challenge for the mobile number, superseding any prior
// one, and returns an opaque challenge reference. The response is uniform
// whether or not the number is already registered.
func (a *Authenticator) RequestOTP(ctx context.Context, mobileNumber string) (string, error) {
	if !a.limiter.Allow(mobileNumber) {
		return "", apperrors.RateLimited("too many passcode requests, slow down")
	}

	now := a.now().UTC()
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generate otp code: %w", err)
	}

	sess := &domain.Session{
		ID:           uuid.NewString(),
		MobileNumber: mobileNumber,
		State:        domain.SessionOTPPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(a.cfg.OTPTTL),
	}
	challenge := &domain.OTPChallenge{
		Ref:          uuid.NewString(),
		SessionID:    sess.ID,
		MobileNumber: mobileNumber,
		Code:         code,
		ExpiresAt:    now.Add(a.cfg.OTPTTL),
	}
	sess.ChallengeRef = challenge.Ref

	if err := a.sessions.Save(ctx, sess, a.cfg.OTPTTL+time.Minute); err != nil {
		return "", fmt.Errorf("save pending session: %w", err)
	}
	if err := a.challenges.Save(ctx, challenge, a.cfg.OTPTTL); err != nil {
		return "", fmt.Errorf("save challenge: %w", err)
	}

	if err := a.sender.Send(ctx, mobileNumber, code); err != nil {
		// Delivery is best effort: the shopper can re-request, and failing the
		// call would leak gateway health to enumeration probes.
		a.logger.ErrorContext(ctx, "otp delivery failed",
			slog.String("mobile_number", mobileNumber),
			slog.String("error", err.Error()),
		)
	}

	a.logger.InfoContext(ctx, "otp challenge issued", slog.String("challenge_ref", challenge.Ref))
	return challenge.Ref, nil
}

// VerifyOTP checks a code against a challenge. After MaxOTPAttempts failures
// the challenge locks and even the correct code is rejected; the shopper must
// re-request. A number with no profile is promoted to ProfilePending and must
// complete CreateProfile within the profile window.
func (a *Authenticator) VerifyOTP(ctx context.Context, challengeRef, code string) (*VerifyResult, error) {
	now := a.now().UTC()

	challenge, err := a.challenges.Get(ctx, challengeRef)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ExpiredChallenge()
		}
		return nil, err
	}

	activeRef, err := a.challenges.ActiveRef(ctx, challenge.MobileNumber)
	if err != nil || activeRef != challengeRef {
		// A newer request superseded this challenge.
		return nil, apperrors.ExpiredChallenge()
	}

	if challenge.Consumed {
		return nil, apperrors.ChallengeConsumed()
	}
	if challenge.Locked() {
		return nil, apperrors.OTPLocked()
	}
	if challenge.ExpiredAt(now) {
		return nil, apperrors.ExpiredChallenge()
	}

	if code != challenge.Code {
		challenge.Attempts++
		ttl := challenge.ExpiresAt.Sub(now)
		if err := a.challenges.Save(ctx, challenge, ttl); err != nil {
			a.logger.WarnContext(ctx, "failed to record otp attempt", slog.String("error", err.Error()))
		}
		return nil, apperrors.InvalidOTP()
	}

	challenge.Consumed = true
	if err := a.challenges.Save(ctx, challenge, a.cfg.ProfileWindow); err != nil {
		return nil, fmt.Errorf("consume challenge: %w", err)
	}

	sess, err := a.sessions.Get(ctx, challenge.SessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ExpiredChallenge()
		}
		return nil, err
	}

	user, err := a.users.GetByMobile(ctx, challenge.MobileNumber)
	switch {
	case err == nil && user.ProfileComplete:
		sess.State = domain.SessionActive
		sess.UserID = user.ID
	case err == nil || errors.Is(err, apperrors.ErrNotFound):
		sess.State = domain.SessionProfilePending
		sess.ProfileDeadline = now.Add(a.cfg.ProfileWindow)
	default:
		return nil, fmt.Errorf("look up profile: %w", err)
	}

	sess.ChallengeRef = ""
	sess.ExpiresAt = now.Add(a.cfg.SessionTTL)
	if err := a.sessions.Save(ctx, sess, a.cfg.SessionTTL); err != nil {
		return nil, fmt.Errorf("save verified session: %w", err)
	}

	token, err := a.tokens.GenerateToken(sess.ID, sess.MobileNumber, sess.UserID)
	if err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "otp verified",
		slog.String("session_id", sess.ID),
		slog.String("state", string(sess.State)),
	)

	return &VerifyResult{
		Token:          token,
		Session:        sess,
		ProfilePending: sess.State == domain.SessionProfilePending,
	}, nil
}

// CreateProfile completes registration for a session in ProfilePending. Once
// the profile window has elapsed the session reverts to Unverified and the
// call fails with NotPending.
func (a *Authenticator) CreateProfile(ctx context.Context, sessionID, name, email string) (*VerifyResult, error) {
	now := a.now().UTC()

	sess, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthenticated("session not found or expired")
		}
		return nil, err
	}

	if sess.ProfileWindowElapsed(now) {
		sess.State = domain.SessionUnverified
		sess.ProfileDeadline = time.Time{}
		if err := a.sessions.Save(ctx, sess, time.Minute); err != nil {
			a.logger.WarnContext(ctx, "failed to revert lapsed session", slog.String("error", err.Error()))
		}
		return nil, apperrors.NotPending()
	}
	if sess.State != domain.SessionProfilePending {
		return nil, apperrors.NotPending()
	}

	user := &domain.UserProfile{
		ID:              uuid.NewString(),
		MobileNumber:    sess.MobileNumber,
		Name:            name,
		Email:           email,
		ProfileComplete: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.users.Create(ctx, user); err != nil {
		return nil, err
	}

	sess.State = domain.SessionActive
	sess.UserID = user.ID
	sess.ProfileDeadline = time.Time{}
	sess.ExpiresAt = now.Add(a.cfg.SessionTTL)
	if err := a.sessions.Save(ctx, sess, a.cfg.SessionTTL); err != nil {
		return nil, fmt.Errorf("activate session: %w", err)
	}

	token, err := a.tokens.GenerateToken(sess.ID, sess.MobileNumber, sess.UserID)
	if err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "profile created",
		slog.String("session_id", sess.ID),
		slog.String("user_id", user.ID),
	)

	return &VerifyResult{Token: token, Session: sess}, nil
}

// Validate resolves a bearer token to its live session. Expiry is applied
// lazily here: an expired session is deleted on sight.
func (a *Authenticator) Validate(ctx context.Context, token string) (*domain.Session, error) {
	claims, err := a.tokens.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthenticated("invalid session token")
	}

	sess, err := a.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, apperrors.Unauthenticated("session not found or expired")
	}

	now := a.now().UTC()
	if sess.ExpiredAt(now) {
		if err := a.sessions.Delete(ctx, sess.ID); err != nil {
			a.logger.WarnContext(ctx, "failed to delete expired session", slog.String("error", err.Error()))
		}
		return nil, apperrors.Unauthenticated("session expired")
	}

	// Sliding TTL: activity extends the session.
	if sess.State == domain.SessionActive {
		sess.ExpiresAt = now.Add(a.cfg.SessionTTL)
		if err := a.sessions.Touch(ctx, sess.ID, a.cfg.SessionTTL); err != nil {
			a.logger.WarnContext(ctx, "failed to extend session", slog.String("error", err.Error()))
		}
	}

	return sess, nil
}

// Active reports whether a session exists, is in Active state, and has not
// expired. It is the gate the cart engine checks before opening a cart.
func (a *Authenticator) Active(ctx context.Context, sessionID string) error {
	sess, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		return apperrors.Unauthenticated("session not found or expired")
	}
	if sess.ExpiredAt(a.now().UTC()) || sess.State != domain.SessionActive {
		return apperrors.Unauthenticated("session is not active")
	}
	return nil
}

// Logout destroys a session immediately.
func (a *Authenticator) Logout(ctx context.Context, sessionID string) error {
	if err := a.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	a.logger.InfoContext(ctx, "session logged out", slog.String("session_id", sessionID))
	return nil
}

// generateCode returns a uniformly random numeric passcode.
func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpCodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpCodeLength, n), nil
}
