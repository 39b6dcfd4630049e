package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/AaryaPoriya/QuantumCoders/internal/auth"
	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	redisrepo "github.com/AaryaPoriya/QuantumCoders/internal/repository/redis"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
	"github.com/AaryaPoriya/QuantumCoders/pkg/logger"
)

// --- Test doubles ---

// captureSender records the last code handed to it.
type captureSender struct {
	mu   sync.Mutex
	code string
}

func (s *captureSender) Send(_ context.Context, _, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
	return nil
}

func (s *captureSender) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// memoryUsers is an in-memory UserRepository.
type memoryUsers struct {
	mu       sync.Mutex
	byMobile map[string]*domain.UserProfile
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byMobile: make(map[string]*domain.UserProfile)}
}

func (m *memoryUsers) GetByMobile(_ context.Context, mobileNumber string) (*domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byMobile[mobileNumber]
	if !ok {
		return nil, apperrors.NotFound("user", mobileNumber)
	}
	copied := *u
	return &copied, nil
}

func (m *memoryUsers) Create(_ context.Context, user *domain.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byMobile[user.MobileNumber]; exists {
		return apperrors.Conflict("user already exists")
	}
	copied := *user
	m.byMobile[user.MobileNumber] = &copied
	return nil
}

func (m *memoryUsers) Update(_ context.Context, user *domain.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *user
	m.byMobile[user.MobileNumber] = &copied
	return nil
}

// --- Helpers ---

const testMobile = "+919876543210"

type fixture struct {
	auth   *Authenticator
	sender *captureSender
	users  *memoryUsers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sender := &captureSender{}
	users := newMemoryUsers()
	cfg := DefaultConfig()
	cfg.OTPRequestRate = rate.Inf // most tests are not about throttling

	a := NewAuthenticator(
		redisrepo.NewSessionRepository(client),
		redisrepo.NewChallengeRepository(client),
		users,
		sender,
		auth.NewJWTManager("test-secret", cfg.SessionTTL),
		logger.New("session-test", "error"),
		cfg,
	)
	return &fixture{auth: a, sender: sender, users: users}
}

func (f *fixture) seedActiveUser(t *testing.T) *domain.UserProfile {
	t.Helper()
	u := &domain.UserProfile{
		ID:              uuid.NewString(),
		MobileNumber:    testMobile,
		Name:            "Asha",
		ProfileComplete: true,
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

// --- RequestOTP ---

func TestRequestOTP_IssuesChallenge(t *testing.T) {
	f := newFixture(t)

	ref, err := f.auth.RequestOTP(context.Background(), testMobile)
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
	assert.Len(t, f.sender.lastCode(), otpCodeLength)
}

func TestRequestOTP_RateLimited(t *testing.T) {
	f := newFixture(t)
	f.auth.limiter = newOTPRateLimiter(rate.Every(time.Hour), 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.auth.RequestOTP(ctx, testMobile)
		require.NoError(t, err)
	}

	_, err := f.auth.RequestOTP(ctx, testMobile)
	assert.True(t, errors.Is(err, apperrors.ErrRateLimited))

	// A different number is unaffected.
	_, err = f.auth.RequestOTP(ctx, "+919999999999")
	assert.NoError(t, err)
}

// --- VerifyOTP ---

func TestVerifyOTP_ExistingUserBecomesActive(t *testing.T) {
	f := newFixture(t)
	user := f.seedActiveUser(t)
	ctx := context.Background()

	ref, err := f.auth.RequestOTP(ctx, testMobile)
	require.NoError(t, err)

	res, err := f.auth.VerifyOTP(ctx, ref, f.sender.lastCode())
	require.NoError(t, err)
	assert.False(t, res.ProfilePending)
	assert.Equal(t, domain.SessionActive, res.Session.State)
	assert.Equal(t, user.ID, res.Session.UserID)
	assert.NotEmpty(t, res.Token)
}

func TestVerifyOTP_NewUserBecomesProfilePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref, err := f.auth.RequestOTP(ctx, testMobile)
	require.NoError(t, err)

	res, err := f.auth.VerifyOTP(ctx, ref, f.sender.lastCode())
	require.NoError(t, err)
	assert.True(t, res.ProfilePending)
	assert.Equal(t, domain.SessionProfilePending, res.Session.State)
	assert.False(t, res.Session.ProfileDeadline.IsZero())
}

func TestVerifyOTP_WrongCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref, err := f.auth.RequestOTP(ctx, testMobile)
	require.NoError(t, err)

	_, err = f.auth.VerifyOTP(ctx, ref, "000000")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidOTP))
}

func TestVerifyOTP_LockoutAfterFiveFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref, err := f.auth.RequestOTP(ctx, testMobile)
	require.NoError(t, err)
	correct := f.sender.lastCode()

	wrong := "000000"
	if wrong == correct {
		wrong = "000001"
	}

	for i := 0; i < domain.MaxOTPAttempts; i++ {
		_, err := f.auth.VerifyOTP(ctx, ref, wrong)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidOTP), "attempt %d", i+1)
	}

	// Even the correct code is rejected once locked.
	_, err = f.auth.VerifyOTP(ctx, ref, correct)
	assert.True(t, errors.Is(err, apperrors.ErrOTPLocked))
}

func TestVerifyOTP_ConsumedChallenge(t *testing.T) {
	f := newFixture(t)
	f.seedActiveUser(t)
	ctx := context.Background()

	ref, err := f.auth.RequestOTP(ctx, testMobile)
	require.NoError(t, err)
	code := f.sender.lastCode()

	_, err = f.auth.VerifyOTP(ctx, ref, code)
	require.NoError(t, err)

	_, err = f.auth.VerifyOTP(ctx, ref, code)
	assert.True(t, errors.Is(err, apperrors.ErrChallengeConsumed))
}

func TestVerifyOTP_SupersededChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	firstRef, err := f.auth.RequestOTP(ctx, testMobile)
	require.NoError(t, err)
	firstCode := f.sender.lastCode()

	_, err = f.auth.RequestOTP(ctx, testMobile)
	require.NoError(t, err)

	_, err = f.auth.VerifyOTP(ctx, firstRef, firstCode)
	assert.True(t, errors.Is(err, apperrors.ErrExpiredChallenge))
}

func TestVerifyOTP_ExpiredChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref, err := f.auth.RequestOTP(ctx, testMobile)
	require.NoError(t, err)
	code := f.sender.lastCode()

	f.auth.now = func() time.Time { return time.Now().Add(6 * time.Minute) }

	_, err = f.auth.VerifyOTP(ctx, ref, code)
	assert.True(t, errors.Is(err, apperrors.ErrExpiredChallenge))
}

func TestVerifyOTP_UnknownRef(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.VerifyOTP(context.Background(), "no-such-ref", "123456")
	assert.True(t, errors.Is(err, apperrors.ErrExpiredChallenge))
}

// --- CreateProfile ---

func TestCreateProfile_CompletesRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref, err := f.auth.RequestOTP(ctx, testMobile)
	require.NoError(t, err)
	pending, err := f.auth.VerifyOTP(ctx, ref, f.sender.lastCode())
	require.NoError(t, err)
	require.True(t, pending.ProfilePending)

	res, err := f.auth.CreateProfile(ctx, pending.Session.ID, "Asha", "asha@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, res.Session.State)
	assert.NotEmpty(t, res.Session.UserID)

	saved, err := f.users.GetByMobile(ctx, testMobile)
	require.NoError(t, err)
	assert.True(t, saved.ProfileComplete)
}

func TestCreateProfile_NotPendingFromActive(t *testing.T) {
	f := newFixture(t)
	f.seedActiveUser(t)
	ctx := context.Background()

	ref, err := f.auth.RequestOTP(ctx, testMobile)
	require.NoError(t, err)
	res, err := f.auth.VerifyOTP(ctx, ref, f.sender.lastCode())
	require.NoError(t, err)

	_, err = f.auth.CreateProfile(ctx, res.Session.ID, "Asha", "")
	assert.True(t, errors.Is(err, apperrors.ErrNotPending))
}

func TestCreateProfile_WindowElapsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref, err := f.auth.RequestOTP(ctx, testMobile)
	require.NoError(t, err)
	pending, err := f.auth.VerifyOTP(ctx, ref, f.sender.lastCode())
	require.NoError(t, err)

	f.auth.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	_, err = f.auth.CreateProfile(ctx, pending.Session.ID, "Asha", "")
	assert.True(t, errors.Is(err, apperrors.ErrNotPending))
}

// --- Validate / Active / Logout ---

func TestValidate_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.seedActiveUser(t)
	ctx := context.Background()

	ref, err := f.auth.RequestOTP(ctx, testMobile)
	require.NoError(t, err)
	res, err := f.auth.VerifyOTP(ctx, ref, f.sender.lastCode())
	require.NoError(t, err)

	sess, err := f.auth.Validate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Session.ID, sess.ID)

	assert.NoError(t, f.auth.Active(ctx, sess.ID))
}

func TestValidate_AfterLogout(t *testing.T) {
	f := newFixture(t)
	f.seedActiveUser(t)
	ctx := context.Background()

	ref, err := f.auth.RequestOTP(ctx, testMobile)
	require.NoError(t, err)
	res, err := f.auth.VerifyOTP(ctx, ref, f.sender.lastCode())
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, res.Session.ID))

	_, err = f.auth.Validate(ctx, res.Token)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthenticated))
}

func TestActive_PendingSessionRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref, err := f.auth.RequestOTP(ctx, testMobile)
	require.NoError(t, err)
	pending, err := f.auth.VerifyOTP(ctx, ref, f.sender.lastCode())
	require.NoError(t, err)

	err = f.auth.Active(ctx, pending.Session.ID)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthenticated))
}
