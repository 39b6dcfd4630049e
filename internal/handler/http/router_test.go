package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/AaryaPoriya/QuantumCoders/internal/auth"
	"github.com/AaryaPoriya/QuantumCoders/internal/cart"
	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	"github.com/AaryaPoriya/QuantumCoders/internal/ingest"
	redisrepo "github.com/AaryaPoriya/QuantumCoders/internal/repository/redis"
	"github.com/AaryaPoriya/QuantumCoders/internal/routing"
	"github.com/AaryaPoriya/QuantumCoders/internal/session"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
	"github.com/AaryaPoriya/QuantumCoders/pkg/health"
	"github.com/AaryaPoriya/QuantumCoders/pkg/logger"
)

// --- In-memory collaborators ---

type memorySender struct {
	mu   sync.Mutex
	code string
}

func (s *memorySender) Send(_ context.Context, _, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
	return nil
}

func (s *memorySender) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

type memoryUsers struct {
	mu       sync.Mutex
	byMobile map[string]*domain.UserProfile
}

func (m *memoryUsers) GetByMobile(_ context.Context, mobile string) (*domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byMobile[mobile]
	if !ok {
		return nil, apperrors.NotFound("user", mobile)
	}
	copied := *u
	return &copied, nil
}

func (m *memoryUsers) Create(_ context.Context, u *domain.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *u
	m.byMobile[u.MobileNumber] = &copied
	return nil
}

func (m *memoryUsers) Update(_ context.Context, u *domain.UserProfile) error {
	return m.Create(context.Background(), u)
}

type memoryDevices struct{ devices map[string]*domain.Device }

func (m *memoryDevices) Get(_ context.Context, id string) (*domain.Device, error) {
	d, ok := m.devices[id]
	if !ok {
		return nil, apperrors.DeviceUnauthorized(id)
	}
	return d, nil
}

type memoryCatalog struct{ products map[string]*domain.Product }

func (m *memoryCatalog) GetByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	p, ok := m.products[barcode]
	if !ok {
		return nil, apperrors.NotFound("product", barcode)
	}
	return p, nil
}

type memoryCommandLog struct {
	mu      sync.Mutex
	applied map[string]map[string]int64
}

func (l *memoryCommandLog) Append(_ context.Context, cmd *domain.MutationCommand, version int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.applied == nil {
		l.applied = make(map[string]map[string]int64)
	}
	byCart := l.applied[cmd.CartID]
	if byCart == nil {
		byCart = make(map[string]int64)
		l.applied[cmd.CartID] = byCart
	}
	byCart[string(cmd.Actor)+":"+cmd.IdempotencyKey] = version
	return nil
}

func (l *memoryCommandLog) AppliedVersions(_ context.Context, cartID string) (map[string]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int64, len(l.applied[cartID]))
	for k, v := range l.applied[cartID] {
		out[k] = v
	}
	return out, nil
}

// --- Fixture ---

const (
	testMobile   = "+919876543210"
	testDeviceID = "esp32-07"
	testAPIKey   = "device-secret-key"
	testBarcode  = "8901030865278"
)

type serverFixture struct {
	srv    *httptest.Server
	sender *memorySender
	users  *memoryUsers
}

func newServer(t *testing.T) *serverFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.New("smartcart-test", "error")
	sender := &memorySender{}
	users := &memoryUsers{byMobile: make(map[string]*domain.UserProfile)}

	hash, err := bcrypt.GenerateFromPassword([]byte(testAPIKey), bcrypt.MinCost)
	require.NoError(t, err)
	devices := &memoryDevices{devices: map[string]*domain.Device{
		testDeviceID: {ID: testDeviceID, APIKeyHash: string(hash)},
	}}
	catalog := &memoryCatalog{products: map[string]*domain.Product{
		testBarcode: {ID: "prod-1", Barcode: testBarcode, Name: "Instant Coffee"},
	}}

	authn := session.NewAuthenticator(
		redisrepo.NewSessionRepository(client),
		redisrepo.NewChallengeRepository(client),
		users,
		sender,
		auth.NewJWTManager("test-secret", 24*time.Hour),
		log,
		session.DefaultConfig(),
	)

	machine := cart.NewStateMachine(
		redisrepo.NewCartRepository(client, 24*time.Hour),
		&memoryCommandLog{},
		authn,
		nil,
		log,
		cart.DefaultApplyTimeout,
	)

	ingester := ingest.NewIngester(
		devices,
		redisrepo.NewBindingRepository(client, 24*time.Hour),
		catalog,
		machine,
		log,
	)

	graph, err := routing.NewGraph(
		[]domain.StoreNode{
			{ID: "entrance", Label: "Entrance", X: 0, Y: 0},
			{ID: "aisle-1", Label: "Aisle 1", X: 5, Y: 0, ProductIDs: []string{"prod-1"}},
		},
		[]domain.StoreEdge{{A: "entrance", B: "aisle-1", Cost: 5}},
	)
	require.NoError(t, err)
	planner := routing.NewPlanner(graph, log)

	router := NewRouter(authn, machine, ingester, planner, graph, health.NewHandler(), log)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &serverFixture{srv: srv, sender: sender, users: users}
}

func (f *serverFixture) post(t *testing.T, path, token string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (f *serverFixture) get(t *testing.T, path, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil
	}
	return out
}

// authenticate walks the full OTP flow and returns a bearer token for an
// Active session.
func (f *serverFixture) authenticate(t *testing.T) string {
	t.Helper()
	f.users.byMobile[testMobile] = &domain.UserProfile{
		ID: uuid.NewString(), MobileNumber: testMobile, ProfileComplete: true,
	}

	resp, body := f.post(t, "/api/v1/auth/otp/request", "", map[string]string{"mobile_number": testMobile}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	ref := body["data"].(map[string]any)["challenge_ref"].(string)

	resp, body = f.post(t, "/api/v1/auth/otp/verify", "", map[string]string{
		"challenge_ref": ref,
		"code":          f.sender.lastCode(),
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return body["data"].(map[string]any)["token"].(string)
}

func (f *serverFixture) openCart(t *testing.T, token string) string {
	t.Helper()
	resp, body := f.post(t, "/api/v1/cart/open", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return body["data"].(map[string]any)["id"].(string)
}

// --- Tests ---

func TestAuthFlow_NewUserCompletesProfile(t *testing.T) {
	f := newServer(t)

	resp, body := f.post(t, "/api/v1/auth/otp/request", "", map[string]string{"mobile_number": testMobile}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	ref := body["data"].(map[string]any)["challenge_ref"].(string)

	resp, body = f.post(t, "/api/v1/auth/otp/verify", "", map[string]string{
		"challenge_ref": ref,
		"code":          f.sender.lastCode(),
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["profile_pending"])
	pendingToken := data["token"].(string)

	// Cart access is rejected until the profile is complete.
	resp, _ = f.post(t, "/api/v1/cart/open", pendingToken, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = f.post(t, "/api/v1/auth/profile", pendingToken, map[string]string{
		"name":  "Asha",
		"email": "asha@example.com",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	activeToken := body["data"].(map[string]any)["token"].(string)

	resp, _ = f.post(t, "/api/v1/cart/open", activeToken, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthFlow_InvalidCode(t *testing.T) {
	f := newServer(t)

	resp, body := f.post(t, "/api/v1/auth/otp/request", "", map[string]string{"mobile_number": testMobile}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	ref := body["data"].(map[string]any)["challenge_ref"].(string)

	wrong := "000000"
	if wrong == f.sender.lastCode() {
		wrong = "000001"
	}
	resp, body = f.post(t, "/api/v1/auth/otp/verify", "", map[string]string{
		"challenge_ref": ref,
		"code":          wrong,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_OTP", body["error"].(map[string]any)["code"])
}

func TestCartFlow_CommandsAndCheckout(t *testing.T) {
	f := newServer(t)
	token := f.authenticate(t)
	cartID := f.openCart(t, token)

	resp, body := f.post(t, "/api/v1/cart/commands", token, map[string]any{
		"cart_id":         cartID,
		"product_id":      "prod-1",
		"operation":       "add",
		"quantity":        2,
		"idempotency_key": "k-1",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["version"])
	assert.Equal(t, false, data["duplicate"])

	// Replay returns the same state flagged duplicate.
	resp, body = f.post(t, "/api/v1/cart/commands", token, map[string]any{
		"cart_id":         cartID,
		"product_id":      "prod-1",
		"operation":       "add",
		"quantity":        2,
		"idempotency_key": "k-1",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data = body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["version"])
	assert.Equal(t, true, data["duplicate"])

	resp, body = f.get(t, "/api/v1/cart/"+cartID, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lines := body["data"].(map[string]any)["lines"].(map[string]any)
	assert.Equal(t, float64(2), lines["prod-1"].(map[string]any)["quantity"])

	resp, body = f.post(t, "/api/v1/cart/"+cartID+"/checkout", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "checked_out", body["data"].(map[string]any)["status"])
}

func TestCartFlow_CheckoutEmptyCart(t *testing.T) {
	f := newServer(t)
	token := f.authenticate(t)
	cartID := f.openCart(t, token)

	resp, body := f.post(t, "/api/v1/cart/"+cartID+"/checkout", token, nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "EMPTY_CART", body["error"].(map[string]any)["code"])
}

func TestDeviceFlow_ConnectAndScan(t *testing.T) {
	f := newServer(t)
	token := f.authenticate(t)
	cartID := f.openCart(t, token)

	resp, _ := f.post(t, "/api/v1/cart/"+cartID+"/connect", token, map[string]string{"device_id": testDeviceID}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	deviceHeaders := map[string]string{"X-Device-ID": testDeviceID, "X-Device-Key": testAPIKey}
	resp, _ = f.post(t, "/api/v1/device/scans", "", map[string]any{
		"barcode":    testBarcode,
		"direction":  "in",
		"device_seq": 1,
	}, deviceHeaders)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Redelivery of the same scan is acknowledged without reapplying.
	resp, _ = f.post(t, "/api/v1/device/scans", "", map[string]any{
		"barcode":    testBarcode,
		"direction":  "in",
		"device_seq": 1,
	}, deviceHeaders)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	_, body := f.get(t, "/api/v1/cart/"+cartID, token)
	lines := body["data"].(map[string]any)["lines"].(map[string]any)
	assert.Equal(t, float64(1), lines["prod-1"].(map[string]any)["quantity"])
}

func TestDeviceFlow_BadKeyRejected(t *testing.T) {
	f := newServer(t)

	resp, _ := f.post(t, "/api/v1/device/scans", "", map[string]any{
		"barcode":    testBarcode,
		"direction":  "in",
		"device_seq": 1,
	}, map[string]string{"X-Device-ID": testDeviceID, "X-Device-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouteFlow_PlanForCart(t *testing.T) {
	f := newServer(t)
	token := f.authenticate(t)
	cartID := f.openCart(t, token)

	resp, _ := f.post(t, "/api/v1/cart/commands", token, map[string]any{
		"cart_id":         cartID,
		"product_id":      "prod-1",
		"operation":       "add",
		"idempotency_key": "k-1",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.get(t, fmt.Sprintf("/api/v1/cart/%s/route?current_node=entrance", cartID), token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(5), data["total_cost"])
	stops := data["stops"].([]any)
	last := stops[len(stops)-1].(map[string]any)
	assert.Equal(t, "aisle-1", last["node_id"])
}

func TestUnauthenticatedCartAccess(t *testing.T) {
	f := newServer(t)

	resp, _ := f.post(t, "/api/v1/cart/open", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
