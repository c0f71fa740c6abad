package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/safar/fishmart/internal/auth"
	"github.com/safar/fishmart/internal/config"
	"github.com/safar/fishmart/internal/events"
	"github.com/safar/fishmart/internal/metrics"
	"github.com/safar/fishmart/internal/models"
	"github.com/safar/fishmart/internal/storage"
	"github.com/safar/fishmart/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errNotStubbed = errors.New("not stubbed")

// fakeStore answers each call with the matching function field, or
// errNotStubbed when the test left it nil. Sessions are always active
// unless hasSession is set.
type fakeStore struct {
	ping             func(ctx context.Context) error
	createUser       func(ctx context.Context, u store.NewUser) (*models.User, error)
	getUserByEmail   func(ctx context.Context, email string) (*models.User, error)
	saveRefreshToken func(ctx context.Context, userID int64, token string) error
	clearSession     func(ctx context.Context, userID int64) error
	sessionToken     func(ctx context.Context, userID int64) (string, error)
	hasSession       func(ctx context.Context, userID int64) (bool, error)

	addProduct    func(ctx context.Context, ownerID int64, role string, in store.NewProduct) (*models.Product, error)
	getProduct    func(ctx context.Context, id int64) (*models.Product, error)
	listProducts  func(ctx context.Context) ([]models.Product, error)
	updateProduct func(ctx context.Context, callerID int64, role string, productID int64, patch store.ProductPatch) (*models.Product, error)
	deleteProduct func(ctx context.Context, callerID int64, role string, productID int64) error
	setImage      func(ctx context.Context, callerID int64, role string, productID int64, url string) (*models.Product, error)

	placeOrder   func(ctx context.Context, userID int64, items []store.CartItem) (*models.Order, error)
	confirmOrder func(ctx context.Context, callerID int64, role string, orderID int64) (*models.Order, error)
	rejectOrder  func(ctx context.Context, callerID int64, role string, orderID int64) (*models.Order, error)
	getOrder     func(ctx context.Context, callerID int64, role string, orderID int64) (*models.Order, error)
	listOrders   func(ctx context.Context, callerID int64, role string, cursor string, limit int) (*store.CursorPage, error)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.ping == nil {
		return nil
	}
	return f.ping(ctx)
}

func (f *fakeStore) CreateUser(ctx context.Context, u store.NewUser) (*models.User, error) {
	if f.createUser == nil {
		return nil, errNotStubbed
	}
	return f.createUser(ctx, u)
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.getUserByEmail == nil {
		return nil, errNotStubbed
	}
	return f.getUserByEmail(ctx, email)
}

func (f *fakeStore) InitSession(context.Context, int64) error {
	return nil
}

func (f *fakeStore) SaveRefreshToken(ctx context.Context, userID int64, token string) error {
	if f.saveRefreshToken == nil {
		return nil
	}
	return f.saveRefreshToken(ctx, userID, token)
}

func (f *fakeStore) ClearSession(ctx context.Context, userID int64) error {
	if f.clearSession == nil {
		return nil
	}
	return f.clearSession(ctx, userID)
}

func (f *fakeStore) SessionToken(ctx context.Context, userID int64) (string, error) {
	if f.sessionToken == nil {
		return "", errNotStubbed
	}
	return f.sessionToken(ctx, userID)
}

func (f *fakeStore) HasActiveSession(ctx context.Context, userID int64) (bool, error) {
	if f.hasSession == nil {
		return true, nil
	}
	return f.hasSession(ctx, userID)
}

func (f *fakeStore) AddProduct(ctx context.Context, ownerID int64, role string, in store.NewProduct) (*models.Product, error) {
	if f.addProduct == nil {
		return nil, errNotStubbed
	}
	return f.addProduct(ctx, ownerID, role, in)
}

func (f *fakeStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	if f.getProduct == nil {
		return nil, errNotStubbed
	}
	return f.getProduct(ctx, id)
}

func (f *fakeStore) ListAvailableProducts(ctx context.Context) ([]models.Product, error) {
	if f.listProducts == nil {
		return nil, errNotStubbed
	}
	return f.listProducts(ctx)
}

func (f *fakeStore) UpdateProduct(ctx context.Context, callerID int64, role string, productID int64, patch store.ProductPatch) (*models.Product, error) {
	if f.updateProduct == nil {
		return nil, errNotStubbed
	}
	return f.updateProduct(ctx, callerID, role, productID, patch)
}

func (f *fakeStore) DeleteProduct(ctx context.Context, callerID int64, role string, productID int64) error {
	if f.deleteProduct == nil {
		return errNotStubbed
	}
	return f.deleteProduct(ctx, callerID, role, productID)
}

func (f *fakeStore) SetProductImage(ctx context.Context, callerID int64, role string, productID int64, url string) (*models.Product, error) {
	if f.setImage == nil {
		return nil, errNotStubbed
	}
	return f.setImage(ctx, callerID, role, productID, url)
}

func (f *fakeStore) PlaceOrder(ctx context.Context, userID int64, items []store.CartItem) (*models.Order, error) {
	if f.placeOrder == nil {
		return nil, errNotStubbed
	}
	return f.placeOrder(ctx, userID, items)
}

func (f *fakeStore) ConfirmOrder(ctx context.Context, callerID int64, role string, orderID int64) (*models.Order, error) {
	if f.confirmOrder == nil {
		return nil, errNotStubbed
	}
	return f.confirmOrder(ctx, callerID, role, orderID)
}

func (f *fakeStore) RejectOrder(ctx context.Context, callerID int64, role string, orderID int64) (*models.Order, error) {
	if f.rejectOrder == nil {
		return nil, errNotStubbed
	}
	return f.rejectOrder(ctx, callerID, role, orderID)
}

func (f *fakeStore) GetOrder(ctx context.Context, callerID int64, role string, orderID int64) (*models.Order, error) {
	if f.getOrder == nil {
		return nil, errNotStubbed
	}
	return f.getOrder(ctx, callerID, role, orderID)
}

func (f *fakeStore) ListOrdersCursor(ctx context.Context, callerID int64, role string, cursor string, limit int) (*store.CursorPage, error) {
	if f.listOrders == nil {
		return nil, errNotStubbed
	}
	return f.listOrders(ctx, callerID, role, cursor, limit)
}

type memCache struct {
	mu          sync.Mutex
	products    []models.Product
	filled      bool
	invalidated int
}

func (c *memCache) GetAvailable(context.Context) ([]models.Product, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.products, c.filled, nil
}

func (c *memCache) SetAvailable(_ context.Context, products []models.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products, c.filled = products, true
	return nil
}

func (c *memCache) InvalidateAvailable(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products, c.filled = nil, false
	c.invalidated++
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []events.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, env)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sent))
	for i, env := range p.sent {
		out[i] = env.EventType
	}
	return out
}

type harness struct {
	t       *testing.T
	store   *fakeStore
	cache   *memCache
	events  *recordingPublisher
	metrics *metrics.Metrics
	images  *storage.LocalStore
	tokens  *auth.Issuer
	handler http.Handler
}

func newHarness(t *testing.T, fs *fakeStore) *harness {
	t.Helper()

	h := &harness{
		t:       t,
		store:   fs,
		cache:   &memCache{},
		events:  &recordingPublisher{},
		metrics: metrics.New(),
		images:  storage.NewLocalStore(t.TempDir(), "http://localhost:8080/uploads"),
		tokens: auth.NewIssuer(config.AuthConfig{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
		}),
	}
	h.handler = NewRouter(Deps{
		Store:          fs,
		Tokens:         h.tokens,
		Cache:          h.cache,
		Events:         h.events,
		Images:         h.images,
		Metrics:        h.metrics,
		Log:            zap.NewNop(),
		MaxUploadBytes: 1 << 20,
	})
	return h
}

func (h *harness) tokenFor(userID int64, role string) string {
	h.t.Helper()
	pair, err := h.tokens.Issue(userID, role)
	require.NoError(h.t, err)
	return pair.AccessToken
}

// do sends body as JSON unless it is already an io.Reader. token may be empty.
func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
