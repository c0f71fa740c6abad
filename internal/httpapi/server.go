// Package httpapi is the JSON HTTP surface of the marketplace.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/fishmart/internal/auth"
	"github.com/safar/fishmart/internal/cache"
	"github.com/safar/fishmart/internal/events"
	"github.com/safar/fishmart/internal/logging"
	"github.com/safar/fishmart/internal/metrics"
	"github.com/safar/fishmart/internal/models"
	"github.com/safar/fishmart/internal/storage"
	"github.com/safar/fishmart/internal/store"
	"go.uber.org/zap"
)

// Store is the persistence the handlers need; *store.Store satisfies it.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, u store.NewUser) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	InitSession(ctx context.Context, userID int64) error
	SaveRefreshToken(ctx context.Context, userID int64, token string) error
	ClearSession(ctx context.Context, userID int64) error
	SessionToken(ctx context.Context, userID int64) (string, error)
	HasActiveSession(ctx context.Context, userID int64) (bool, error)

	AddProduct(ctx context.Context, ownerID int64, role string, in store.NewProduct) (*models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListAvailableProducts(ctx context.Context) ([]models.Product, error)
	UpdateProduct(ctx context.Context, callerID int64, role string, productID int64, patch store.ProductPatch) (*models.Product, error)
	DeleteProduct(ctx context.Context, callerID int64, role string, productID int64) error
	SetProductImage(ctx context.Context, callerID int64, role string, productID int64, url string) (*models.Product, error)

	PlaceOrder(ctx context.Context, userID int64, items []store.CartItem) (*models.Order, error)
	ConfirmOrder(ctx context.Context, callerID int64, role string, orderID int64) (*models.Order, error)
	RejectOrder(ctx context.Context, callerID int64, role string, orderID int64) (*models.Order, error)
	GetOrder(ctx context.Context, callerID int64, role string, orderID int64) (*models.Order, error)
	ListOrdersCursor(ctx context.Context, callerID int64, role string, cursor string, limit int) (*store.CursorPage, error)
}

type Deps struct {
	Store          Store
	Tokens         *auth.Issuer
	Cache          cache.ProductCache
	Events         events.Publisher
	Images         storage.ImageStore
	Metrics        *metrics.Metrics
	Log            *zap.Logger
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

type Server struct {
	store     Store
	tokens    *auth.Issuer
	cache     cache.ProductCache
	events    events.Publisher
	images    storage.ImageStore
	metrics   *metrics.Metrics
	log       *zap.Logger
	maxUpload int64
}

func NewServer(d Deps) *Server {
	s := &Server{
		store:     d.Store,
		tokens:    d.Tokens,
		cache:     d.Cache,
		events:    d.Events,
		images:    d.Images,
		metrics:   d.Metrics,
		log:       d.Log,
		maxUpload: d.MaxUploadBytes,
	}
	if s.cache == nil {
		s.cache = cache.Noop{}
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 2 << 20
	}
	return s
}

func NewRouter(d Deps) http.Handler {
	s := NewServer(d)

	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(s.log))
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	if local, ok := s.images.(*storage.LocalStore); ok {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(local.Root()))))
	}

	requireAuth := auth.Middleware(s.tokens, s.store, s.authError)

	r.Route("/users", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/logout", s.handleLogout)
			r.Get("/profile", s.handleProfile)
		})
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", s.handleListProducts)
		r.Get("/{id}", s.handleGetProduct)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", s.handleAddProduct)
			r.Put("/{id}", s.handleUpdateProduct)
			r.Delete("/{id}", s.handleDeleteProduct)
			r.Post("/{id}/image", s.handleUploadImage)
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/", s.handlePlaceOrder)
		r.Get("/", s.handleListOrders)
		r.Get("/{id}", s.handleGetOrder)
		r.Post("/{id}/confirm", s.handleConfirmOrder)
		r.Post("/{id}/reject", s.handleRejectOrder)
	})

	return r
}

func caller(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

// invalidateProducts drops the cached listing. Failures are logged only;
// the entry expires on its own.
func (s *Server) invalidateProducts(r *http.Request) {
	if err := s.cache.InvalidateAvailable(r.Context()); err != nil {
		s.log.Warn("invalidate product cache", zap.Error(err))
	}
}

func (s *Server) publish(r *http.Request, env events.Envelope, err error) {
	if err == nil {
		err = s.events.Publish(r.Context(), env)
	}
	if err != nil {
		s.log.Warn("publish order event",
			zap.String("event_type", env.EventType),
			zap.String("order_id", env.CorrelationID),
			zap.Error(err),
		)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn("health check", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, envelope{"message": "unhealthy", "database": "down"})
		return
	}
	respondJSON(w, http.StatusOK, envelope{"message": "ok", "database": "up"})
}
