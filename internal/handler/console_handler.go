package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/audit"
	"github.com/andresdev/backstage/internal/backstage"
	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/domain"
	apperrors "github.com/andresdev/backstage/internal/errors"
	"github.com/andresdev/backstage/internal/metrics"
	"github.com/andresdev/backstage/internal/middleware"
	"github.com/andresdev/backstage/internal/service"
)

// Tenant endpoints used when the configuration leaves them empty.
const (
	DefaultActivityPath = "/api/andres/actividad"
	DefaultHealthPath   = "/api/andres/salud"
)

// ConsoleHandler serves the operator console: sessions, chats, the tenant
// directory, the tenant fan-out views and the local activity log.
type ConsoleHandler struct {
	*BaseHandler
	auth         AuthService
	chats        ChatService
	projects     ProjectService
	activity     ActivityService
	tenants      TenantFanOut
	loginLimiter *middleware.LoginRateLimiter
	audit        *audit.Logger
	metrics      *metrics.Metrics
	events       *metrics.EventLogger
	clock        clock.Clock

	cookie       CookieConfig
	activityPath string
	healthPath   string
}

// CookieConfig describes the session cookie set at login.
type CookieConfig struct {
	Name   string
	Secure bool
}

// ConsoleHandlerConfig holds configuration for ConsoleHandler.
type ConsoleHandlerConfig struct {
	Auth         AuthService
	Chats        ChatService
	Projects     ProjectService
	Activity     ActivityService
	Tenants      TenantFanOut
	LoginLimiter *middleware.LoginRateLimiter
	Audit        *audit.Logger
	Metrics      *metrics.Metrics
	Events       *metrics.EventLogger
	Cookie       CookieConfig
	ActivityPath string
	HealthPath   string
	Clock        clock.Clock
	Logger       *zap.Logger
}

// NewConsoleHandler creates a new ConsoleHandler.
func NewConsoleHandler(cfg ConsoleHandlerConfig) *ConsoleHandler {
	if cfg.Auth == nil {
		panic("auth service is required")
	}
	if cfg.ActivityPath == "" {
		cfg.ActivityPath = DefaultActivityPath
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = DefaultHealthPath
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NewLogger(cfg.Logger, nil)
	}
	if cfg.Events == nil {
		cfg.Events = metrics.NewEventLogger(cfg.Logger)
	}
	return &ConsoleHandler{
		BaseHandler:  NewBaseHandler(cfg.Logger),
		auth:         cfg.Auth,
		chats:        cfg.Chats,
		projects:     cfg.Projects,
		activity:     cfg.Activity,
		tenants:      cfg.Tenants,
		loginLimiter: cfg.LoginLimiter,
		audit:        cfg.Audit,
		metrics:      cfg.Metrics,
		events:       cfg.Events,
		clock:        cfg.Clock,
		cookie:       cfg.Cookie,
		activityPath: cfg.ActivityPath,
		healthPath:   cfg.HealthPath,
	}
}

// RegisterRoutes registers the console routes under /backstage.
func (h *ConsoleHandler) RegisterRoutes(r chi.Router, requireOperator func(http.Handler) http.Handler) {
	r.Route("/backstage", func(r chi.Router) {
		r.With(middleware.BodySizeLimiterLogin()).Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(requireOperator)
			r.Use(middleware.BodySizeLimiterJSON())

			r.Post("/logout", h.Logout)
			r.Get("/yo", h.Me)

			r.Get("/chats", h.ListChats)
			r.Get("/chats/{chatID}", h.GetChat)

			r.Get("/proyectos", h.ListProjects)
			r.Post("/proyectos", h.CreateProject)
			r.Get("/proyectos/{projectID}", h.GetProject)
			r.Put("/proyectos/{projectID}", h.UpdateProject)
			r.Post("/proyectos/{projectID}/contactos", h.AddContact)
			r.Delete("/proyectos/{projectID}/contactos/{email}", h.RemoveContact)

			r.Get("/actividad", h.TenantActivity)
			r.Get("/salud", h.TenantHealth)
			r.Get("/bitacora", h.ActivityLog)
		})
	})
}

// Login handles POST /api/backstage/login
func (h *ConsoleHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	ip := middleware.ClientIP(r)
	if h.loginLimiter != nil && !h.loginLimiter.Check(ip, req.Email) {
		if h.metrics != nil {
			h.metrics.RecordAuthRateLimited()
		}
		h.events.RateLimitExceeded(r.Context(), "login", ip)
		h.audit.RateLimitExceeded(r.Context(), actorFrom(r), "login")
		w.Header().Set("Retry-After", "1800")
		h.WriteError(w, r, apperrors.ErrRateLimited)
		return
	}

	session, op, err := h.auth.Login(r.Context(), req.Email, req.Password, service.LoginContext{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	if h.loginLimiter != nil {
		h.loginLimiter.RecordSuccess(ip, req.Email)
	}

	if h.cookie.Name != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     h.cookie.Name,
			Value:    session.Token,
			Path:     "/",
			Expires:  session.ExpiresAt,
			HttpOnly: true,
			Secure:   h.cookie.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	h.WriteJSON(w, r, http.StatusOK, LoginResponse{Token: session.Token, ExpiresAt: session.ExpiresAt, Operador: op})
}

// Logout handles POST /api/backstage/logout
func (h *ConsoleHandler) Logout(w http.ResponseWriter, r *http.Request) {
	op, _ := middleware.OperatorFromContext(r.Context())
	err := h.auth.Logout(r.Context(), middleware.TokenFromContext(r.Context()), op, service.LoginContext{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	if h.cookie.Name != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     h.cookie.Name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.cookie.Secure,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/backstage/yo
func (h *ConsoleHandler) Me(w http.ResponseWriter, r *http.Request) {
	op, ok := middleware.OperatorFromContext(r.Context())
	if !ok {
		h.WriteError(w, r, apperrors.ErrUnauthorized)
		return
	}
	h.WriteJSON(w, r, http.StatusOK, op)
}

// ListChats handles GET /api/backstage/chats
func (h *ConsoleHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	chats, err := h.chats.List(r.Context(), limit, offset)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	if chats == nil {
		chats = []*domain.ChatSummary{}
	}
	h.WriteJSON(w, r, http.StatusOK, ListResponse[*domain.ChatSummary]{Items: chats, Limit: limit, Offset: offset})
}

// GetChat handles GET /api/backstage/chats/{chatID}
func (h *ConsoleHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "chatID")
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	chat, err := h.chats.Get(r.Context(), id)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, r, http.StatusOK, chat)
}

// ListProjects handles GET /api/backstage/proyectos
func (h *ConsoleHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context(), r.URL.Query().Get("activos") == "true")
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	if projects == nil {
		projects = []*domain.Project{}
	}
	h.WriteJSON(w, r, http.StatusOK, ListResponse[*domain.Project]{Items: projects})
}

// CreateProject handles POST /api/backstage/proyectos
func (h *ConsoleHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var in service.ProjectInput
	if err := decodeJSON(r, &in); err != nil {
		h.WriteError(w, r, err)
		return
	}
	p, err := h.projects.Create(r.Context(), in, actorFrom(r))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, r, http.StatusCreated, p)
}

// GetProject handles GET /api/backstage/proyectos/{projectID}
func (h *ConsoleHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "projectID")
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	p, err := h.projects.Get(r.Context(), id)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	contacts, err := h.projects.ListContacts(r.Context(), id)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	if contacts == nil {
		contacts = []*domain.Contact{}
	}
	h.WriteJSON(w, r, http.StatusOK, ProjectDetail{Project: p, Contactos: contacts})
}

// UpdateProject handles PUT /api/backstage/proyectos/{projectID}
func (h *ConsoleHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "projectID")
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	var in service.ProjectInput
	if err := decodeJSON(r, &in); err != nil {
		h.WriteError(w, r, err)
		return
	}
	p, err := h.projects.Update(r.Context(), id, in, actorFrom(r))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, r, http.StatusOK, p)
}

// AddContact handles POST /api/backstage/proyectos/{projectID}/contactos
func (h *ConsoleHandler) AddContact(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "projectID")
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	var req ContactRequest
	if err := decodeJSON(r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}
	c, err := h.projects.AddContact(r.Context(), id, req.Email, req.Nombre, actorFrom(r))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, r, http.StatusCreated, c)
}

// RemoveContact handles DELETE /api/backstage/proyectos/{projectID}/contactos/{email}
func (h *ConsoleHandler) RemoveContact(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "projectID")
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || email == "" {
		h.WriteError(w, r, apperrors.InvalidFormat("email", "an email address"))
		return
	}
	if err := h.projects.RemoveContact(r.Context(), id, email, actorFrom(r)); err != nil {
		h.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TenantActivity handles GET /api/backstage/actividad
func (h *ConsoleHandler) TenantActivity(w http.ResponseWriter, r *http.Request) {
	h.fanOut(w, r, h.activityPath)
}

// TenantHealth handles GET /api/backstage/salud
func (h *ConsoleHandler) TenantHealth(w http.ResponseWriter, r *http.Request) {
	h.fanOut(w, r, h.healthPath)
}

// fanOut queries every active tenant. A failing tenant only marks its own
// entry; the response is 200 as long as the request itself was not cancelled.
func (h *ConsoleHandler) fanOut(w http.ResponseWriter, r *http.Request, path string) {
	projects, err := h.projects.List(r.Context(), true)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	started := h.clock.Now()
	agg, err := h.tenants.FanOut(r.Context(), projects, path, r.URL.Query())
	if err != nil {
		h.WriteError(w, r, apperrors.Wrap(err, "ConsoleHandler.fanOut", apperrors.CodeTimeout, "tenant aggregation cancelled"))
		return
	}
	h.events.TenantFanOut(r.Context(), path, len(agg.Resultados), agg.Failed(), h.clock.Since(started))

	if agg.Resultados == nil {
		agg.Resultados = []backstage.Result{}
	}
	h.WriteJSON(w, r, http.StatusOK, agg)
}

// ActivityLog handles GET /api/backstage/bitacora
func (h *ConsoleHandler) ActivityLog(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	entries, err := h.activity.List(r.Context(), limit, offset)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*domain.ActivityEntry{}
	}
	h.WriteJSON(w, r, http.StatusOK, ListResponse[*domain.ActivityEntry]{Items: entries, Limit: limit, Offset: offset})
}
