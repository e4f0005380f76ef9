package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/ruleta-labs/spintrack/internal/auth"
	"github.com/ruleta-labs/spintrack/internal/roulette"
	"github.com/ruleta-labs/spintrack/internal/storage"
	"go.uber.org/zap"
)

const (
	userIDContextKey = "spintrack_user_id"
	dateLayout       = "2006-01-02"
)

var (
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingAuthService    = errors.New("auth service dependency required")
	errMissingResultsService = errors.New("results service dependency required")
	errMissingResultStore    = errors.New("result store dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates session tokens for signed-in users.
type TokenManager interface {
	IssueToken(ctx context.Context, user auth.UserHandle) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies carries everything the HTTP surface needs.
type Dependencies struct {
	AuthService  *auth.Service
	TokenManager TokenManager
	Results      *roulette.Service
	Store        roulette.Store
	PageSize     int
	AllowOrigins []string
	Clock        func() time.Time
	Logger       *zap.Logger
}

// NewHTTPHandler assembles the gin router serving the public API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.AuthService == nil {
		return nil, errMissingAuthService
	}
	if deps.Results == nil {
		return nil, errMissingResultsService
	}
	if deps.Store == nil {
		return nil, errMissingResultStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	allowOrigins := deps.AllowOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}

	registerNumberValidation()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		authService: deps.AuthService,
		tokens:      deps.TokenManager,
		results:     deps.Results,
		store:       deps.Store,
		pageSize:    pageSize,
		clock:       clock,
		logger:      logger,
	}

	router.GET("/health", handler.handleHealth)
	router.POST("/auth/guest", handler.handleGuestSignIn)
	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/logout", handler.handleLogout)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/results", handler.handleSubmitResult)
	protected.PATCH("/results/:id", handler.handleEditResult)
	protected.GET("/results", handler.handleListResults)
	protected.GET("/results/stats", handler.handleStats)
	protected.GET("/results/stream", handler.handleStream)

	return router, nil
}

// registerNumberValidation teaches the binding engine the playable token set,
// so payload validation rejects off-wheel numbers before the service runs.
func registerNumberValidation() {
	engine, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = engine.RegisterValidation("roulettenumber", func(fl validator.FieldLevel) bool {
		return roulette.IsValid(fl.Field().String())
	})
}

type httpHandler struct {
	authService *auth.Service
	tokens      TokenManager
	results     *roulette.Service
	store       roulette.Store
	pageSize    int
	clock       func() time.Time
	logger      *zap.Logger
}

type credentialsPayload struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name"`
}

type loginPayload struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type sessionResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
	Guest       bool   `json:"guest"`
}

func (h *httpHandler) handleGuestSignIn(c *gin.Context) {
	user, err := h.authService.SignInGuest(c.Request.Context())
	if err != nil {
		h.logger.Error("guest sign-in failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign_in_failed"})
		return
	}
	h.respondWithSession(c, user)
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	user, err := h.authService.Register(c.Request.Context(), request.Email, request.Password, request.DisplayName)
	if errors.Is(err, auth.ErrEmailTaken) {
		c.JSON(http.StatusConflict, gin.H{"error": "email_taken"})
		return
	}
	if err != nil {
		h.logger.Error("registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		return
	}
	h.respondWithSession(c, user)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	user, err := h.authService.SignInWithCredentials(c.Request.Context(), request.Email, request.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		return
	}
	if err != nil {
		h.logger.Error("credential sign-in failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign_in_failed"})
		return
	}
	h.respondWithSession(c, user)
}

// handleLogout exists for client symmetry. Sessions are stateless JWTs, so the
// server has nothing to revoke; clients drop the token.
func (h *httpHandler) handleLogout(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) respondWithSession(c *gin.Context, user auth.UserHandle) {
	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(http.StatusOK, sessionResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		UserID:      user.UserID,
		Guest:       user.Guest,
	})
}

type submitResultPayload struct {
	Number string `json:"number" binding:"required,roulettenumber"`
	Date   string `json:"date"`
}

type editResultPayload struct {
	Number string `json:"number" binding:"required,roulettenumber"`
}

func (h *httpHandler) handleSubmitResult(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request submitResultPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	viewDate := h.clock()
	if request.Date != "" {
		parsed, err := time.Parse(dateLayout, request.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
			return
		}
		viewDate = parsed
	}

	result, err := h.results.Submit(c.Request.Context(), userID, request.Number, viewDate)
	if err != nil {
		h.respondResultError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *httpHandler) handleEditResult(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	var request editResultPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	sector, err := h.results.EditNumber(c.Request.Context(), id, request.Number)
	if err != nil {
		h.respondResultError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":     id,
		"number": request.Number,
		"sector": sector,
	})
}

type listResponsePayload struct {
	Results       []roulette.Result `json:"results"`
	Page          int               `json:"page"`
	PageSize      int               `json:"page_size"`
	TotalPages    int               `json:"total_pages"`
	TotalResults  int               `json:"total_results"`
	CanGoNext     bool              `json:"can_go_next"`
	CanGoPrevious bool              `json:"can_go_previous"`
}

func (h *httpHandler) handleListResults(c *gin.Context) {
	scope, ok := h.parseScope(c)
	if !ok {
		return
	}

	results, err := h.results.Fetch(c.Request.Context(), scope)
	if err != nil {
		h.respondResultError(c, err)
		return
	}

	// Display order is newest first; spin ranks stay ascending by timestamp.
	ordered := make([]roulette.Result, len(results))
	for i, result := range results {
		ordered[len(results)-1-i] = result
	}

	pageSize := h.pageSize
	if raw := c.Query("page_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_page_size"})
			return
		}
		pageSize = parsed
	}
	page := 1
	if raw := c.Query("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_page"})
			return
		}
		page = parsed
	}

	totalPages := roulette.TotalPages(ordered, pageSize)
	pageSlice := roulette.Paginate(ordered, pageSize, page)
	if pageSlice == nil {
		pageSlice = []roulette.Result{}
	}

	c.JSON(http.StatusOK, listResponsePayload{
		Results:       pageSlice,
		Page:          page,
		PageSize:      pageSize,
		TotalPages:    totalPages,
		TotalResults:  len(ordered),
		CanGoNext:     page < totalPages,
		CanGoPrevious: page > 1,
	})
}

type statsResponsePayload struct {
	Statistics       roulette.Statistics `json:"statistics"`
	ConsecutiveSpins []int               `json:"consecutive_spins"`
}

func (h *httpHandler) handleStats(c *gin.Context) {
	scope, ok := h.parseScope(c)
	if !ok {
		return
	}

	results, err := h.results.Fetch(c.Request.Context(), scope)
	if err != nil {
		h.respondResultError(c, err)
		return
	}

	spins := make([]int, 0, len(results))
	for spin := range roulette.ConsecutiveSpins(results) {
		spins = append(spins, spin)
	}
	sort.Ints(spins)

	c.JSON(http.StatusOK, statsResponsePayload{
		Statistics:       roulette.Aggregate(results),
		ConsecutiveSpins: spins,
	})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if err := h.store.Probe(c.Request.Context()); err != nil {
		kind := roulette.KindOf(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  roulette.UserMessage(kind),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseScope reads the scope query parameters: date=YYYY-MM-DD selects a
// single day, start+end an inclusive range, neither the current day.
func (h *httpHandler) parseScope(c *gin.Context) (roulette.Scope, bool) {
	dateParam := c.Query("date")
	startParam := c.Query("start")
	endParam := c.Query("end")

	if dateParam != "" {
		if startParam != "" || endParam != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_scope"})
			return roulette.Scope{}, false
		}
		date, err := time.Parse(dateLayout, dateParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
			return roulette.Scope{}, false
		}
		return roulette.SingleDate(date), true
	}

	if startParam != "" || endParam != "" {
		start, startErr := time.Parse(dateLayout, startParam)
		end, endErr := time.Parse(dateLayout, endParam)
		if startErr != nil || endErr != nil || end.Before(start) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_range"})
			return roulette.Scope{}, false
		}
		return roulette.DateRange(start, end), true
	}

	return roulette.SingleDate(h.clock()), true
}

func (h *httpHandler) respondResultError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, roulette.ErrInvalidNumber):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_number"})
	case errors.Is(err, roulette.ErrOutOfWindow):
		c.JSON(http.StatusBadRequest, gin.H{"error": "out_of_window"})
	case errors.Is(err, roulette.ErrDailyLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "daily_limit_exceeded"})
	case errors.Is(err, storage.ErrResultNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "result_not_found"})
	default:
		kind := roulette.KindOf(err)
		h.logger.Error("result operation failed",
			zap.String("kind", string(kind)), zap.Error(err))
		c.JSON(statusForKind(kind), gin.H{"error": roulette.UserMessage(kind)})
	}
}

func statusForKind(kind roulette.FailureKind) int {
	switch kind {
	case roulette.FailureUnauthenticated:
		return http.StatusUnauthorized
	case roulette.FailurePermissionDenied:
		return http.StatusForbidden
	case roulette.FailureUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// authorizeRequest accepts a Bearer header or, for EventSource clients that
// cannot set headers, an access_token query parameter.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := ""
	header := c.GetHeader("Authorization")
	switch {
	case strings.HasPrefix(header, "Bearer "):
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	default:
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}
