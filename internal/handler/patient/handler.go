package patient

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/careslot/booking-api/internal/model"
	"github.com/careslot/booking-api/internal/service/challenge"
	"github.com/careslot/booking-api/internal/service/patient"
	"github.com/careslot/booking-api/pkg/httputil"
)

type Handler struct {
	service *patient.Service
}

func NewHandler(service *patient.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	routes := rg.Group("/patients")
	{
		routes.POST("", h.Create)
		routes.GET("/:id", h.Get)
	}
}

// RegisterPublicRoutes holds the entry-code endpoints, which patients call
// without a staff token.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	routes := rg.Group("/entry-codes")
	{
		routes.POST("/request", h.RequestEntryCode)
		routes.POST("/verify", h.VerifyEntryCode)
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(err.Error()))
		return
	}

	created, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, created)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse("invalid patient ID"))
		return
	}

	got, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, got)
}

type requestCodeRequest struct {
	Phone string `json:"phone" binding:"required,e164"`
}

// RequestEntryCode issues a one-time code. The code itself never appears in
// the response; it travels over the notification channel.
func (h *Handler) RequestEntryCode(c *gin.Context) {
	var req requestCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(err.Error()))
		return
	}

	expiresAt, err := h.service.RequestEntryCode(c.Request.Context(), req.Phone)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"expires_at": expiresAt})
}

type verifyCodeRequest struct {
	Phone string `json:"phone" binding:"required,e164"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

func (h *Handler) VerifyEntryCode(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(err.Error()))
		return
	}

	result, err := h.service.VerifyEntryCode(c.Request.Context(), req.Phone, req.Code)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	switch result.Status {
	case challenge.StatusVerified:
		httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"verified": true})
	case challenge.StatusWrongSecret:
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":             "error",
			"message":            "incorrect code",
			"attempts_remaining": result.Remaining,
		})
	case challenge.StatusLockedOut:
		c.JSON(http.StatusTooManyRequests, gin.H{
			"status":       "error",
			"message":      "too many failed attempts",
			"locked_until": result.LockedUntil,
		})
	default:
		c.JSON(http.StatusGone, httputil.NewErrorResponse("code expired or not issued, request a new one"))
	}
}
