package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/securepremium/securepremium/internal/insurance/model"
	"github.com/securepremium/securepremium/internal/insurance/repository"
	"github.com/securepremium/securepremium/internal/insurance/service"
	"github.com/securepremium/securepremium/internal/pricing"
)

// QuoteHandler handles premium quoting and fleet estimation routes.
type QuoteHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(svc *service.Service, logger *zap.Logger) *QuoteHandler {
	return &QuoteHandler{svc: svc, logger: logger}
}

// Register registers quote routes on the given router group.
func (h *QuoteHandler) Register(rg *gin.RouterGroup) {
	quotes := rg.Group("/quotes")
	{
		quotes.POST("", h.GenerateQuote)
		quotes.GET("/:device_id", h.QuoteHistory)
		quotes.POST("/volume", h.VolumeQuote)
		quotes.POST("/policy-cost", h.PolicyCost)
	}

	rg.POST("/estimates", h.EstimateAnnualCost)
	rg.GET("/tiers", h.CoverageTiers)
}

// GenerateQuote handles POST /quotes.
func (h *QuoteHandler) GenerateQuote(c *gin.Context) {
	var req model.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quote, cached, err := h.svc.GenerateQuote(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		case errors.Is(err, service.ErrNoAssessment):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "device must be assessed before quoting"})
		case errors.Is(err, pricing.ErrUnknownTier):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("generate quote", zap.String("device_id", req.DeviceID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "quote generation failed"})
		}
		return
	}
	if cached != nil {
		tier := req.CoverageLevel
		if tier == "" {
			tier = "standard"
		}
		RecordQuote(tier, "cache")
		c.Data(http.StatusOK, "application/json", cached)
		return
	}

	RecordQuote(quote.CoverageLevel, "fresh")
	c.JSON(http.StatusCreated, quote)
}

// VolumeQuote handles POST /quotes/volume — prices a fleet of identical
// devices with volume discounts applied.
func (h *QuoteHandler) VolumeQuote(c *gin.Context) {
	var req model.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DeviceCount < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_count must be at least 2"})
		return
	}

	quote, _, err := h.svc.GenerateQuote(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		case errors.Is(err, service.ErrNoAssessment):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "device must be assessed before quoting"})
		case errors.Is(err, pricing.ErrUnknownTier):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("volume quote", zap.String("device_id", req.DeviceID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "quote generation failed"})
		}
		return
	}

	RecordQuote(quote.CoverageLevel, "fresh")
	c.JSON(http.StatusCreated, quote)
}

// QuoteHistory handles GET /quotes/:device_id — returns the active
// policy and prior premium records.
func (h *QuoteHandler) QuoteHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	if limit <= 0 || limit > 200 {
		limit = 30
	}

	deviceID := c.Param("device_id")
	history, err := h.svc.QuoteHistory(c.Request.Context(), deviceID, limit)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		h.logger.Error("quote history", zap.String("device_id", deviceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load quote history"})
		return
	}
	if history == nil {
		history = []*model.PremiumRecord{}
	}

	resp := gin.H{"device_id": deviceID, "premiums": history, "count": len(history)}
	if active, err := h.svc.ActivePolicy(c.Request.Context(), deviceID); err == nil {
		resp["active_policy"] = active
	}

	c.JSON(http.StatusOK, resp)
}

// EstimateAnnualCost handles POST /estimates.
func (h *QuoteHandler) EstimateAnnualCost(c *gin.Context) {
	var req model.EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	estimate, err := h.svc.EstimateAnnualCost(&req)
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidDistribution) || errors.Is(err, pricing.ErrUnknownTier) || errors.Is(err, pricing.ErrInvalidDeviceCount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("estimate annual cost", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "estimation failed"})
		return
	}

	c.JSON(http.StatusOK, estimate)
}

// policyCostRequest is the payload for POST /quotes/policy-cost.
type policyCostRequest struct {
	MonthlyPremium   float64 `json:"monthly_premium" binding:"required"`
	PolicyMonths     int     `json:"policy_months"`
	IncludesDiscount bool    `json:"includes_discount"`
	BulkDeviceCount  int     `json:"bulk_device_count"`
}

// PolicyCost handles POST /quotes/policy-cost — annualizes a monthly
// premium with term and bulk adjustments.
func (h *QuoteHandler) PolicyCost(c *gin.Context) {
	var req policyCostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.PolicyMonths <= 0 {
		req.PolicyMonths = 12
	}

	cost := h.svc.PolicyCost(req.MonthlyPremium, req.PolicyMonths, req.IncludesDiscount, req.BulkDeviceCount)
	c.JSON(http.StatusOK, cost)
}

// CoverageTiers handles GET /tiers.
func (h *QuoteHandler) CoverageTiers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tiers": h.svc.CoverageTiers()})
}
