package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/securepremium/securepremium/internal/identity"
	"github.com/securepremium/securepremium/internal/insurance/model"
	"github.com/securepremium/securepremium/internal/insurance/service"
	"github.com/securepremium/securepremium/internal/reputation"
)

// NetworkHandler handles reputation network routes: participants,
// threat reports, and reputation queries.
type NetworkHandler struct {
	svc    *service.Service
	tokens *identity.TokenIssuer // nil = open mode, no token enforcement
	logger *zap.Logger
}

// NewNetworkHandler creates a new NetworkHandler. tokens may be nil to
// disable participant auth on report submission.
func NewNetworkHandler(svc *service.Service, tokens *identity.TokenIssuer, logger *zap.Logger) *NetworkHandler {
	return &NetworkHandler{svc: svc, tokens: tokens, logger: logger}
}

// requireParticipant returns the token middleware when auth is
// configured, or a no-op middleware for open mode.
func (h *NetworkHandler) requireParticipant() gin.HandlerFunc {
	if h.tokens == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return identity.RequireParticipantToken(h.tokens)
}

// Register registers network routes on the given router group.
func (h *NetworkHandler) Register(rg *gin.RouterGroup) {
	participants := rg.Group("/participants")
	{
		participants.POST("", h.RegisterParticipant)
		participants.GET("", h.ListParticipants)
	}

	threats := rg.Group("/threats")
	{
		threats.POST("", h.requireParticipant(), h.SubmitThreatReport)
		threats.GET("/device/:device_id", h.DeviceThreatReports)
		threats.GET("/unverified", h.UnverifiedReports)
		threats.POST("/:report_id/verify", h.VerifyReport)
	}

	rg.GET("/reputation/:device_id", h.DeviceReputation)
	rg.GET("/stats", h.Stats)
}

// RegisterParticipant handles POST /participants.
func (h *NetworkHandler) RegisterParticipant(c *gin.Context) {
	var req model.RegisterParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reg, err := h.svc.RegisterParticipant(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrParticipantExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("register participant", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "participant registration failed"})
		return
	}

	c.JSON(http.StatusCreated, reg)
}

// ListParticipants handles GET /participants.
func (h *NetworkHandler) ListParticipants(c *gin.Context) {
	participants, err := h.svc.ListParticipants(c.Request.Context())
	if err != nil {
		h.logger.Error("list participants", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list participants"})
		return
	}
	if participants == nil {
		participants = []*model.Participant{}
	}

	c.JSON(http.StatusOK, gin.H{"participants": participants, "count": len(participants)})
}

// SubmitThreatReport handles POST /threats. The reporter identity comes
// from the verified token when auth is enabled, otherwise from the
// request body.
func (h *NetworkHandler) SubmitThreatReport(c *gin.Context) {
	var req model.ThreatReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reporterID := req.ReporterID
	if claims := identity.ParticipantClaimsFromCtx(c); claims != nil {
		reporterID = claims.ParticipantID
	}
	if reporterID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reporter_id is required"})
		return
	}

	report, err := h.svc.SubmitThreatReport(c.Request.Context(), reporterID, &req)
	if err != nil {
		if errors.Is(err, reputation.ErrNotParticipant) {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("submit threat report",
			zap.String("participant_id", reporterID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report submission failed"})
		return
	}

	RecordThreatReport(req.Severity)
	c.JSON(http.StatusCreated, gin.H{"report": report})
}

// DeviceThreatReports handles GET /threats/device/:device_id — stored
// reports plus the live intelligence summary.
func (h *NetworkHandler) DeviceThreatReports(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	deviceID := c.Param("device_id")
	reports, err := h.svc.DeviceThreatReports(c.Request.Context(), deviceID, limit)
	if err != nil {
		h.logger.Error("device threat reports", zap.String("device_id", deviceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reports"})
		return
	}
	if reports == nil {
		reports = []*model.ThreatReportRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"device_id": deviceID,
		"reports":   reports,
		"count":     len(reports),
		"summary":   h.svc.ThreatSummary(deviceID),
	})
}

// UnverifiedReports handles GET /threats/unverified.
func (h *NetworkHandler) UnverifiedReports(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	reports, err := h.svc.UnverifiedReports(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("unverified reports", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reports"})
		return
	}
	if reports == nil {
		reports = []*model.ThreatReportRecord{}
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports, "count": len(reports)})
}

// verifyRequest is the optional payload for POST
// /threats/:report_id/verify. An empty body uses the default verifier
// count.
type verifyRequest struct {
	VerifierCount int `json:"verifier_count"`
}

// VerifyReport handles POST /threats/:report_id/verify.
func (h *NetworkHandler) VerifyReport(c *gin.Context) {
	req := verifyRequest{VerifierCount: 2}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	reportID := c.Param("report_id")
	if err := h.svc.VerifyReport(c.Request.Context(), reportID, req.VerifierCount); err != nil {
		if errors.Is(err, service.ErrReportNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		h.logger.Error("verify report", zap.String("report_id", reportID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"report_id": reportID, "verified": true})
}

// DeviceReputation handles GET /reputation/:device_id.
func (h *NetworkHandler) DeviceReputation(c *gin.Context) {
	deviceID := c.Param("device_id")
	record := h.svc.DeviceReputation(deviceID)

	resp := gin.H{
		"device_id":  deviceID,
		"risk_level": h.svc.DeviceRiskLevel(deviceID),
	}
	if record != nil {
		resp["reputation"] = record
	}

	c.JSON(http.StatusOK, resp)
}

// Stats handles GET /stats.
func (h *NetworkHandler) Stats(c *gin.Context) {
	stats, err := h.svc.PlatformStats(c.Request.Context())
	if err != nil {
		h.logger.Error("platform stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load statistics"})
		return
	}

	for level, count := range stats.DevicesByRiskLevel {
		SetDevicesGauge(level, float64(count))
	}
	c.JSON(http.StatusOK, stats)
}
