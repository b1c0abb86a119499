// Package handler exposes the insurance platform over HTTP.
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
)

// DeviceHandler handles device registration, scoring, and risk
// assessment routes.
type DeviceHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(svc *service.Service, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{svc: svc, logger: logger}
}

// Register registers device and assessment routes on the given router
// group.
func (h *DeviceHandler) Register(rg *gin.RouterGroup) {
	devices := rg.Group("/devices")
	{
		devices.POST("", h.RegisterDevice)
		devices.GET("", h.ListDevices)
		devices.GET("/:device_id", h.GetDevice)
		devices.GET("/:device_id/score", h.GetDeviceScore)
		devices.POST("/:device_id/events", h.AddSecurityEvent)
		devices.POST("/:device_id/locations", h.RecordLocation)
	}

	rg.POST("/assessments", h.Assess)
	rg.GET("/assessments/:device_id", h.AssessmentHistory)
}

// RegisterDevice handles POST /devices.
func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	device, err := h.svc.RegisterDevice(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrDeviceExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("register device", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "device registration failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"device": device})
}

// ListDevices handles GET /devices. Optional ?risk_level= filters by
// stored risk classification.
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	devices, err := h.svc.ListDevices(c.Request.Context(), c.Query("risk_level"), limit, offset)
	if err != nil {
		h.logger.Error("list devices", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list devices"})
		return
	}
	if devices == nil {
		devices = []*model.Device{}
	}

	c.JSON(http.StatusOK, gin.H{"devices": devices, "count": len(devices)})
}

// GetDevice handles GET /devices/:device_id.
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	device, err := h.svc.GetDevice(c.Request.Context(), c.Param("device_id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		h.logger.Error("get device", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load device"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"device": device})
}

// GetDeviceScore handles GET /devices/:device_id/score.
func (h *DeviceHandler) GetDeviceScore(c *gin.Context) {
	deviceID := c.Param("device_id")

	score, breakdown, category, err := h.svc.DeviceScore(c.Request.Context(), deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		h.logger.Error("device score", zap.String("device_id", deviceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to score device"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_id": deviceID,
		"score":     score,
		"category":  category,
		"breakdown": breakdown,
	})
}

// AddSecurityEvent handles POST /devices/:device_id/events.
func (h *DeviceHandler) AddSecurityEvent(c *gin.Context) {
	var req model.SecurityEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deviceID := c.Param("device_id")
	if err := h.svc.AddSecurityEvent(c.Request.Context(), deviceID, &req); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		h.logger.Error("add security event", zap.String("device_id", deviceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record event"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"device_id": deviceID, "recorded": true})
}

// RecordLocation handles POST /devices/:device_id/locations.
func (h *DeviceHandler) RecordLocation(c *gin.Context) {
	var req model.LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deviceID := c.Param("device_id")
	if err := h.svc.RecordLocation(c.Request.Context(), deviceID, &req); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		h.logger.Error("record location", zap.String("device_id", deviceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record location"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"device_id": deviceID, "recorded": true})
}

// Assess handles POST /assessments — runs a risk assessment from
// submitted telemetry.
func (h *DeviceHandler) Assess(c *gin.Context) {
	var req model.AssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assessment, category, err := h.svc.Assess(c.Request.Context(), &req, nil)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		h.logger.Error("assess device", zap.String("device_id", req.DeviceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "assessment failed"})
		return
	}

	RecordAssessment(string(category))
	c.JSON(http.StatusCreated, gin.H{"assessment": assessment, "risk_level": category})
}

// AssessmentHistory handles GET /assessments/:device_id.
func (h *DeviceHandler) AssessmentHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	if limit <= 0 || limit > 200 {
		limit = 30
	}

	deviceID := c.Param("device_id")
	history, err := h.svc.AssessmentHistory(c.Request.Context(), deviceID, limit)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		h.logger.Error("assessment history", zap.String("device_id", deviceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	if history == nil {
		history = []*model.AssessmentRecord{}
	}

	c.JSON(http.StatusOK, gin.H{"device_id": deviceID, "assessments": history, "count": len(history)})
}
