package handlers

import (
	"errors"
	"net/http"

	"oven_controller/internal/hardware"
	"oven_controller/internal/repository"
	"oven_controller/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK = "ok"

	errStorage    = "setpoint storage unavailable"
	errSensor     = "temperature sensor unavailable"
	errGetState   = "failed to load state"
	errCantParse  = "can't parse request"
	queryDev      = "dev"
	queryValue    = "value"
	errSetCommand = "failed to apply command"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// respondServiceError maps service errors onto HTTP codes: rejected input is
// 400 with its own message, storage and sensor faults are 503.
func (h *Handler) respondServiceError(c *gin.Context, logKey, fallback string, err error) {
	var inErr *service.InvalidInputError
	switch {
	case errors.As(err, &inErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": inErr.Msg})
	case errors.Is(err, repository.ErrUnknownKey), errors.Is(err, repository.ErrInvalidValue):
		c.JSON(http.StatusBadRequest, gin.H{"error": errCantParse})
	case errors.Is(err, repository.ErrStorageUnavailable):
		h.logAndJSONError(c, http.StatusServiceUnavailable, errStorage, logKey, err)
	case errors.Is(err, hardware.ErrSensorFault):
		h.logAndJSONError(c, http.StatusServiceUnavailable, errSensor, logKey, err)
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, fallback, logKey, err)
	}
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Get oven state
// @Description  Persisted setpoints merged with the live temperature and actuator states.
// @Tags         oven
// @Produce      json
// @Success      200  {object}  models.OvenState
// @Failure      503  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /status [get]
func (h *Handler) getStatus(c *gin.Context) {
	st, err := h.services.Oven.Status(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, "oven_get_status_failed", errGetState, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Set one oven parameter
// @Description  dev=temp takes a value in [0,500] or high/low; light, fan, top, bottom and back take on/off words; timer takes minutes (0 = manual).
// @Tags         oven
// @Produce      json
// @Param        dev    query  string  true  "Device"  Enums(temp,light,fan,top,bottom,back,timer)
// @Param        value  query  string  true  "Value"
// @Success      200  {object}  models.OvenState
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /set [get]
// @Security     BearerAuth
func (h *Handler) setDevice(c *gin.Context) {
	dev, hasDev := c.GetQuery(queryDev)
	value, hasValue := c.GetQuery(queryValue)
	if !hasDev || !hasValue {
		c.JSON(http.StatusBadRequest, gin.H{"error": errCantParse})
		return
	}

	st, err := h.services.Oven.Set(c.Request.Context(), dev, value)
	if err != nil {
		h.respondServiceError(c, "oven_set_failed", errSetCommand, err)
		return
	}
	if h.log != nil {
		h.log.Infow("oven_set", "dev", dev, "value", value)
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Recent temperatures
// @Description  The last samples taken by the control loop, oldest first.
// @Tags         oven
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, samples"
// @Router       /trend [get]
func (h *Handler) getTrend(c *gin.Context) {
	samples := h.services.TrendReader.Samples()
	c.JSON(http.StatusOK, gin.H{
		"count":   len(samples),
		"samples": samples,
	})
}
