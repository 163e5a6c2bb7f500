package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// LivenessMessage is the fixed body of GET /
const LivenessMessage = "Invoice Automation Bot is Active & Running!"

// Version is reported by the health endpoint
var Version = "dev"

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string      `json:"status"`
	Service   string      `json:"service"`
	Timestamp string      `json:"timestamp"`
	Version   string      `json:"version"`
	Details   interface{} `json:"details,omitempty"`
}

// HealthDetail contributes component state to the health response
type HealthDetail func() interface{}

// RegisterHealth adds GET / (plain text liveness, for hosts that require a
// bound port) and GET /health
func RegisterHealth(r gin.IRouter, service string, detail HealthDetail) {
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, LivenessMessage)
	})

	r.GET("/health", func(c *gin.Context) {
		response := HealthResponse{
			Status:    "healthy",
			Service:   service,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
		}
		if detail != nil {
			response.Details = detail()
		}

		c.JSON(http.StatusOK, Response{
			Success: true,
			Data:    response,
		})
	})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error:   msg,
	})
}
