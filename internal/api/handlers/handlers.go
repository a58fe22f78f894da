package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/popup-village/portal-backend/internal/repository"
	"github.com/popup-village/portal-backend/internal/service"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	Auth    *AuthHandler
	Citizen *CitizenHandler
	Cluster *ClusterHandler
}

// NewHandlers creates all handlers
func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Auth:    &AuthHandler{authService: services.Auth},
		Citizen: &CitizenHandler{citizenService: services.Citizen},
		Cluster: &ClusterHandler{clusterService: services.Cluster},
	}
}

// respondError maps service error codes onto HTTP statuses. Unknown errors
// are logged and returned as opaque 500s.
func respondError(c *gin.Context, err error) {
	code, ok := service.CodeOf(err)
	if !ok {
		log.Printf("[API] Internal error - Path: %s, Error: %v", c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	status := http.StatusInternalServerError
	switch code {
	case service.CodeNotFound:
		status = http.StatusNotFound
	case service.CodeConflict:
		status = http.StatusConflict
	case service.CodeForbidden:
		status = http.StatusForbidden
	case service.CodeExpired:
		// Distinct from not_found so clients can prompt for a fresh code.
		status = http.StatusBadRequest
	case service.CodeUpstream:
		status = http.StatusBadGateway
	case service.CodeUnauthorized:
		status = http.StatusUnauthorized
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": string(code)})
}

// ============================================
// Response Mappers
// ============================================

type CitizenResponse struct {
	ID           int64     `json:"id"`
	PrimaryEmail string    `json:"primary_email"`
	FirstName    *string   `json:"first_name,omitempty"`
	LastName     *string   `json:"last_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toCitizenResponse(citizen *repository.Citizen) CitizenResponse {
	return CitizenResponse{
		ID:           citizen.ID,
		PrimaryEmail: citizen.PrimaryEmail,
		FirstName:    citizen.FirstName,
		LastName:     citizen.LastName,
		CreatedAt:    citizen.CreatedAt,
	}
}
