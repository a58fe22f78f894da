package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/popup-village/portal-backend/internal/api/middleware"
	"github.com/popup-village/portal-backend/internal/service"
)

// CitizenHandler exposes profile endpoints.
type CitizenHandler struct {
	citizenService service.CitizenService
}

// Me returns the authenticated citizen's profile.
func (h *CitizenHandler) Me(c *gin.Context) {
	citizenID, ok := middleware.GetCitizenID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	citizen, err := h.citizenService.GetByID(c.Request.Context(), citizenID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toCitizenResponse(citizen))
}
