package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/popup-village/portal-backend/internal/api/middleware"
	"github.com/popup-village/portal-backend/internal/service"
)

// ClusterHandler exposes the account linking endpoints.
type ClusterHandler struct {
	clusterService service.ClusterService
}

type initiateLinkReq struct {
	TargetEmail string `json:"target_email" binding:"required,email"`
}

type verifyLinkReq struct {
	VerificationCode string `json:"verification_code" binding:"required"`
}

// Initiate starts a link request to another account. A verification code is
// emailed to the target account.
func (h *ClusterHandler) Initiate(c *gin.Context) {
	citizenID, ok := middleware.GetCitizenID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req initiateLinkReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.clusterService.InitiateLink(c.Request.Context(), citizenID, req.TargetEmail)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, receipt)
}

// Verify redeems a verification code and completes the account linking.
func (h *ClusterHandler) Verify(c *gin.Context) {
	citizenID, ok := middleware.GetCitizenID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req verifyLinkReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	clusterID, err := h.clusterService.VerifyLink(c.Request.Context(), req.VerificationCode, citizenID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Accounts successfully linked",
		"cluster_id": clusterID,
	})
}

// MyCluster returns the caller's cluster. Citizens without a cluster are
// presented as a singleton cluster of one, per the portal API convention.
func (h *ClusterHandler) MyCluster(c *gin.Context) {
	citizenID, ok := middleware.GetCitizenID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	info, err := h.clusterService.ClusterInfo(c.Request.Context(), citizenID)
	if err != nil {
		respondError(c, err)
		return
	}

	if info == nil {
		c.JSON(http.StatusOK, service.ClusterInfo{
			ClusterID:   0,
			CitizenIDs:  []int64{citizenID},
			MemberCount: 1,
		})
		return
	}

	c.JSON(http.StatusOK, info)
}

// Leave removes the caller from their cluster. Reversible: they can re-link
// later.
func (h *ClusterHandler) Leave(c *gin.Context) {
	citizenID, ok := middleware.GetCitizenID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	if err := h.clusterService.Leave(c.Request.Context(), citizenID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Successfully left the account cluster"})
}
