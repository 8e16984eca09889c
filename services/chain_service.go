package services

import (
	"log"
	"net/http"

	"prayerchain_back_end_go/auth"
	"prayerchain_back_end_go/chains"

	"github.com/gin-gonic/gin"
)

type CreateChainPayload struct {
	Title            string `json:"title" binding:"required"`
	Description      string `json:"description"`
	MaxParticipants  int    `json:"max_participants" binding:"required"`
	TurnDurationDays int    `json:"turn_duration_days" binding:"required"`
}

type SubmitPrayerPayload struct {
	Content string `json:"content" binding:"required"`
}

// statusFor maps each failure kind to its own HTTP status so callers can tell
// them apart instead of receiving a generic 500 for everything.
func statusFor(code chains.ErrorCode) int {
	switch code {
	case chains.ErrCodeChainNotFound, chains.ErrCodeNotAMember:
		return http.StatusNotFound
	case chains.ErrCodeChainInactive, chains.ErrCodeAlreadyMember, chains.ErrCodeChainFull:
		return http.StatusConflict
	case chains.ErrCodeNotYourTurn, chains.ErrCodeNotCreator:
		return http.StatusForbidden
	case chains.ErrCodeEmptyContent:
		return http.StatusUnprocessableEntity
	case chains.ErrCodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	if code := chains.CodeOf(err); code != "" {
		c.JSON(statusFor(code), gin.H{"error": err.Error(), "code": string(code)})
		return
	}
	log.Printf("internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
}

func actorID(c *gin.Context) string {
	return c.GetString(auth.ContextUserKey)
}

// Implement POST /api/v1/chains
func CreateChain(c *gin.Context, engine *chains.Engine) {
	var payload CreateChainPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Println("Bind Error:", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	chain, err := engine.CreateChain(c.Request.Context(), chains.CreateChainInput{
		Title:            payload.Title,
		Description:      payload.Description,
		CreatorID:        actorID(c),
		MaxParticipants:  payload.MaxParticipants,
		TurnDurationDays: payload.TurnDurationDays,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, chain)
}

// Implement POST /api/v1/chains/:chainId/join
func JoinChain(c *gin.Context, engine *chains.Engine) {
	participant, err := engine.JoinChain(c.Request.Context(), c.Param("chainId"), actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, participant)
}

// Implement POST /api/v1/chains/:chainId/leave
func LeaveChain(c *gin.Context, engine *chains.Engine) {
	if err := engine.LeaveChain(c.Request.Context(), c.Param("chainId"), actorID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left the chain"})
}

// Implement POST /api/v1/chains/:chainId/prayers
func SubmitPrayer(c *gin.Context, engine *chains.Engine) {
	var payload SubmitPrayerPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Println("Bind Error:", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	event, err := engine.SubmitPrayer(c.Request.Context(), c.Param("chainId"), actorID(c), payload.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// Implement GET /api/v1/chains/:chainId
func GetChainView(c *gin.Context, engine *chains.Engine) {
	view, err := engine.GetChainView(c.Request.Context(), c.Param("chainId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Implement DELETE /api/v1/chains/:chainId
func DeactivateChain(c *gin.Context, engine *chains.Engine) {
	if err := engine.DeactivateChain(c.Request.Context(), c.Param("chainId"), actorID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chain deactivated"})
}

type TokenPayload struct {
	UserID string `json:"user_id" binding:"required"`
}

// Implement POST /api/v1/token
func MintToken(c *gin.Context) {
	var payload TokenPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	token, err := auth.GenerateToken(payload.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
