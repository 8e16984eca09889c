package routes

import (
	"prayerchain_back_end_go/auth"
	"prayerchain_back_end_go/chains"
	"prayerchain_back_end_go/services"

	"github.com/gin-gonic/gin"
)

func SetupChainRoutes(r *gin.Engine, engine *chains.Engine) {
	r.POST("/api/v1/token", services.MintToken)

	r.GET("/api/v1/chains/:chainId", func(c *gin.Context) {
		services.GetChainView(c, engine)
	})

	authed := r.Group("/api/v1", auth.RequireAuth())

	authed.POST("/chains", func(c *gin.Context) {
		services.CreateChain(c, engine)
	})

	authed.POST("/chains/:chainId/join", func(c *gin.Context) {
		services.JoinChain(c, engine)
	})

	authed.POST("/chains/:chainId/leave", func(c *gin.Context) {
		services.LeaveChain(c, engine)
	})

	authed.POST("/chains/:chainId/prayers", func(c *gin.Context) {
		services.SubmitPrayer(c, engine)
	})

	authed.DELETE("/chains/:chainId", func(c *gin.Context) {
		services.DeactivateChain(c, engine)
	})
}
