package main

import (
	"log"
	"prayerchain_back_end_go/chains"
	"prayerchain_back_end_go/db"
	"prayerchain_back_end_go/routes"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	r := gin.Default()

	config := cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	r.Use(cors.New(config))

	// Initialize database
	conn, err := db.InitDatabase()

	if err != nil {
		log.Fatalf("Failed to connect to the database: %v", err)
	}

	defer conn.Close()

	engine := chains.NewEngine(db.NewChainStore(conn))

	// Initialize routes
	routes.SetupChainRoutes(r, engine)

	// Start server
	r.Run(":3001")
}
