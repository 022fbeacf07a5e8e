package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/namestrings/checkout-api/cartstore"
	"github.com/namestrings/checkout-api/checkout"
	"github.com/namestrings/checkout-api/clients/gateway"
	"github.com/namestrings/checkout-api/clients/orderservice"
	"github.com/namestrings/checkout-api/models"
	"github.com/namestrings/checkout-api/routes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	log.Println("✅ Starting application...")

	// Load environment variables
	_ = godotenv.Load()

	// Init DB
	db := initDatabase()

	// Auto-migrate cart persistence tables
	if err := db.AutoMigrate(
		&models.CartRecord{},
		&models.CartLineRecord{},
	); err != nil {
		log.Fatalf("❌ AutoMigrate failed: %v", err)
	}

	// External collaborators
	orders, err := orderservice.NewClientFromEnv()
	if err != nil {
		log.Fatalf("❌ Order service config: %v", err)
	}
	paymentGateway, err := gateway.NewClientFromEnv()
	if err != nil {
		log.Fatalf("❌ Payment gateway config: %v", err)
	}
	merchant, err := checkout.MerchantFromEnv()
	if err != nil {
		log.Fatalf("❌ Merchant config: %v", err)
	}

	// Core
	repo := cartstore.NewGormRepository(db)
	carts := cartstore.NewManager(repo)
	orchestrator := checkout.NewOrchestrator(orders, paymentGateway, checkout.PricingFromEnv())

	// Gin setup
	r := gin.Default()

	// CORS settings
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Setup routes
	routes.SetupRoutes(r, routes.Deps{
		Carts:        carts,
		Orchestrator: orchestrator,
		Merchant:     merchant,
	})

	// Daily maintenance at 2 AM: abandoned carts kept 30 days,
	// confirmed checkout sessions kept 24 hours
	go startDailyMaintenanceAtFixedTime(repo, orchestrator, 30*24*time.Hour, 24*time.Hour, 2, 0)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("🚀 Server running on port %s...", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// initDatabase sets up the GORM DB connection
func initDatabase() *gorm.DB {
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
		if err != nil {
			log.Fatalf("❌ DB connection failed: %v", err)
		}
		return db
	}

	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	dbname := os.Getenv("DB_NAME")

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, dbname, port,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("❌ Failed to connect DB: %v", err)
	}
	return db
}

// startDailyMaintenanceAtFixedTime runs once a day at a fixed hour. It
// removes cart rows untouched for the cart retention window (cleared-cart
// tombstones older than the window go too; a buyer idle that long gets a
// fresh cart) and drops confirmed checkout sessions older than the
// session retention window from the in-memory registry.
func startDailyMaintenanceAtFixedTime(repo cartstore.Repository, orchestrator *checkout.Orchestrator, cartRetention, sessionRetention time.Duration, hour, min int) {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, now.Location())
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		sleepDuration := next.Sub(now)
		log.Printf("⏳ Next maintenance run scheduled at: %s", next.Format("2006-01-02 15:04:05"))
		time.Sleep(sleepDuration)

		pruned, err := repo.PruneStale(time.Now().Add(-cartRetention))
		if err != nil {
			log.Printf("❌ Failed to prune stale carts: %v", err)
		} else if pruned > 0 {
			log.Printf("🗑️ Pruned %d stale carts", pruned)
		}

		if dropped := orchestrator.PruneTerminal(time.Now().Add(-sessionRetention)); dropped > 0 {
			log.Printf("🗑️ Dropped %d confirmed checkout sessions", dropped)
		}
	}
}
