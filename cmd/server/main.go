package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/tabungin/backend/docs"
	"github.com/tabungin/backend/internal/config"
	"github.com/tabungin/backend/internal/database"
	"github.com/tabungin/backend/internal/handlers"
	mW "github.com/tabungin/backend/internal/middleware"
	"github.com/tabungin/backend/internal/services"
)

// @title Tabungin Backend API
// @version 1.0
// @description API for the Tabungin school student-savings bookkeeping system
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Tabungin Backend API"
	docs.SwaggerInfo.Description = "API for the Tabungin school student-savings bookkeeping system"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	schoolConfig := config.LoadSchoolConfig()
	log.Printf("Serving school %s (%s)", schoolConfig.SchoolName, schoolConfig.SchoolCode)

	studentService := services.NewStudentService(db, redisClient)
	transactionService := services.NewTransactionService(db, redisClient, schoolConfig)
	qrService := services.NewQRService(db, redisClient, schoolConfig)
	qrHandler := handlers.NewQRHandler(qrService)
	rosterCSVHandler := handlers.NewRosterCSVHandler(studentService, schoolConfig)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Roster
		r.Get("/students", studentService.ListStudents)
		r.Post("/students", studentService.CreateStudent)
		r.Get("/students/export", rosterCSVHandler.ExportStudents)
		r.Post("/students/import", rosterCSVHandler.ImportStudents)
		r.Get("/students/{nis}", studentService.GetStudent)
		r.Put("/students/{nis}", studentService.UpdateStudent)
		r.Delete("/students/{nis}", studentService.DeleteStudent)
		r.Put("/students/{nis}/pin", studentService.SetPIN)
		r.Get("/students/{nis}/qr", qrHandler.GetStudentQR)

		// Savings book
		r.Get("/students/{nis}/transactions", transactionService.ListTransactions)
		r.Get("/students/{nis}/transactions/export", transactionService.ExportTransactionsCSV)
		r.Get("/students/{nis}/summary", transactionService.GetSummary)
		r.Post("/students/{nis}/deposits", transactionService.CreateDeposit)
		r.Post("/students/{nis}/withdrawals", transactionService.CreateWithdrawal)

		r.Get("/transactions/recent", transactionService.GetRecentTransactions)
		r.Delete("/transactions/{txId}", transactionService.DeleteTransaction)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
