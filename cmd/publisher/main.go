package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"

	config "postpilot/configs"
	"postpilot/internal/api/handlers"
	"postpilot/internal/api/middleware"
	"postpilot/internal/queue"
	"postpilot/internal/repository"
	"postpilot/internal/schedule"
	"postpilot/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}
	if err := repository.EnsureSchema(db); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	slots, err := schedule.NewSlotTable(cfg.Publish.Timezone, cfg.Publish.Slots)
	if err != nil {
		log.Fatalf("Invalid slot configuration: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	scheduleRepo := repository.NewScheduleRepository(db)

	staging, err := service.NewStagingService(*cfg)
	if err != nil {
		log.Fatalf("Failed to create staging service: %v", err)
	}
	creds := service.NewStaticCredentials(*cfg)
	instagramService := service.NewInstagramService(*cfg, creds)
	twitterService := service.NewTwitterService(*cfg, creds)
	publisherService := service.NewPublisherService(*cfg, scheduleRepo, staging, instagramService, twitterService)
	postService := service.NewPostService(scheduleRepo, staging, slots)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, X-API-Key",
		MaxAge:       3600,
	}))

	authMiddleware := middleware.NewAuthMiddleware(*cfg)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	post := handlers.NewPostHandler(postService)
	api.Post("/posts/schedule", post.SchedulePost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/reschedule", post.ReschedulePost)
	api.Post("/posts/cancel", post.CancelPost)
	api.Post("/posts/retry", post.RetryPost)

	// Periodic publish trigger. Each tick enqueues one run; overlapping
	// runs are safe because claiming is atomic.
	c := cron.New()
	c.AddFunc(cfg.CronSpec, func() {
		if err := queue.EnqueuePublishRun(client, 0); err != nil {
			log.Printf("Failed to enqueue publish run: %v", err)
		}
	})
	c.Start()

	worker := queue.NewWorker(publisherService)

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 2,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishDue, worker.HandlePublishDueTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on %s", cfg.ListenAddr)

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
