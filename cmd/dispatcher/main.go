package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/brightgive/donor-engine/internal/config"
	"github.com/brightgive/donor-engine/internal/worker"
)

func main() {
	log.Println("BrightGive dispatch worker starting")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Database.URL == "" {
		log.Fatal("database url is required (config database.url or DATABASE_URL)")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		log.Fatalf("Database ping failed: %v", err)
	}
	cancelPing()
	log.Println("Connected to database")

	sender := buildSender(cfg.Mail)

	d := worker.NewDispatcher(db, sender, cfg.Dispatcher.Workers)
	d.SetSenderIdentity(cfg.Mail.FromName, cfg.Mail.FromEmail, cfg.Mail.ReplyTo)
	d.SetPollInterval(cfg.Dispatcher.PollInterval())

	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		limiter, err := worker.NewOrgRateLimiterFromURL(cfg.Redis.URL,
			cfg.Dispatcher.OrgPerMinuteLimit, cfg.Dispatcher.OrgDailyLimit)
		if err != nil {
			log.Printf("Rate limiter unavailable, dispatching without backstop: %v", err)
		} else {
			defer limiter.Close()
			d.SetRateLimiter(limiter)
			log.Println("Connected to Redis, org rate limiting enabled")
		}
	}

	d.Start()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Println("Shutting down...")
	d.Stop()
}

// buildSender picks the mail provider. Anything unrecognized falls back to
// the dry-run sender so a typo in config never mails real donors.
func buildSender(cfg config.MailConfig) worker.MailSender {
	switch cfg.Provider {
	case "ses":
		s, err := worker.NewSESSender(cfg.SESAccessKey, cfg.SESSecretKey, cfg.SESRegion)
		if err != nil {
			log.Printf("SES sender unavailable (%v), using dry-run sender", err)
			return worker.NewLogSender()
		}
		log.Printf("Using SES sender in %s", cfg.SESRegion)
		return s
	case "resend":
		s, err := worker.NewResendSender(cfg.ResendAPIKey)
		if err != nil {
			log.Printf("Resend sender unavailable (%v), using dry-run sender", err)
			return worker.NewLogSender()
		}
		log.Println("Using Resend sender")
		return s
	default:
		log.Println("Using dry-run log sender")
		return worker.NewLogSender()
	}
}
