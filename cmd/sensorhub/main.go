package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"sensorhub/config"
	"sensorhub/engine"
	"sensorhub/livestate"
	"sensorhub/messaging"
	"sensorhub/store"
	"sensorhub/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "sensorhub.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("sensorhub", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("sensorhub: database open (%s)", cfg.Database.Driver)

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("sensorhub: redis not available (%v), state reads fall back to SQL", err)
	} else {
		log.Printf("sensorhub: redis connected (%s)", cfg.Redis.Address)
	}
	cancel()
	defer redisClient.Close()

	live := livestate.NewManager(db, livestate.NewRedisStore(redisClient))

	// MQTT broker
	msgClient := messaging.NewClient(&cfg.MQTT)
	if err := msgClient.Connect(); err != nil {
		log.Printf("sensorhub: mqtt connect failed (%v), retrying in background", err)
	} else {
		log.Printf("sensorhub: mqtt connected (%s:%d)", cfg.MQTT.Broker, cfg.MQTT.Port)
	}
	defer msgClient.Close()

	// Engine
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		Live:       live,
		MsgClient:  msgClient,
	})
	if err := eng.Start(); err != nil {
		log.Fatalf("engine start: %v", err)
	}
	defer eng.Stop()

	// Web server
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: www.NewRouter(eng),
	}

	go func() {
		log.Printf("sensorhub: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("sensorhub: ready")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("sensorhub: shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("sensorhub: stopped")
}
