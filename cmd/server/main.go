package main

import (
	"context"
	"flag"

	"github.com/joho/godotenv"

	"github.com/franckalain/labelverdict/internal/config"
	"github.com/franckalain/labelverdict/internal/logger"
	"github.com/franckalain/labelverdict/internal/ml"
	"github.com/franckalain/labelverdict/internal/models"
	"github.com/franckalain/labelverdict/internal/server"
)

func main() {
	envLoaded := godotenv.Load() == nil

	configPath := flag.String("config", config.GetConfigPath(), "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}

	log := logger.Init(cfg.Log.Level, nil)
	if !envLoaded {
		log.Debug("No .env file found, using system environment variables")
	}

	// Initialize the model
	gen, err := ml.NewGenerator(cfg.ML.Type, cfg.ML.ConfigPath)
	if err != nil {
		logger.Fatal("Failed to create ML model", "error", err)
	}
	if err := gen.Load(context.Background()); err != nil {
		logger.Fatal("Failed to load ML model", "type", cfg.ML.Type, "error", err)
	}
	defer gen.Close()

	gateway := ml.NewGateway(gen, cfg.ML.Timeout.Std(), log)

	srv := server.New(gateway, server.Options{
		StaticDir:      cfg.Server.StaticDir,
		Debug:          cfg.Server.Debug,
		RequestTimeout: cfg.Server.RequestTimeout.Std(),
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Persona:        models.Persona(cfg.ML.Persona),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log)
	if err := srv.Start(cfg.Server.Port); err != nil {
		logger.Fatal("Failed to start server", "error", err)
	}
}
