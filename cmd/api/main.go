package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/Bluerat1/uniclaim-server/internal/pkg/logger"
	"github.com/Bluerat1/uniclaim-server/internal/server"
)

// @title UniClaim API
// @version 1.0
// @description Lost and found marketplace backend with handover/claim workflows

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token for authorization

func main() {
	// Local development reads .env; the file is optional everywhere else.
	if err := godotenv.Load(); err == nil {
		logger.Debug().Msg("Loaded environment from .env")
	}

	srv, err := server.NewServer()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize server")
		os.Exit(1)
	}

	if err := srv.Run(); err != nil {
		logger.Error().Err(err).Msg("Server execution failed or shutdown encountered errors")
		os.Exit(1)
	}

	logger.Info().Msg("Application finished gracefully.")
}
