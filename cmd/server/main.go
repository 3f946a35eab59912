package main

import (
	"log"
	"os"

	"github.com/EmmaQiaoCh/embedding-profiler/internal/domain"
	"github.com/EmmaQiaoCh/embedding-profiler/internal/server"
	"github.com/joho/godotenv"
)

func main() {
	conf := domain.GetDefaultConfig()
	conf.CheckUsage()

	devEnvironment := os.Getenv("DEV_ENVIRONMENT")
	var environmentFileName string
	if devEnvironment == "production" {
		environmentFileName = ".production.env"
	} else {
		environmentFileName = ".development.env"
	}

	// Load ENV from .env file, when one is present.
	if _, err := os.Stat(environmentFileName); err == nil {
		if err := godotenv.Load(environmentFileName); err != nil {
			log.Fatalf("Failed to load environment file \"%s\"", environmentFileName)
		}
	}

	srv := server.NewServer(conf)

	// Blocking call.
	if err := srv.Serve(); err != nil {
		panic(err)
	}
}
