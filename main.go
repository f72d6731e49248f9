package main

import (
	"github.com/joho/godotenv"

	"github.com/ogdch/harvester/internal/cmd"
)

func main() {
	// Credentials for local runs come from a .env file; in CI they are
	// injected directly into the environment.
	_ = godotenv.Load()

	cmd.Execute()
}
