package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/report-autofill/internal/cli"
)

func main() {
	_ = godotenv.Load()

	command := cli.NewCmdRoot()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}
