package main

import (
	"os"

	"github.com/Lauiee/AdvisorAI-Api/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
