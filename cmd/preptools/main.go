package main

import (
	"os"

	"github.com/geometry-infra/preptools/internal/app"
)

func main() {
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
