package main

import (
	"os"

	"github.com/beetlebugorg/footprint/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
