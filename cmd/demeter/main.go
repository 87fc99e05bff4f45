package main

import (
	"github.com/miohtama/demeter/internal/cli"
)

func main() {
	cli.Execute()
}
