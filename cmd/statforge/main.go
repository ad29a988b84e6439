package main

import (
	"os"

	"statforge/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
