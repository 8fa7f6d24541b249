package main

import (
	"os"

	"github.com/hitoshi/snoozeclient/internal/app"
)

func main() {
	os.Exit(app.Main(os.Args[1:]))
}
