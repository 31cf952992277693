package main

import (
	"os"

	"horse.fit/talentsync/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
