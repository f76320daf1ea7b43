package main

import (
	"log"

	"edge-redirector/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
