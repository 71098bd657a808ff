package main

import (
	"log"

	"dj-requests/cmd"
	_ "dj-requests/migrations"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
