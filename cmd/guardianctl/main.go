package main

import (
	"log"
	"os"

	"github.com/famgate/famgate/internal/guardianctl"
)

func main() {
	app := guardianctl.NewApp(os.Stdout)
	if err := app.Run(os.Args[1:]); err != nil {
		log.Fatalf("%v", err)
	}
}
