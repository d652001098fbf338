package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/oauthrelay/internal/app"
)

func main() {
	if err := app.Run(nil, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
