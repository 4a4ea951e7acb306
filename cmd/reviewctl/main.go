package main

import (
	"os"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
