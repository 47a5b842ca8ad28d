// Package main provides the entry point for the filmaudit archival audit CLI.
package main

import (
	"errors"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		if errors.Is(err, errFindings) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
