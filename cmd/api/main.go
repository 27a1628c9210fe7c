// Command api serves the Shiptivity board API.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("shiptivity failed")
		os.Exit(1)
	}
}
