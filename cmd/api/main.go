package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	os.Exit(execute(newRootCmd()))
}

// execute runs cmd and reports a failure on the log, returning the exit code.
func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		logrus.WithError(err).Error("formflow failed")
		return 1
	}
	return 0
}

func init() {
	if mode := os.Getenv("GIN_MODE"); mode == "" {
		gin.SetMode(gin.ReleaseMode)
	}
}
