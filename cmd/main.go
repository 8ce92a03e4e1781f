package main

import (
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/cexll/session-notes/internal/github"
)

var (
	loadDotEnv         = godotenv.Load
	defaultListenServe = http.ListenAndServe
	getwd              = os.Getwd

	commandRunner github.CommandRunner = &github.RealCommandRunner{}

	// version is stamped at build time with -ldflags "-X main.version=...".
	version = ""
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
