package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/cexll/session-notes/internal/runlog"
	"github.com/cexll/session-notes/internal/webhook"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept signed notes submissions over HTTP",
		Long: `Run an HTTP server that applies notes submissions posted to
/repos/{owner}/{repo}/pulls/{number}/session-notes. Requests must carry an
X-Hub-Signature-256 HMAC of the body made with the webhook secret.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd, map[string]string{"serve.port": "port"}); err != nil {
				return err
			}
			return c.runServe(defaultListenServe)
		},
	}
	cmd.Flags().Int("port", 8000, "port to listen on")
	return cmd
}

func (c *cli) runServe(serve func(string, http.Handler) error) error {
	if err := c.Config.ValidateServe(); err != nil {
		return err
	}

	log.Printf("[Serve] Starting session-notes server...")
	log.Printf("[Serve] Port: %d", c.Config.Serve.Port)
	if c.Config.HasApp() {
		log.Printf("[Serve] GitHub App ID: %s", c.Config.GitHub.AppID)
	}
	log.Printf("[Serve] Max attempts: %d, max body chars: %d", c.Config.Notes.MaxAttempts, c.Config.Notes.MaxBodyChars)

	runs := runlog.NewStore(0)
	handler := webhook.NewHandler(c.Config.Serve.WebhookSecret, c.StoreFactory(), c.Builder(), c.Config.Notes.MaxAttempts, runs)

	r := mux.NewRouter()
	handler.RegisterRoutes(r)

	// Root endpoint with info
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"service":"session-notes","status":"running","version":%q}`, c.GeneratorVersion())
	}).Methods(http.MethodGet)

	addr := fmt.Sprintf(":%d", c.Config.Serve.Port)
	log.Printf("[Serve] Listening on %s", addr)
	log.Printf("[Serve] Intake: POST http://localhost%s/repos/{owner}/{repo}/pulls/{number}/session-notes", addr)
	log.Printf("[Serve] Runs: http://localhost%s/runs", addr)

	if err := serve(addr, r); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}
