// cmd/serve.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/markb/pushlite/internal/broker"
	"github.com/markb/pushlite/internal/db"
	"github.com/markb/pushlite/internal/log"
	"github.com/markb/pushlite/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pushlite broker",
	Long:  `Starts the HTTP server with the WebSocket endpoint and the publish API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		port, _ := cmd.Flags().GetInt("port")
		host, _ := cmd.Flags().GetString("host")

		log.Init(buildLogConfig(cmd))

		// Check if database exists
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database not found at %s. Run 'pushlite init' first", dbPath)
		}

		database, err := db.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		// Run migrations in case schema is outdated
		if err := database.RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		srv := server.New(database, broker.LoggingHandler{})
		addr := fmt.Sprintf("%s:%d", host, port)
		fmt.Printf("Starting pushlite on %s\n", addr)
		fmt.Printf("  WebSocket:   ws://%s/ws?app=<app-key>\n", addr)
		fmt.Printf("  Publish API: http://%s/apps/{app-id}/events\n", addr)

		if domain, _ := cmd.Flags().GetString("https-domain"); domain != "" {
			certDir, _ := cmd.Flags().GetString("cert-dir")
			httpsPort, _ := cmd.Flags().GetInt("https-port")
			httpsAddr := fmt.Sprintf("%s:%d", host, httpsPort)
			return srv.ListenAndServeHTTPS(domain, certDir, addr, httpsAddr)
		}
		return srv.ListenAndServe(addr)
	},
}

// buildLogConfig resolves logging settings.
// Priority: CLI flags > environment variables > defaults
func buildLogConfig(cmd *cobra.Command) *log.Config {
	cfg := log.DefaultConfig()

	if level := os.Getenv("PUSHLITE_LOG_LEVEL"); level != "" {
		cfg.Level = level
	}
	if format := os.Getenv("PUSHLITE_LOG_FORMAT"); format != "" {
		cfg.Format = format
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Format = format
	}
	return cfg
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("db", "pushlite.db", "Path to database file")
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn, or error")
	serveCmd.Flags().String("log-format", "", "Log format: text or json")
	serveCmd.Flags().String("https-domain", "", "Serve HTTPS with a Let's Encrypt certificate for this domain")
	serveCmd.Flags().Int("https-port", 8443, "Port for the HTTPS listener")
	serveCmd.Flags().String("cert-dir", "certs", "Directory to cache TLS certificates")
}
