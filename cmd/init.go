// cmd/init.go
package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/markb/pushlite/internal/broker"
	"github.com/markb/pushlite/internal/db"
	"github.com/markb/pushlite/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new pushlite database",
	Long:  `Creates a new SQLite database with the broker schema and seeds one application so the server is immediately usable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		appName, _ := cmd.Flags().GetString("app-name")

		// Check if file already exists
		if _, err := os.Stat(dbPath); err == nil {
			return fmt.Errorf("database already exists at %s", dbPath)
		}

		database, err := db.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		defer database.Close()

		if err := database.RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		app := broker.App{
			ID:     uuid.NewString(),
			Key:    randomToken(16),
			Secret: []byte(randomToken(32)),
			Name:   appName,
		}
		if err := store.New(database).CreateApp(app); err != nil {
			return fmt.Errorf("failed to seed application: %w", err)
		}

		fmt.Printf("Initialized database at %s\n", dbPath)
		fmt.Printf("  App ID:     %s\n", app.ID)
		fmt.Printf("  App Key:    %s\n", app.Key)
		fmt.Printf("  App Secret: %s\n", app.Secret)
		return nil
	},
}

func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return hex.EncodeToString(buf)
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().String("db", "pushlite.db", "Path to database file")
	initCmd.Flags().String("app-name", "default", "Name for the seeded application")
}
