// Command classrollctl performs administrative tasks against the classroll
// database.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"classroll/internal/account"
	"classroll/internal/config"
	"classroll/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "classrollctl",
	Short:         "Administrative tasks for classroll",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// migrateCmd applies the embedded schema
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

// useraddCmd creates an account without going through the API
var useraddCmd = &cobra.Command{
	Use:   "useradd",
	Short: "Create a faculty or student account",
	Long: `Create an account directly in the database.

Example:
  classrollctl useradd --name "Ada Lovelace" --email ada@example.edu --role FACULTY --password s3cret!`,
	RunE: runUseradd,
}

var (
	timeout      time.Duration
	userName     string
	userEmail    string
	userPassword string
	userRole     string
)

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline for the command")

	useraddCmd.Flags().StringVar(&userName, "name", "", "display name")
	useraddCmd.Flags().StringVar(&userEmail, "email", "", "login email")
	useraddCmd.Flags().StringVar(&userPassword, "password", "", "initial password")
	useraddCmd.Flags().StringVar(&userRole, "role", "STUDENT", "FACULTY or STUDENT")
	for _, name := range []string{"name", "email", "password"} {
		_ = useraddCmd.MarkFlagRequired(name)
	}

	rootCmd.AddCommand(migrateCmd, useraddCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openDB(ctx context.Context, cmd *cobra.Command) (*store.DB, error) {
	cfg := config.Load()
	for _, w := range cfg.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
	}
	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return db, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	db, err := openDB(ctx, cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
	return nil
}

func runUseradd(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	db, err := openDB(ctx, cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	u, err := account.NewService(account.NewRepository(db.Client)).Register(ctx, userName, userEmail, userPassword, userRole)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", u.Role, u.Email, u.ID)
	return nil
}
