package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/qobil7681/atuin-history-tool/internal/app"
	"github.com/qobil7681/atuin-history-tool/internal/config"
	"github.com/qobil7681/atuin-history-tool/internal/database"
	"github.com/qobil7681/atuin-history-tool/internal/database/migrations"
	"github.com/qobil7681/atuin-history-tool/internal/encryption"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Append", "Verify").
func newApp(operation string) (*app.App, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// readPassphrase prompts for a passphrase without echoing it.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(passphrase), nil
}

var rootCmd = &cobra.Command{
	Use:   "recordstore",
	Short: "Append-only encrypted record log store",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and encryption keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		// Generate a new host ID
		hostID := uuid.New().String()

		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		if err := os.MkdirAll(cfg.Database.DataDir, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		// Generate the encryption key pair.
		passphrase, err := readPassphrase("Passphrase for private key: ")
		if err != nil {
			return err
		}

		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return fmt.Errorf("creating encryptor: %w", err)
		}
		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		// Apply the schema so the first append works immediately.
		dbPath := filepath.Join(cfg.Database.DataDir, hostID+".db")
		db, err := database.OpenConnection(dbPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
		if err := migrations.MigrateUp(db); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:  %s\n", cfg.HostID)
		fmt.Printf("User ID:  %d\n", cfg.UserID)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Type != "sqlite" {
			return fmt.Errorf("migrate only applies to sqlite databases")
		}

		dbPath := filepath.Join(cfg.Database.DataDir, cfg.HostID+".db")
		db, err := database.OpenConnection(dbPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		if err := migrations.MigrateUp(db); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}

		fmt.Println("Database schema is up to date.")
		return nil
	},
}

// append command
var appendCmd = &cobra.Command{
	Use:   "append TAG",
	Short: "Append a record read from stdin to a tagged chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, _ := cmd.Flags().GetString("record-version")

		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading payload from stdin: %w", err)
		}

		a, err := newApp("Append")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Append(cmd.Context(), args[0], version, payload)
		if err != nil {
			return fmt.Errorf("appending: %w", err)
		}

		fmt.Printf("Appended %s (parent %s)\n", rec.ID, rec.Parent)
		return nil
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log TAG",
	Short: "View a chain in append order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		since, _ := cmd.Flags().GetString("since")
		decrypt, _ := cmd.Flags().GetBool("decrypt")

		a, err := newApp("Log")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.Log(cmd.Context(), host, args[0], since)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No records.")
			return nil
		}

		if decrypt {
			passphrase, err := readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
			dc, err := a.Unlock(passphrase)
			if err != nil {
				return fmt.Errorf("unlocking private key: %w", err)
			}
			for _, rec := range records {
				payload, err := a.DecryptPayload(dc, rec)
				if err != nil {
					return err
				}
				fmt.Printf("%s  %s  %s\n", rec.ID, formatTimestamp(rec.Timestamp), payload)
			}
			return nil
		}

		for _, rec := range records {
			fmt.Printf("%s  %s  v=%s  %d bytes\n",
				rec.ID, formatTimestamp(rec.Timestamp), rec.Version, len(rec.Data))
		}
		return nil
	},
}

// tip command
var tipCmd = &cobra.Command{
	Use:   "tip TAG",
	Short: "Show the current tip of a chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")

		a, err := newApp("Tip")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Tip(cmd.Context(), host, args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Println("No chain.")
			return nil
		}

		fmt.Printf("%s  %s  v=%s\n", rec.ID, formatTimestamp(rec.Timestamp), rec.Version)
		return nil
	},
}

// kv command
var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Key/value log built on the record store",
}

var kvSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Append a key/value pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("SetKV")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.SetKV(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("setting key: %w", err)
		}
		return nil
	},
}

var kvGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Read the most recent value for a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("GetKV")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}

		pair, err := a.GetKV(cmd.Context(), passphrase, args[0])
		if err != nil {
			return err
		}
		if pair == nil {
			fmt.Println("Key not set.")
			return nil
		}

		fmt.Println(pair.Value)
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List every chain in the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Status")
		if err != nil {
			return err
		}
		defer a.Close()

		chains, err := a.Status(cmd.Context())
		if err != nil {
			return err
		}

		if len(chains) == 0 {
			fmt.Println("No chains.")
			return nil
		}

		for _, c := range chains {
			fmt.Printf("%s  %-12s  %6d record(s)  tip=%s\n", c.Host, c.Tag, c.Length, c.Tip)
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify TAG",
	Short: "Check a chain's integrity end to end",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")

		a, err := newApp("Verify")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Verify(cmd.Context(), host, args[0])
		if err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}

		fmt.Printf("OK: %d record(s), head %s, tip %s\n", report.Length, report.Head, report.Tip)
		return nil
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Upload a store snapshot to the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Snapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Snapshot(cmd.Context()); err != nil {
			return fmt.Errorf("snapshot failed: %w", err)
		}

		fmt.Println("Snapshot uploaded.")
		return nil
	},
}

func formatTimestamp(ns int64) string {
	return time.Unix(0, ns).UTC().Format("2006-01-02 15:04:05")
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// kv subcommands
	kvCmd.AddCommand(kvSetCmd)
	kvCmd.AddCommand(kvGetCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(appendCmd)
	appendCmd.Flags().String("record-version", "v0", "Producing client/schema version stored on the record")
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().String("host", "", "Host id of the chain (default: this host)")
	logCmd.Flags().String("since", "", "Resume after this record id")
	logCmd.Flags().Bool("decrypt", false, "Decrypt payloads (prompts for passphrase)")
	rootCmd.AddCommand(tipCmd)
	tipCmd.Flags().String("host", "", "Host id of the chain (default: this host)")
	rootCmd.AddCommand(kvCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().String("host", "", "Host id of the chain (default: this host)")
	rootCmd.AddCommand(snapshotCmd)
}
