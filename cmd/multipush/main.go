package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"multipush/internal/app"
	"multipush/internal/config"
	"multipush/internal/encryption"
	"multipush/internal/model"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config from its default (or env-overridden) location.
func loadConfig() (*config.Config, error) {
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

// newApp reads the config and creates a PushApp. The caller must defer Close.
func newApp(cmd *cobra.Command) (*app.PushApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.NewPushApp(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// workspaceArg resolves the optional PATH argument, defaulting to the
// current directory.
func workspaceArg(args []string) (string, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	return abs, nil
}

var rootCmd = &cobra.Command{
	Use:   "multipush",
	Short: "Bulk upload orchestrator for rate-limited targets",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Println("Add accounts and a target to the config before pushing.")
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
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Target:     %s\n", cfg.Target.Type)
		fmt.Printf("Checkpoint: %s\n", cfg.Checkpoint.Type)
		fmt.Printf("Accounts:   %d\n", len(cfg.Accounts))
		for _, ac := range cfg.Accounts {
			fmt.Printf("  - %s (rate limit %d)\n", ac.Name, ac.RateLimit)
		}
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan [PATH]",
	Short: "List the files a push would upload",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceArg(args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		tasks, err := a.Scan(root)
		if err != nil {
			return err
		}

		var total int64
		for _, t := range tasks {
			fmt.Printf("%s  %10d  %s\n", t.Checksum[:12], t.Size, t.ID)
			total += t.Size
		}
		fmt.Printf("%d file(s), %d bytes\n", len(tasks), total)
		return nil
	},
}

// push command
var pushCmd = &cobra.Command{
	Use:   "push [PATH]",
	Short: "Upload the workspace to the configured target",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		dashAddr, _ := cmd.Flags().GetString("dashboard")

		root, err := workspaceArg(args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		// First interrupt cancels the run gracefully: in-flight uploads
		// finish and the checkpoint is flushed. A second one kills us.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, runErr := a.Push(ctx, root, app.PushOptions{
			DryRun:        dryRun,
			DashboardAddr: dashAddr,
		})
		if report != nil {
			printReport(report)
		}
		return runErr
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status [PATH]",
	Short: "Compare the workspace against the checkpoint",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceArg(args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		tasks, err := a.Status(root)
		if err != nil {
			return err
		}

		uploaded, failed, pending := 0, 0, 0
		for _, t := range tasks {
			var indicator string
			switch t.Status {
			case model.TaskUploaded:
				indicator = "U"
				uploaded++
			case model.TaskFailedPermanent:
				indicator = "F"
				failed++
			default:
				indicator = "."
				pending++
			}
			fmt.Printf("%s %s\n", indicator, t.ID)
		}
		fmt.Printf("%d uploaded, %d failed, %d pending\n", uploaded, failed, pending)
		return nil
	},
}

// accounts command
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List accounts and validate their credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		accounts, errs := a.Accounts(cmd.Context())
		for _, acct := range accounts {
			state := string(acct.Status)
			if verr, bad := errs[acct.Name]; bad {
				state = fmt.Sprintf("invalid (%v)", verr)
			}
			fmt.Printf("%-20s  %-10s  quota %d/%d\n",
				acct.Name, state, acct.RateLimitRemaining, acct.RateLimitLimit)
		}
		if len(errs) > 0 {
			return fmt.Errorf("%d account(s) failed validation", len(errs))
		}
		return nil
	},
}

// keygen command
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the age key pair for payload encryption",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Print("Passphrase for private key: ")
		pass, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		if len(pass) == 0 {
			return fmt.Errorf("passphrase must not be empty")
		}

		enc := encryption.NewAgeEncryptor(cfg.Encryption)
		if err := enc.Setup(string(pass)); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s (passphrase protected)\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// printReport writes the final run summary to stdout.
func printReport(r *model.Report) {
	fmt.Printf("\n%d file(s): %d uploaded, %d failed, %d skipped in %s\n",
		r.Total, r.Uploaded, r.Failed, r.Skipped, r.Elapsed.Round(10*time.Millisecond))

	names := make([]string, 0, len(r.PerAccount))
	byName := make(map[string]model.AccountReport, len(r.PerAccount))
	for _, ar := range r.PerAccount {
		names = append(names, ar.Name)
		byName[ar.Name] = ar
	}
	sort.Strings(names)

	for _, name := range names {
		ar := byName[name]
		fmt.Printf("  %-20s  %4d req  %4d ok  %4d failed  avg %.0fms  %s\n",
			ar.Name, ar.Requests, ar.Successful, ar.Failed, ar.AvgMs, ar.Status)
	}
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	pushCmd.Flags().Bool("dry-run", false, "Go through scheduling without uploading")
	pushCmd.Flags().String("dashboard", "", "Serve the live progress page at this address (e.g. 127.0.0.1:8099)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(keygenCmd)
}
