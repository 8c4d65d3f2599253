// ctrlcfg - controller configuration backup and remediation
//
// Backs up device configuration from controller APIs (APIC, vManage,
// Meraki, NetScaler, WTI, generic REST) and from device CLIs, computes
// minimal remediation patches from intended and actual configuration, and
// pushes them back through the controller.
//
// Examples:
//
//	ctrlcfg backup apic1                        # Back up one device
//	ctrlcfg backup-all -c 8                     # Back up the whole inventory
//	ctrlcfg remediate compliance.json           # Print the remediation patch
//	ctrlcfg remediate compliance.json --push    # ...and push it
//	ctrlcfg push apic1 patch.json               # Push an existing patch
//	ctrlcfg audit list --last 24h
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/ctrlcfg/pkg/audit"
	"github.com/newtron-network/ctrlcfg/pkg/auth"
	"github.com/newtron-network/ctrlcfg/pkg/backup"
	"github.com/newtron-network/ctrlcfg/pkg/dispatcher"
	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/metrics"
	"github.com/newtron-network/ctrlcfg/pkg/secrets"
	"github.com/newtron-network/ctrlcfg/pkg/settings"
	"github.com/newtron-network/ctrlcfg/pkg/sshcli"
	"github.com/newtron-network/ctrlcfg/pkg/store"
	"github.com/newtron-network/ctrlcfg/pkg/util"
	"github.com/newtron-network/ctrlcfg/pkg/version"
)

// App holds global flags and state shared by every command.
type App struct {
	inventoryDir string
	backupDir    string
	metricsAddr  string
	knownHosts   string
	verbose      bool
	logJSON      bool
	jsonOutput   bool
	askPass      bool

	settings *settings.Settings
	inv      *inventory.Inventory
	checker  *auth.Checker
	store    store.Store
	user     string
}

var app = &App{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "ctrlcfg",
	Short:             "Controller configuration backup and remediation",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `ctrlcfg backs up device configuration through controller APIs and
device CLIs, and computes and pushes minimal remediation patches.

Devices, platforms and config contexts are read from the inventory
directory (-I, or "ctrlcfg settings set inventory_dir <dir>").`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if isMetaCommand(cmd) {
			return nil
		}

		var err error
		app.settings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			app.settings = &settings.Settings{}
		}
		if app.inventoryDir == "" {
			app.inventoryDir = app.settings.GetInventoryDir()
		}
		if app.backupDir == "" {
			app.backupDir = app.settings.GetBackupDir()
		}
		if app.metricsAddr == "" {
			app.metricsAddr = app.settings.MetricsAddr
		}

		if app.verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}
		if app.logJSON {
			util.SetJSONFormat()
		}
		app.user = currentUser()
		util.Debugf("ctrlcfg %s, user %s, inventory %s", version.Info(), app.user, app.inventoryDir)

		auditLogger, err := audit.NewFileLogger(app.settings.GetAuditLog(), audit.RotationConfig{
			MaxSize:    10 * 1024 * 1024, // 10MB
			MaxBackups: 10,
		})
		if err != nil {
			util.Warnf("Could not initialize audit logging: %v", err)
		} else {
			audit.SetDefaultLogger(auditLogger)
		}

		if app.metricsAddr != "" {
			serveMetrics(app.metricsAddr)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app.store != nil {
			return app.store.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&app.inventoryDir, "inventory", "I", "", "Inventory directory")
	rootCmd.PersistentFlags().StringVar(&app.backupDir, "backup-dir", "", "Backup artifact directory")
	rootCmd.PersistentFlags().StringVar(&app.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	rootCmd.PersistentFlags().StringVar(&app.knownHosts, "known-hosts", "", "known_hosts file for CLI backups (host keys are not checked when unset)")
	rootCmd.PersistentFlags().BoolVarP(&app.askPass, "ask-pass", "k", false, "Prompt for credentials instead of reading them from the environment or Vault")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&app.logJSON, "log-json", false, "Write logs as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "backup", Title: "Backup:"},
		&cobra.Group{ID: "remediation", Title: "Remediation:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{backupCmd, backupAllCmd, historyCmd} {
		cmd.GroupID = "backup"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{remediateCmd, pushCmd} {
		cmd.GroupID = "remediation"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{settingsCmd, auditCmd, permissionsCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Version == "dev" {
			fmt.Println("ctrlcfg dev build (use 'make build' for version info)")
		} else {
			fmt.Printf("ctrlcfg %s (%s)\n", version.Version, version.GitCommit)
		}
	},
}

// isMetaCommand reports whether cmd runs without inventory or audit setup.
func isMetaCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "settings", "version", "help":
			return true
		}
	}
	return false
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return util.CoalesceString(os.Getenv("USER"), "unknown")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Warnf("metrics listener on %s: %v", addr, err)
		}
	}()
}

// ============================================================================
// Shared helpers
// ============================================================================

func loadInventory() (*inventory.Inventory, error) {
	if app.inv != nil {
		return app.inv, nil
	}
	inv, err := inventory.Load(app.inventoryDir)
	if err != nil {
		return nil, fmt.Errorf("loading inventory: %w", err)
	}
	app.inv = inv
	return inv, nil
}

// authorize checks perm for the current user against the inventory
// access policy. Without an access.yaml everything is allowed.
func authorize(perm auth.Permission, devices ...*inventory.Device) error {
	checker, err := accessChecker()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return checker.Check(perm, nil)
	}
	for _, dev := range devices {
		ctx := auth.NewContext().WithDevice(dev.Name).WithPlatform(dev.NetworkDriver())
		if err := checker.Check(perm, ctx); err != nil {
			return err
		}
	}
	return nil
}

func accessChecker() (*auth.Checker, error) {
	if app.checker != nil {
		return app.checker, nil
	}
	policy, err := auth.LoadPolicy(filepath.Join(app.inventoryDir, auth.PolicyFile))
	if err != nil {
		return nil, fmt.Errorf("loading access policy: %w", err)
	}
	app.checker = auth.NewChecker(policy, app.user)
	return app.checker, nil
}

// credentialProvider returns the prompt provider with -k, otherwise
// environment variables followed by Vault when a Vault address is known.
func credentialProvider() (secrets.Provider, error) {
	if app.askPass {
		creds, err := promptCredentials(os.Stdin, os.Stderr)
		if err != nil {
			return nil, err
		}
		return fixedProvider{creds: creds}, nil
	}
	chain := secrets.Chain{secrets.Env{Prefix: app.settings.GetEnvPrefix()}}
	if addr := util.CoalesceString(app.settings.VaultAddr, os.Getenv("VAULT_ADDR")); addr != "" {
		vault, err := secrets.NewVault(secrets.VaultConfig{
			Address: addr,
			Mount:   app.settings.GetVaultMount(),
			Prefix:  app.settings.VaultPrefix,
		})
		if err != nil {
			return nil, err
		}
		chain = append(chain, vault)
	}
	return chain, nil
}

// openStore returns the Redis store when redis_addr is set, otherwise a
// file store under <backup-dir>/history.
func openStore(ctx context.Context) (store.Store, error) {
	if app.store != nil {
		return app.store, nil
	}
	var (
		s   store.Store
		err error
	)
	if app.settings.RedisAddr != "" {
		s, err = store.NewRedisStore(ctx, store.RedisConfig{Addr: app.settings.RedisAddr})
	} else {
		s, err = store.NewFileStore(filepath.Join(app.backupDir, "history"), store.DefaultHistory)
	}
	if err != nil {
		return nil, fmt.Errorf("opening artifact store: %w", err)
	}
	app.store = s
	return s, nil
}

func newOrchestrator(ctx context.Context) (*backup.Orchestrator, error) {
	provider, err := credentialProvider()
	if err != nil {
		return nil, err
	}
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	return &backup.Orchestrator{
		Registry:  dispatcher.DefaultRegistry(),
		Secrets:   provider,
		Transport: app.settings.TransportConfig(),
		Store:     st,
		User:      app.user,
	}, nil
}

func newRunner(ctx context.Context, opts backup.Options) (*backup.Runner, error) {
	inv, err := loadInventory()
	if err != nil {
		return nil, err
	}
	o, err := newOrchestrator(ctx)
	if err != nil {
		return nil, err
	}
	ssh := sshcli.New(sshcli.Config{
		Timeout:        app.settings.TransportConfig().ReadTimeout,
		KnownHostsFile: app.knownHosts,
	})
	return &backup.Runner{
		Inventory:    inv,
		Orchestrator: o,
		CLI:          &backup.CLIBackup{Orchestrator: o, Runner: ssh},
		BackupDir:    app.backupDir,
		Options:      opts,
	}, nil
}
