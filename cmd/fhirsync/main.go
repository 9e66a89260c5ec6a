package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"fhirsync/internal/app"
	"fhirsync/internal/config"
	"fhirsync/internal/resource"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates a FHIRApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "ImportDir", "SyncPush").
func newApp(cmd *cobra.Command, operation string, opts ...app.Option) (*app.FHIRApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.NewFHIRApp(cmd.Context(), cfg, operation, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func printResource(r *resource.Resource) error {
	data, err := resource.Encode(r)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

var rootCmd = &cobra.Command{
	Use:          "fhirsync",
	Short:        "Offline-first local FHIR resource store",
	SilenceUsage: true,
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

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
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
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Host ID:   %s\n", cfg.HostID)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Database:  %s (encrypted: %t)\n", cfg.Database.Type, cfg.Database.Encrypted)
		fmt.Printf("Upload:    %s, create with %s\n", cfg.Upload.Mode, cfg.Upload.HTTPVerbForCreate)
		fmt.Printf("Remote:    %s %s\n", cfg.Remote.Type, cfg.Remote.BaseURL)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the local database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Migrate", app.WithoutMigrationCheck())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Migrate(); err != nil {
			return err
		}
		st, err := a.MigrationStatus()
		if err != nil {
			return err
		}
		fmt.Printf("Database at version %d\n", st.Current)
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "MigrationStatus", app.WithoutMigrationCheck())
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.MigrationStatus()
		if err != nil {
			return err
		}
		state := "up to date"
		switch {
		case st.Dirty:
			state = "dirty"
		case !st.UpToDate():
			state = fmt.Sprintf("%d migration(s) pending", int(st.Latest)-int(st.Current))
		}
		fmt.Printf("Version %d of %d: %s\n", st.Current, st.Latest, state)
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup PATH",
	Short: "Write a copy of the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Backup(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Database copied to %s\n", args[0])
		return nil
	},
}

// resource command
var resourceCmd = &cobra.Command{
	Use:   "resource",
	Short: "Manage local resources",
}

var resourceCreateCmd = &cobra.Command{
	Use:   "create FILE",
	Short: "Create resources from a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Create")
		if err != nil {
			return err
		}
		defer a.Close()

		ids, err := a.Create(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var resourceGetCmd = &cobra.Command{
	Use:   "get TYPE ID",
	Short: "Print a resource",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Get")
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.Get(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printResource(r)
	},
}

var resourceUpdateCmd = &cobra.Command{
	Use:   "update FILE",
	Short: "Replace resources with the contents of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Update")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Update(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Updated %d resource(s)\n", n)
		return nil
	},
}

var resourceDeleteCmd = &cobra.Command{
	Use:   "delete TYPE ID",
	Short: "Delete a resource",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Delete")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Delete(cmd.Context(), args[0], args[1])
	},
}

var resourcePurgeCmd = &cobra.Command{
	Use:   "purge TYPE ID",
	Short: "Remove a resource without recording a change",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		a, err := newApp(cmd, "Purge")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Purge(cmd.Context(), args[0], args[1], force)
	},
}

var resourceImportCmd = &cobra.Command{
	Use:   "import DIR",
	Short: "Import every resource file under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ImportDir")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.ImportDir(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("importing: %w", err)
		}
		fmt.Printf("Imported %d resource(s)\n", n)
		return nil
	},
}

var resourceHistoryCmd = &cobra.Command{
	Use:   "history TYPE ID",
	Short: "List the versions the remote server holds",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "RemoteHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		versions, err := a.RemoteHistory(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Println("No remote versions.")
			return nil
		}
		for _, r := range versions {
			meta := r.Meta()
			fmt.Printf("%s  v%s  %s\n", r, meta.VersionID, meta.LastUpdated.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var resourceSearchCmd = &cobra.Command{
	Use:   "search TYPE",
	Short: "Search local resources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := app.SearchParams{Type: args[0]}
		params.Where, _ = cmd.Flags().GetStringArray("where")
		params.References, _ = cmd.Flags().GetStringArray("ref")
		params.Include, _ = cmd.Flags().GetStringArray("include")
		params.RevInclude, _ = cmd.Flags().GetStringArray("revinclude")
		params.Sort, _ = cmd.Flags().GetBool("sort")
		params.Desc, _ = cmd.Flags().GetBool("desc")
		params.Limit, _ = cmd.Flags().GetInt("limit")
		params.Offset, _ = cmd.Flags().GetInt("offset")
		countOnly, _ := cmd.Flags().GetBool("count")

		a, err := newApp(cmd, "Search")
		if err != nil {
			return err
		}
		defer a.Close()

		if countOnly {
			n, err := a.Count(cmd.Context(), params)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		}

		result, err := a.Search(cmd.Context(), params)
		if err != nil {
			return err
		}
		for _, r := range result.Resources {
			if err := printResource(r.Resource); err != nil {
				return err
			}
		}
		for _, inc := range append(result.Included, result.RevIncluded...) {
			if err := printResource(inc.Resource); err != nil {
				return err
			}
		}
		return nil
	},
}

// changes command
var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Inspect pending local changes",
}

var changesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List changes not yet uploaded",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "PendingChanges")
		if err != nil {
			return err
		}
		defer a.Close()

		changes, err := a.PendingChanges(cmd.Context())
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			fmt.Println("No pending changes.")
			return nil
		}
		for _, c := range changes {
			fmt.Printf("#%v  %s  %-6s  %s\n",
				c.Token.IDs,
				c.Timestamp.Format("2006-01-02 15:04:05"),
				c.Type,
				resource.ReferenceTo(c.ResourceType, c.ResourceID),
			)
		}
		return nil
	},
}

var changesCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count changes not yet uploaded",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "PendingCount")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.PendingCount(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize with the remote server",
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload pending changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "SyncPush")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Push(cmd.Context())
		if err != nil {
			return fmt.Errorf("push failed after %d change(s): %w", n, err)
		}
		fmt.Printf("Uploaded %d change(s)\n", n)
		return nil
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download remote resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "SyncPull")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Pull(cmd.Context())
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}
		fmt.Printf("Stored %d remote resource(s)\n", n)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate the key pair for encrypted storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.SetupKeys(cfg); err != nil {
			return err
		}
		fmt.Printf("Keys written to %s\n", filepath.Dir(cfg.Encryption.PublicKeyPath))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbBackupCmd)

	resourceCmd.AddCommand(resourceCreateCmd)
	resourceCmd.AddCommand(resourceGetCmd)
	resourceCmd.AddCommand(resourceUpdateCmd)
	resourceCmd.AddCommand(resourceDeleteCmd)
	resourceCmd.AddCommand(resourcePurgeCmd)
	resourcePurgeCmd.Flags().Bool("force", false, "Also discard pending changes")
	resourceCmd.AddCommand(resourceImportCmd)
	resourceCmd.AddCommand(resourceHistoryCmd)
	resourceCmd.AddCommand(resourceSearchCmd)
	resourceSearchCmd.Flags().StringArrayP("where", "w", nil, "String filter path[:op]=value (op: exact, contains, starts-with)")
	resourceSearchCmd.Flags().StringArray("ref", nil, "Reference filter path=Type/id")
	resourceSearchCmd.Flags().StringArray("include", nil, "Include referenced resources path:TargetType")
	resourceSearchCmd.Flags().StringArray("revinclude", nil, "Include referencing resources Type:path")
	resourceSearchCmd.Flags().Bool("sort", false, "Sort by local last-updated time, oldest first")
	resourceSearchCmd.Flags().Bool("desc", false, "Sort by local last-updated time, newest first")
	resourceSearchCmd.Flags().IntP("limit", "n", 0, "Maximum number of results")
	resourceSearchCmd.Flags().Int("offset", 0, "Number of results to skip")
	resourceSearchCmd.Flags().Bool("count", false, "Print only the number of matches")

	changesCmd.AddCommand(changesListCmd)
	changesCmd.AddCommand(changesCountCmd)

	syncCmd.AddCommand(syncPushCmd)
	syncCmd.AddCommand(syncPullCmd)

	keysCmd.AddCommand(keysSetupCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(resourceCmd)
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(keysCmd)
}
