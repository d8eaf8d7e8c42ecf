package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/calder-lang/ssaopt/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize sopt configuration interactively",
	Long: `Guides you through setting up sopt configuration step by step.
Creates a config file with threading and output settings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func runInit() error {
	defaults := config.DefaultConfig()

	peelHeaders := defaults.PeelLoopHeaders
	optimizeSize := defaults.OptimizeSize
	maxPaths := strconv.Itoa(defaults.MaxThreadPaths)
	dumpFormat := string(defaults.DumpFormat)
	cacheDir := defaults.CacheDir

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Loop header peeling").
				Description("Allow duplicating loop headers when threading through them?").
				Affirmative("Yes, peel headers").
				Negative("No, keep headers intact").
				Value(&peelHeaders),
			huh.NewConfirm().
				Title("Optimize for size").
				Description("Skip threads that duplicate blocks with multiple predecessors?").
				Affirmative("Yes").
				Negative("No").
				Value(&optimizeSize),
			huh.NewInput().
				Title("Maximum thread requests per run (0 = unlimited)").
				Placeholder("0").
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 0 {
						return fmt.Errorf("enter a non-negative integer")
					}
					return nil
				}).
				Value(&maxPaths),
		),
	)
	err := form.Run()
	if err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Dump format").
				Description("Default encoding for rewritten graphs").
				Options(
					huh.NewOption("YAML", "yaml"),
					huh.NewOption("JSON", "json"),
					huh.NewOption("Graphviz dot", "dot"),
				).
				Value(&dumpFormat),
			huh.NewInput().
				Title("Snapshot cache directory").
				Placeholder(defaults.CacheDir).
				Value(&cacheDir),
		),
	)
	err = form.Run()
	if err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Global (~/.sopt/config.yaml)", "global"),
					huh.NewOption("Project (./.sopt/config.yaml)", "project"),
				).
				Value(&saveLocationChoice),
		),
	)
	err = form.Run()
	if err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	var configPath string
	if saveLocationChoice == "global" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		configPath = filepath.Join(home, ".sopt", "config.yaml")
	} else {
		configPath = ".sopt/config.yaml"
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		err = form.Run()
		if err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	cfg.PeelLoopHeaders = peelHeaders
	cfg.OptimizeSize = optimizeSize
	cfg.MaxThreadPaths, _ = strconv.Atoi(maxPaths)
	cfg.DumpFormat = config.DumpFormat(dumpFormat)
	if cacheDir != "" {
		cfg.CacheDir = cacheDir
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	fmt.Printf("Peel loop headers: %v\n", cfg.PeelLoopHeaders)
	fmt.Printf("Optimize for size: %v\n", cfg.OptimizeSize)
	if cfg.MaxThreadPaths == 0 {
		fmt.Println("Max thread paths: unlimited")
	} else {
		fmt.Printf("Max thread paths: %d\n", cfg.MaxThreadPaths)
	}
	fmt.Printf("Dump format: %s\n", cfg.DumpFormat)
	fmt.Printf("Cache dir: %s\n", cfg.CacheDir)
	fmt.Println("================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)

	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
