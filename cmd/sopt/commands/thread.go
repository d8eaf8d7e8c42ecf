package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calder-lang/ssaopt/internal/config"
	"github.com/calder-lang/ssaopt/internal/log"
	"github.com/calder-lang/ssaopt/pkg/cache"
	"github.com/calder-lang/ssaopt/pkg/graphio"
	"github.com/calder-lang/ssaopt/pkg/ir"
	"github.com/calder-lang/ssaopt/pkg/thread"
)

// threadCmd represents the thread command
var threadCmd = &cobra.Command{
	Use:   "thread <graph.yaml>",
	Short: "Apply registered jump threads to a graph",
	Long: `Loads a control flow graph and its thread requests from a YAML file,
applies all admissible threads in one batch, and dumps the rewritten
graph together with threading statistics.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		graphPath := args[0]

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		// Flags override whatever the config files say.
		if cmd.Flags().Changed("peel-headers") {
			cfg.PeelLoopHeaders, _ = cmd.Flags().GetBool("peel-headers")
		}
		if cmd.Flags().Changed("os") {
			cfg.OptimizeSize, _ = cmd.Flags().GetBool("os")
		}
		if cmd.Flags().Changed("max-paths") {
			cfg.MaxThreadPaths, _ = cmd.Flags().GetInt("max-paths")
		}
		if cmd.Flags().Changed("v") {
			cfg.Verbose, _ = cmd.Flags().GetBool("v")
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		dotOutput, _ := cmd.Flags().GetBool("dot")
		outPath, _ := cmd.Flags().GetString("out")
		snapshot, _ := cmd.Flags().GetBool("snapshot")

		switch {
		case jsonOutput:
			cfg.DumpFormat = config.DumpJSON
		case dotOutput:
			cfg.DumpFormat = config.DumpDot
		}

		return runThread(graphPath, outPath, snapshot, cfg)
	},
}

func runThread(graphPath, outPath string, snapshot bool, cfg *config.Config) error {
	fn, paths, err := graphio.LoadFile(graphPath)
	if err != nil {
		return fmt.Errorf("loading graph: %w", err)
	}

	level := log.ErrorLevel
	if cfg.Verbose {
		level = log.DebugLevel
	}
	logger := log.New(log.LoggerConfig{Level: level})

	tr := thread.New(fn, thread.Options{
		OptimizeSize: cfg.OptimizeSize,
		Admit:        admitLimit(cfg.MaxThreadPaths),
		Logger:       logger,
	})

	registered := 0
	for _, p := range paths {
		if tr.Register(p) {
			registered++
		}
	}

	changed := tr.ApplyAll(cfg.PeelLoopHeaders)

	fmt.Fprintf(os.Stderr, "paths registered: %d/%d\n", registered, len(paths))
	fmt.Fprintf(os.Stderr, "jumps threaded:   %d\n", tr.Stats().ThreadedEdges)
	if changed && fn.LoopsNeedFixup {
		fmt.Fprintln(os.Stderr, "loop structure needs fixup")
	}

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch cfg.DumpFormat {
	case config.DumpJSON:
		data, err := json.MarshalIndent(graphio.Dump(fn), "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
	case config.DumpDot:
		fmt.Fprint(out, graphio.Dot(fn))
	default:
		if err := graphio.Save(out, fn); err != nil {
			return fmt.Errorf("dumping graph: %w", err)
		}
	}

	if snapshot {
		if err := saveSnapshot(cfg.CacheDir, graphPath, fn); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
	}

	return nil
}

// admitLimit builds an admission gate that accepts the first limit
// requests and rejects the rest. A zero limit admits everything.
func admitLimit(limit int) func(thread.Path) bool {
	if limit <= 0 {
		return nil
	}
	admitted := 0
	return func(thread.Path) bool {
		if admitted >= limit {
			return false
		}
		admitted++
		return true
	}
}

// saveSnapshot writes a binary copy of the rewritten graph into the
// cache directory, named after the input file.
func saveSnapshot(cacheDir, graphPath string, fn *ir.Func) error {
	base := filepath.Base(graphPath)
	key := strings.TrimSuffix(base, filepath.Ext(base))

	store := cache.NewStore(cacheDir, cache.Options{})
	if err := store.Put(key, fn); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "snapshot saved to: %s\n", store.Path(key))
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func init() {
	threadCmd.Flags().BoolP("json", "j", false, "Dump rewritten graph as JSON")
	threadCmd.Flags().Bool("dot", false, "Dump rewritten graph as Graphviz dot")
	threadCmd.Flags().StringP("out", "o", "", "Write dump to file instead of stdout")
	threadCmd.Flags().Bool("peel-headers", true, "Allow threading through loop headers")
	threadCmd.Flags().Bool("os", false, "Optimize for size (skip threads that grow the graph)")
	threadCmd.Flags().Int("max-paths", 0, "Admit at most this many thread requests (0 = unlimited)")
	threadCmd.Flags().BoolP("v", "v", false, "Verbose logging")
	threadCmd.Flags().String("config", "", "Config file path")
	threadCmd.Flags().Bool("snapshot", false, "Save a binary snapshot of the result to the cache dir")
	RootCmd.AddCommand(threadCmd)
}
