package graphio

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/calder-lang/ssaopt/pkg/ir"
	"github.com/calder-lang/ssaopt/pkg/thread"
)

// Load reads a YAML graph description from r.
func Load(r io.Reader) (*ir.Func, []thread.Path, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read graph: %w", err)
	}
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, nil, fmt.Errorf("failed to parse graph: %w", err)
	}
	return g.Build()
}

// LoadFile reads a YAML graph description from path.
func LoadFile(path string) (*ir.Func, []thread.Path, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open graph file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Save writes fn as YAML to w.
func Save(w io.Writer, fn *ir.Func) error {
	data, err := yaml.Marshal(Dump(fn))
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	return nil
}
