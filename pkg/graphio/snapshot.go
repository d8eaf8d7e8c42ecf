package graphio

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/calder-lang/ssaopt/pkg/ir"
)

// SaveSnapshot writes a compact binary snapshot of fn to w.
func SaveSnapshot(w io.Writer, fn *ir.Func) error {
	data, err := msgpack.Marshal(Dump(fn))
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot.
func LoadSnapshot(r io.Reader) (*ir.Func, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var g Graph
	if err := msgpack.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	fn, _, err := g.Build()
	if err != nil {
		return nil, err
	}
	return fn, nil
}
