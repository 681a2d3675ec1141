// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/Query-farm/vgi-llist/internal/config"
	"github.com/Query-farm/vgi-llist/vgirpc"
)

// Renderer writes command results in the configured output format.
type Renderer struct {
	w      io.Writer
	format string
}

// NewRenderer creates a renderer for one of the config.Output* formats.
func NewRenderer(w io.Writer, format string) *Renderer {
	return &Renderer{w: w, format: format}
}

func (r *Renderer) encode(v any) error {
	switch r.format {
	case config.OutputJSON:
		enc := json.NewEncoder(r.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.OutputYAML:
		enc := yaml.NewEncoder(r.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", r.format)
}

func (r *Renderer) table(header table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetOutputMirror(r.w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.Render()
}

// Values renders a list of values, one per row.
func (r *Renderer) Values(values []vgirpc.Value) error {
	if r.format != config.OutputTable {
		out := make([]any, len(values))
		for i, v := range values {
			out[i] = plain(v)
		}
		return r.encode(out)
	}
	rows := make([]table.Row, len(values))
	for i, v := range values {
		rows[i] = table.Row{i, v.Kind(), v.String()}
	}
	r.table(table.Row{"#", "Kind", "Value"}, rows)
	return nil
}

// Scalar renders a single named integer.
func (r *Renderer) Scalar(name string, n int64) error {
	if r.format != config.OutputTable {
		return r.encode(map[string]int64{name: n})
	}
	_, err := fmt.Fprintln(r.w, n)
	return err
}

// Map renders a configuration map sorted by key.
func (r *Renderer) Map(m map[string]vgirpc.Value) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if r.format != config.OutputTable {
		out := make(map[string]any, len(m))
		for _, k := range keys {
			out[k] = plain(m[k])
		}
		return r.encode(out)
	}
	rows := make([]table.Row, len(keys))
	for i, k := range keys {
		rows[i] = table.Row{k, m[k].String()}
	}
	r.table(table.Row{"Key", "Value"}, rows)
	return nil
}

// Functions renders a describe listing.
func (r *Renderer) Functions(functions []vgirpc.FunctionInfo) error {
	if r.format != config.OutputTable {
		if functions == nil {
			functions = []vgirpc.FunctionInfo{}
		}
		return r.encode(functions)
	}
	rows := make([]table.Row, len(functions))
	for i, f := range functions {
		rows[i] = table.Row{f.Package, f.Function}
	}
	r.table(table.Row{"Package", "Function"}, rows)
	return nil
}
