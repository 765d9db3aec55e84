// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

// Command gen-schema writes the JSON Schemas of the auth API request bodies.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/identityd/identityd/internal/web"
)

func main() {
	outDir := "schemas"
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}

	files, err := generate(outDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schemas: %v\n", err)
		os.Exit(1)
	}
	for _, f := range files {
		fmt.Printf("Generated %s\n", f)
	}
}

// generate writes every request schema into dir and returns the written
// paths in name order.
func generate(dir string) ([]string, error) {
	schemas, err := web.RequestSchemas()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	slices.Sort(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, append(schemas[name], '\n'), 0o600); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
