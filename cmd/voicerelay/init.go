package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rhyniox/voicerelay/examples"
)

// runInit initializes a voicerelay working directory with the example
// config. An existing config.yaml is never overwritten.
func runInit(w io.Writer, dir string) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(w, "%s already exists, leaving it alone\n", configPath)
		return nil
	}

	// 0600: the file may carry the API key.
	if err := os.WriteFile(configPath, examples.ConfigYAML, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", configPath, err)
	}

	fmt.Fprintf(w, "Wrote %s\n", configPath)
	fmt.Fprintln(w, "Edit it (or just set GROQ_API_KEY) and run: voicerelay serve")
	return nil
}
