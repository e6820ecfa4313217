// Package main is the entry point for carton-backup, the store snapshot
// export/import tool.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cartonstore/carton/internal/serialization"
	"github.com/cartonstore/carton/internal/store"
)

func resolveDirectory(configPath string) (string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return "", err
	}
	storage, _ := raw["storage"].(map[string]any)
	if storage == nil {
		return "./data", nil
	}
	dir, _ := storage["directory"].(string)
	if dir == "" {
		return "./data", nil
	}
	return dir, nil
}

func openStore(configPath, directory string) (*store.Store, error) {
	dir := directory
	if dir == "" {
		var err error
		dir, err = resolveDirectory(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return store.New(dir, nil)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: carton-backup <export|import> [flags]")
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "export":
		rc := runExport(os.Args[2:])
		os.Exit(rc)
	case "import":
		rc := runImport(os.Args[2:])
		os.Exit(rc)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\nUsage: carton-backup <export|import> [flags]\n", command)
		os.Exit(1)
	}
}

func runExport(args []string) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "carton.yaml", "Config file path")
	directory := fs.String("directory", "", "Storage directory (overrides config)")
	output := fs.String("output", "-", "Output file path (- for stdout)")
	buckets := fs.String("buckets", "", "Comma-separated bucket names (default: all)")
	fs.Parse(args)

	s, err := openStore(*configPath, *directory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		return 1
	}

	opts := &serialization.ExportOptions{}
	if *buckets != "" {
		for _, name := range strings.Split(*buckets, ",") {
			opts.Buckets = append(opts.Buckets, strings.TrimSpace(name))
		}
	}

	out := os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output: %v\n", err)
			return 1
		}
		defer f.Close()
		out = f
	}

	if err := serialization.Export(s, opts, out); err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting: %v\n", err)
		return 1
	}
	if *output != "-" {
		fmt.Fprintf(os.Stderr, "Exported to %s\n", *output)
	}

	return 0
}

func runImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", "carton.yaml", "Config file path")
	directory := fs.String("directory", "", "Storage directory (overrides config)")
	input := fs.String("input", "-", "Input file path (- for stdin)")
	replace := fs.Bool("replace", false, "Overwrite objects that already exist")
	fs.Parse(args)

	s, err := openStore(*configPath, *directory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		return 1
	}

	in := os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			return 1
		}
		defer f.Close()
		in = f
	}

	result, err := serialization.Import(s, &serialization.ImportOptions{Replace: *replace}, in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
		return 1
	}

	msg := fmt.Sprintf("  %d buckets created, %d objects imported", result.Buckets, result.Objects)
	if result.Skipped > 0 {
		msg += fmt.Sprintf(", %d skipped", result.Skipped)
	}
	fmt.Fprintln(os.Stderr, msg)

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "  WARNING: %s\n", w)
	}

	return 0
}
