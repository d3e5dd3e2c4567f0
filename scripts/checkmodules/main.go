// Command checkmodules validates a directory of JavaScript transform modules
// exactly the way the host loads them, then emits a manifest of what passed.
// With -probe every module also renders a small sample table, catching
// modules that compile cleanly but fail at render time.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/embedviz/vizframe/internal/dataset"
	"github.com/embedviz/vizframe/internal/jsmodule"
	"github.com/embedviz/vizframe/internal/observability"
)

type manifestEntry struct {
	Name        string `json:"name"`
	File        string `json:"file"`
	Hash        string `json:"hash"`
	Size        int64  `json:"size"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	Probe       string `json:"probe,omitempty"`
}

func main() {
	root := flag.String("root", "modules", "Path to the transform modules directory")
	manifest := flag.String("manifest", "", "Manifest output path (default <root>/manifest.json)")
	probe := flag.Bool("probe", false, "Render a sample table through every module")
	flag.Parse()

	observability.SetLogger(observability.NewStdLogger(
		log.New(os.Stderr, "checkmodules ", log.LstdFlags), false))

	loader, err := jsmodule.NewLoader(*root)
	if err != nil {
		fatal(err)
	}
	if err := loader.Refresh(context.Background()); err != nil {
		fatal(err)
	}

	summaries := loader.List()
	if len(summaries) == 0 {
		fatal(fmt.Errorf("no transform modules found under %s", loader.Root()))
	}

	entries := make([]manifestEntry, 0, len(summaries))
	probeErrs := make([]error, 0, len(summaries))
	for _, summary := range summaries {
		entry := manifestEntry{
			Name:        summary.Name,
			File:        summary.File,
			Hash:        summary.Hash,
			Size:        summary.Size,
			Version:     summary.Metadata.Version,
			Description: summary.Metadata.Description,
		}
		if *probe {
			result, err := probeModule(loader, summary.Name)
			if err != nil {
				probeErrs = append(probeErrs, fmt.Errorf("%s: %w", summary.Name, err))
			}
			entry.Probe = result
		}
		entries = append(entries, entry)
	}
	// Every broken module is reported in one pass rather than one per run.
	if err := observability.AggregateErrors("probe modules", probeErrs); err != nil {
		fatal(err)
	}

	target := strings.TrimSpace(*manifest)
	if target == "" {
		target = filepath.Join(loader.Root(), "manifest.json")
	}
	if err := writeManifest(target, entries); err != nil {
		fatal(err)
	}
	fmt.Printf("manifest written for %d modules under %s\n", len(entries), loader.Root())
}

// probeModule runs one render against a tiny numeric table. A note return is
// a pass: the module validly declined the sample data.
func probeModule(loader *jsmodule.Loader, name string) (string, error) {
	module, err := loader.Get(name)
	if err != nil {
		return "", err
	}
	instance, err := jsmodule.NewInstance(module)
	if err != nil {
		return "", err
	}
	defer instance.Close()

	_, note, err := instance.Render(sampleTable(), nil)
	if err != nil {
		return "", err
	}
	if note != "" {
		return "note: " + note, nil
	}
	return "document", nil
}

func sampleTable() dataset.Table {
	values := []dataset.Value{
		dataset.Number(decimal.NewFromFloat(1.5)),
		dataset.Number(decimal.NewFromFloat(3.0)),
		dataset.Number(decimal.NewFromFloat(4.5)),
	}
	return dataset.Table{Columns: []dataset.Column{{Name: "value", Values: values}}}
}

func writeManifest(target string, entries []manifestEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp manifest %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("rename manifest %s: %w", target, err)
	}
	return nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "checkmodules: %v\n", err)
	os.Exit(1)
}
