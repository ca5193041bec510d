package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/mohammad-safakhou/prosora/models"
)

// SourceDescriptor is one entry in the curated source file. Kept loose on
// purpose: malformed entries are reported and skipped, never fatal.
type SourceDescriptor struct {
	ID              string   `yaml:"id"`
	URI             string   `yaml:"uri"`
	Tier            string   `yaml:"tier"`
	Credibility     float64  `yaml:"credibility"`
	DomainTags      []string `yaml:"domain_tags"`
	RefreshInterval string   `yaml:"refresh_interval"`
}

// Vocabulary drives keyword-based domain classification and entity/topic
// extraction. No deep NLP: phrase matching only.
type Vocabulary struct {
	Domains  map[string][]string `yaml:"domains"`
	Entities map[string][]string `yaml:"entities"`
	Topics   map[string][]string `yaml:"topics"`
}

// SourceFile is the on-disk shape of the curated source configuration.
type SourceFile struct {
	Sources    []SourceDescriptor `yaml:"sources"`
	Vocabulary Vocabulary         `yaml:"vocabulary"`
}

// LoadSourceFile parses the curated source file, returning only the valid
// sources. Malformed descriptors are logged and skipped.
func LoadSourceFile(path string, logger *log.Logger) ([]models.Source, Vocabulary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, Vocabulary{}, fmt.Errorf("reading source file: %w", err)
	}
	var file SourceFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, Vocabulary{}, fmt.Errorf("parsing source file: %w", err)
	}

	var out []models.Source
	for i, desc := range file.Sources {
		src, err := desc.toSource()
		if err != nil {
			if logger != nil {
				logger.Printf("skipping source entry %d (%s): %v", i, desc.ID, err)
			}
			continue
		}
		out = append(out, src)
	}
	return out, file.Vocabulary, nil
}

func (d SourceDescriptor) toSource() (models.Source, error) {
	if d.ID == "" {
		return models.Source{}, fmt.Errorf("missing id")
	}
	if d.URI == "" {
		return models.Source{}, fmt.Errorf("missing uri")
	}
	tier := models.SourceTier(d.Tier)
	switch tier {
	case models.SourceTierPremium, models.SourceTierStandard, models.SourceTierExperimental:
	default:
		return models.Source{}, fmt.Errorf("unknown tier %q", d.Tier)
	}
	if d.Credibility < 0 || d.Credibility > 1 {
		return models.Source{}, fmt.Errorf("credibility %v out of [0,1]", d.Credibility)
	}
	refresh := 6 * time.Hour
	if d.RefreshInterval != "" {
		parsed, err := time.ParseDuration(d.RefreshInterval)
		if err != nil {
			return models.Source{}, fmt.Errorf("bad refresh_interval %q: %w", d.RefreshInterval, err)
		}
		refresh = parsed
	}
	tags := make([]models.Domain, 0, len(d.DomainTags))
	for _, t := range d.DomainTags {
		tags = append(tags, models.Domain(t))
	}
	return models.Source{
		ID:              d.ID,
		URI:             d.URI,
		Tier:            tier,
		Credibility:     d.Credibility,
		DomainTags:      tags,
		RefreshInterval: refresh,
	}, nil
}

// WatchSourceFile reloads the source file whenever it changes on disk and
// hands the result to onReload. Returns a stop function.
func WatchSourceFile(path string, logger *log.Logger, onReload func([]models.Source, Vocabulary)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}
	target := filepath.Clean(path)

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				sources, vocab, err := LoadSourceFile(path, logger)
				if err != nil {
					logger.Printf("source file reload failed: %v", err)
					continue
				}
				logger.Printf("source file reloaded: %d sources", len(sources))
				onReload(sources, vocab)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Printf("source file watcher error: %v", err)
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}
