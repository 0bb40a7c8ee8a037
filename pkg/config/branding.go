package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/mindara-hq/eventdesk/pkg/observability"
)

// Branding holds the tenant-facing presentation settings loaded from a
// YAML file. Everything here is cosmetic; access rules never live in
// this file.
type Branding struct {
	OrgName      string `yaml:"org_name"`
	LogoURL      string `yaml:"logo_url"`
	SupportEmail string `yaml:"support_email"`
	PrimaryColor string `yaml:"primary_color"`
	Locale       string `yaml:"locale"`
}

// DefaultBranding returns the branding used when no file is configured
func DefaultBranding() Branding {
	return Branding{
		OrgName:      "EventDesk",
		PrimaryColor: "#1f6feb",
		Locale:       "es-MX",
	}
}

// LoadBranding reads the branding YAML file. A missing path returns the
// defaults without error.
func LoadBranding(path string) (Branding, error) {
	branding := DefaultBranding()
	if path == "" {
		return branding, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return branding, fmt.Errorf("reading branding file: %w", err)
	}
	if err := yaml.Unmarshal(data, &branding); err != nil {
		return branding, fmt.Errorf("parsing branding file: %w", err)
	}
	return branding, nil
}

// BrandingWatcher serves the branding loaded at startup and watches the
// file for edits. Configuration is fixed for the lifetime of the
// process, so a detected change is only logged as requiring a restart;
// the served values never change underneath running requests.
type BrandingWatcher struct {
	current Branding
	path    string
	logger  *observability.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stale   bool
}

// NewBrandingWatcher loads the branding file and begins watching it.
// With an empty path the watcher is inert and serves defaults.
func NewBrandingWatcher(path string, logger *observability.Logger) (*BrandingWatcher, error) {
	branding, err := LoadBranding(path)
	if err != nil {
		return nil, err
	}

	bw := &BrandingWatcher{
		current: branding,
		path:    path,
		logger:  logger,
	}

	if path == "" {
		return bw, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating branding watcher: %w", err)
	}
	// watch the directory so editor rename-and-replace saves are seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching branding directory: %w", err)
	}

	bw.watcher = watcher
	go bw.watch()
	return bw, nil
}

// Current returns the branding loaded at startup
func (bw *BrandingWatcher) Current() Branding {
	return bw.current
}

// Stale reports whether the file has changed since startup
func (bw *BrandingWatcher) Stale() bool {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return bw.stale
}

// Close stops the file watcher
func (bw *BrandingWatcher) Close() error {
	if bw.watcher == nil {
		return nil
	}
	return bw.watcher.Close()
}

func (bw *BrandingWatcher) watch() {
	for {
		select {
		case event, ok := <-bw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(bw.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			bw.mu.Lock()
			first := !bw.stale
			bw.stale = true
			bw.mu.Unlock()
			if first {
				bw.logger.WithField("path", bw.path).
					Warn("branding file changed on disk; restart required to apply")
			}
		case err, ok := <-bw.watcher.Errors:
			if !ok {
				return
			}
			bw.logger.WithError(err).Warn("branding watcher error")
		}
	}
}
