// Package config loads and hot-reloads the control plane's static
// configuration: offer-layer backend selection, repository backend,
// Kafka/Redis endpoints, and the kill, GC, reservation, scheduler,
// leader-election and metrics settings. Reload uses an fsnotify.Watcher on
// the file's containing directory (not recursive), filtered to events for
// that one file.
package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"sigs.k8s.io/yaml"
)

// Config is the top-level YAML document (parsed through sigs.k8s.io/yaml,
// so it carries the same json tags the rest of the stack's apimachinery
// types use).
type Config struct {
	OfferLayer struct {
		Backend string            `json:"backend"`
		Options map[string]string `json:"options,omitempty"`
	} `json:"offerLayer"`

	Repository struct {
		Backend     string `json:"backend"` // "memory" | "postgres"
		PostgresDSN string `json:"postgresDSN,omitempty"`
	} `json:"repository"`

	Redis struct {
		Addr string `json:"addr"`
	} `json:"redis"`

	Kafka struct {
		Brokers []string `json:"brokers"`
		Topic   string   `json:"topic"`
	} `json:"kafka"`

	Kill struct {
		ChunkSize    int `json:"chunkSize"`
		RetrySeconds int `json:"retrySeconds"`
	} `json:"kill"`

	Gc struct {
		IntervalSeconds int `json:"intervalSeconds"` // Resting -> ReadyForGc timer; <=0 starts directly in ReadyForGc
		MaxVersions     int `json:"maxVersions"`      // per run-spec app/pod version history to retain
		MaxRootVersions int `json:"maxRootVersions"`
	} `json:"gc"`

	Reservation struct {
		SweepIntervalSeconds int `json:"sweepIntervalSeconds"` // how often timed-out reservations are advanced
		ExpungeAfterSeconds  int `json:"expungeAfterSeconds"`  // Garbage state's deadline before expunging
	} `json:"reservation"`

	Scheduler struct {
		ScaleIntervalSeconds int `json:"scaleIntervalSeconds"`
		PollIntervalMillis   int `json:"pollIntervalMillis"`
	} `json:"scheduler"`

	LeaderElection struct {
		Kubeconfig string `json:"kubeconfig,omitempty"` // empty runs single-instance, no election
		Namespace  string `json:"namespace"`
		Name       string `json:"name"`
	} `json:"leaderElection"`

	MetricsAddr string `json:"metricsAddr"` // host:port the /metrics and /healthz server binds
}

// Load reads and parses path once, with no watch.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watcher holds the live Config plus an fsnotify watch on its source file,
// swapping in a freshly parsed Config on every write event. A parse
// failure on reload is dropped silently in favor of the last-good config:
// the caller's onReload callback, if any, only fires on success.
type Watcher struct {
	mu       sync.RWMutex
	cfg      *Config
	path     string
	fsw      *fsnotify.Watcher
	onReload func(*Config)
}

// NewWatcher loads path and starts watching its containing directory
// (fsnotify watches directories, not bare files, to survive editors that
// replace the file via rename rather than in-place write).
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{cfg: cfg, path: path, fsw: fsw, onReload: onReload}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		abs = w.path
	}
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			evAbs, _ := filepath.Abs(ev.Name)
			if evAbs != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				continue
			}
			w.mu.Lock()
			w.cfg = cfg
			w.mu.Unlock()
			if w.onReload != nil {
				w.onReload(cfg)
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

func (w *Watcher) Close() error { return w.fsw.Close() }
