// Package watch reloads a scenario file when it changes on disk.
package watch

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/signalsfoundry/debris-avoidance-sim/core"
)

// DefaultDebounce is how long a file must stay quiet before it is reloaded.
const DefaultDebounce = 100 * time.Millisecond

// Reload carries the result of re-reading a scenario. When the reader falls
// behind, the oldest unread reloads are dropped. Err is set when the
// file is missing or invalid; Config is then the zero value.
type Reload struct {
	Path   string
	Config core.Config
	Err    error
}

// ScenarioWatcher monitors one scenario file. The containing directory is
// watched so editors that replace the file by rename are seen too.
type ScenarioWatcher struct {
	Path     string
	Debounce time.Duration
	Changes  <-chan Reload

	changes chan Reload
	done    chan struct{}
	watcher *fsnotify.Watcher
	load    func(path string) (core.Config, error)
}

// NewScenarioWatcher creates a watcher for the scenario at path.
func NewScenarioWatcher(path string) (*ScenarioWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ch := make(chan Reload, 4)
	return &ScenarioWatcher{
		Path:     abs,
		Debounce: DefaultDebounce,
		Changes:  ch,
		changes:  ch,
		done:     make(chan struct{}),
		watcher:  fw,
		load:     core.LoadScenarioFile,
	}, nil
}

// Start begins watching.
func (w *ScenarioWatcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.Path)); err != nil {
		return err
	}
	go w.loop()
	return nil
}

// Stop closes the watcher and the Changes channel.
func (w *ScenarioWatcher) Stop() {
	w.watcher.Close()
	<-w.done
	close(w.changes)
}

func (w *ScenarioWatcher) loop() {
	defer close(w.done)

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	var pending time.Time
	ticker := time.NewTicker(debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.Path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				pending = time.Now()
			}

		case now := <-ticker.C:
			if pending.IsZero() || now.Sub(pending) < debounce {
				continue
			}
			pending = time.Time{}
			w.emit()

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are non-fatal; the next event retries.
		}
	}
}

func (w *ScenarioWatcher) emit() {
	cfg, err := w.load(w.Path)
	if err != nil {
		cfg = core.Config{}
	}
	r := Reload{Path: w.Path, Config: cfg, Err: err}
	// The loop is the only sender, so dropping the oldest unread reload
	// always makes room and the send never blocks Stop.
	for {
		select {
		case w.changes <- r:
			return
		default:
		}
		select {
		case <-w.changes:
		default:
		}
	}
}
