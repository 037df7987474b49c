package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/storekit/storekit/provider"
	"github.com/storekit/storekit/upload"
)

// OptionsWatcher reloads image options from a JSON file whenever it changes.
type OptionsWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchOptions watches optionsFile for changes and pushes the decoded
// options into the registry. The file holds a JSON object keyed by
// provider ID:
//
//	{"local": {"createThumbnail": true, "thumbnailMaxWidth": 256}}
//
// Unknown provider IDs are logged and skipped. This should be called once,
// typically in development mode.
func WatchOptions(registry *provider.Registry, optionsFile string) (*OptionsWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory so editors that replace the file are seen
	if err := watcher.Add(filepath.Dir(optionsFile)); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &OptionsWatcher{watcher: watcher, done: make(chan struct{})}
	base := filepath.Base(optionsFile)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && filepath.Base(event.Name) == base {
					if err := applyOptionsFile(registry, event.Name); err != nil {
						log.Printf("[config] Reload %s: %v", base, err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[config] Watcher error: %v", err)
			case <-w.done:
				return
			}
		}
	}()

	return w, nil
}

// Close stops watching. Safe to call once.
func (w *OptionsWatcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func applyOptionsFile(registry *provider.Registry, name string) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	var byProvider map[string]upload.ImageOptions
	if err := json.Unmarshal(data, &byProvider); err != nil {
		return err
	}
	for id, opts := range byProvider {
		d, ok := registry.ByID(id)
		if !ok {
			log.Printf("[config] Unknown provider %q in %s", id, filepath.Base(name))
			continue
		}
		registry.TryUpdateOptions(id, mergeImageOptions(d.Options, opts))
	}
	return nil
}

// mergeImageOptions swaps only the image block of a typed descriptor
// payload. Backend settings such as roots, buckets and credentials stay
// untouched; an untyped payload is replaced wholesale.
func mergeImageOptions(existing any, opts upload.ImageOptions) any {
	switch p := existing.(type) {
	case LocalOptions:
		p.Images = opts
		return p
	case S3Options:
		p.Images = opts
		return p
	case SFTPOptions:
		p.Images = opts
		return p
	case MemoryOptions:
		p.Images = opts
		return p
	default:
		return opts
	}
}
