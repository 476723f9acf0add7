package storage

import (
	"github.com/fsnotify/fsnotify"
)

// fsnotifyPickupNotifier is the production PickupNotifier, watching the
// registry's fallback directory (§4.10) for newly created ".retry"
// files and republishing their paths on a plain string channel so
// callers don't need to depend on fsnotify's event type.
type fsnotifyPickupNotifier struct {
	watcher *fsnotify.Watcher
	events  chan string
}

// NewFallbackDirNotifier watches dir for file creations, surfacing each
// new path on the returned PickupNotifier's Events channel.
func NewFallbackDirNotifier(dir string) (PickupNotifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	n := &fsnotifyPickupNotifier{watcher: w, events: make(chan string, 16)}
	go n.run()
	return n, nil
}

func (n *fsnotifyPickupNotifier) run() {
	defer close(n.events)
	for event := range n.watcher.Events {
		if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
			select {
			case n.events <- event.Name:
			default:
				// slow consumer: drop rather than block the watcher loop.
			}
		}
	}
}

func (n *fsnotifyPickupNotifier) Events() <-chan string { return n.events }

func (n *fsnotifyPickupNotifier) Close() error {
	return n.watcher.Close()
}
