package reconciler

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"shipyard/internal/api"
	"shipyard/pkg/logging"
)

// watchRoot is a directory whose files map to one resource type.
//
// Flat roots hold one file per resource, named after it. Recursive roots
// name the resource after the first directory below the root, so a change
// anywhere in templates/webapp/v2/ is a change of the webapp templates.
type watchRoot struct {
	resourceType ResourceType
	path         string
	recursive    bool
}

// FilesystemDetector implements ChangeDetector for YAML files on disk.
type FilesystemDetector struct {
	mu sync.RWMutex

	roots   []watchRoot
	watcher *fsnotify.Watcher

	debounceInterval time.Duration
	pendingEvents    map[string]*debounceEntry

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

type debounceEntry struct {
	event ChangeEvent
	timer *time.Timer
}

// NewFilesystemDetector creates a detector without roots.
func NewFilesystemDetector(debounceInterval time.Duration) *FilesystemDetector {
	if debounceInterval <= 0 {
		debounceInterval = 500 * time.Millisecond
	}
	return &FilesystemDetector{
		debounceInterval: debounceInterval,
		pendingEvents:    make(map[string]*debounceEntry),
	}
}

// AddRoot watches path for resources of resourceType. Roots must be added
// before Start.
func (d *FilesystemDetector) AddRoot(resourceType ResourceType, path string, recursive bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roots = append(d.roots, watchRoot{resourceType: resourceType, path: filepath.Clean(path), recursive: recursive})
}

// Start begins watching every root. Missing root directories are created.
func (d *FilesystemDetector) Start(ctx context.Context, changes chan<- ChangeEvent) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.watcher = watcher
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.running = true
	roots := append([]watchRoot(nil), d.roots...)
	d.mu.Unlock()

	for _, root := range roots {
		err := os.MkdirAll(root.path, 0755)
		if err == nil {
			err = watchTree(watcher, root.path, root.recursive)
		}
		if err != nil {
			_ = watcher.Close()
			d.mu.Lock()
			d.running = false
			d.watcher = nil
			d.mu.Unlock()
			return err
		}
		logging.Info(api.SubsystemReconciler, "Watching %s for %s changes", root.path, root.resourceType)
	}

	go d.processEvents(ctx, watcher, changes)
	return nil
}

// watchTree adds a watch for dir and, when recursive, every directory below it.
func watchTree(watcher *fsnotify.Watcher, dir string, recursive bool) error {
	if !recursive {
		return watcher.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		logging.Debug(api.SubsystemReconciler, "Watching directory %s", path)
		return watcher.Add(path)
	})
}

func (d *FilesystemDetector) processEvents(ctx context.Context, watcher *fsnotify.Watcher, changes chan<- ChangeEvent) {
	defer close(d.doneCh)
	defer d.cleanupPendingEvents()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			d.handleFsEvent(watcher, event, changes)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error(api.SubsystemReconciler, err, "Filesystem watcher error")
		}
	}
}

func (d *FilesystemDetector) handleFsEvent(watcher *fsnotify.Watcher, event fsnotify.Event, changes chan<- ChangeEvent) {
	root, ok := d.rootFor(event.Name)
	if !ok {
		return
	}

	if root.recursive && event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := watchTree(watcher, event.Name, true); err != nil {
				logging.Warn(api.SubsystemReconciler, "Failed to watch %s: %v", event.Name, err)
			}
			d.emitFor(root, event.Name, OperationCreate, changes)
			return
		}
	}

	removed := event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
	if !isYAMLFile(event.Name) && !(root.recursive && removed) {
		return
	}

	var operation ChangeOperation
	switch {
	case event.Has(fsnotify.Create):
		operation = OperationCreate
	case event.Has(fsnotify.Write):
		operation = OperationUpdate
	case removed:
		// the new name of a rename arrives as a Create
		operation = OperationDelete
	default:
		return
	}
	d.emitFor(root, event.Name, operation, changes)
}

func (d *FilesystemDetector) emitFor(root watchRoot, path string, operation ChangeOperation, changes chan<- ChangeEvent) {
	name := resourceName(root, path)
	if name == "" {
		return
	}
	d.debounceEvent(ChangeEvent{
		Type:      root.resourceType,
		Name:      name,
		Operation: operation,
		Timestamp: time.Now(),
		Source:    SourceFilesystem,
		FilePath:  path,
	}, changes)
}

// debounceEvent delays an event until no further change of the same
// resource arrived for the debounce interval.
func (d *FilesystemDetector) debounceEvent(event ChangeEvent, changes chan<- ChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := string(event.Type) + "/" + event.Name
	if entry, ok := d.pendingEvents[key]; ok {
		entry.timer.Stop()
		event.Operation = mergeOperations(entry.event.Operation, event.Operation)
	}

	entry := &debounceEntry{event: event}
	entry.timer = time.AfterFunc(d.debounceInterval, func() {
		d.mu.Lock()
		current, ok := d.pendingEvents[key]
		if ok && current == entry {
			delete(d.pendingEvents, key)
		}
		d.mu.Unlock()
		if !ok || current != entry {
			return
		}

		select {
		case changes <- entry.event:
			logging.Debug(api.SubsystemReconciler, "Emitted %s %s/%s", entry.event.Operation, entry.event.Type, entry.event.Name)
		default:
			logging.Warn(api.SubsystemReconciler, "Change event channel full, dropping event for %s/%s",
				entry.event.Type, entry.event.Name)
		}
	})
	d.pendingEvents[key] = entry
}

// mergeOperations folds two successive operations on one resource.
func mergeOperations(prev, next ChangeOperation) ChangeOperation {
	switch {
	case next == OperationDelete:
		return OperationDelete
	case prev == OperationCreate:
		return OperationCreate
	case prev == OperationDelete && next == OperationCreate:
		// replaced by an editor writing a new file
		return OperationUpdate
	default:
		return next
	}
}

func (d *FilesystemDetector) rootFor(path string) (watchRoot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, root := range d.roots {
		rel, err := filepath.Rel(root.path, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		return root, true
	}
	return watchRoot{}, false
}

// resourceName maps a path below root to the resource it belongs to, or ""
// when it belongs to none.
func resourceName(root watchRoot, path string) string {
	rel, err := filepath.Rel(root.path, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.Split(rel, string(filepath.Separator))

	if root.recursive {
		if strings.HasPrefix(parts[0], ".") || (len(parts) == 1 && isYAMLFile(parts[0])) {
			return ""
		}
		return parts[0]
	}

	if len(parts) != 1 || !isYAMLFile(parts[0]) {
		return ""
	}
	name := strings.TrimSuffix(parts[0], filepath.Ext(parts[0]))
	if strings.HasPrefix(name, ".") {
		return ""
	}
	return name
}

func (d *FilesystemDetector) cleanupPendingEvents() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, entry := range d.pendingEvents {
		entry.timer.Stop()
	}
	d.pendingEvents = make(map[string]*debounceEntry)
}

// Stop stops watching and waits for the event loop to exit.
func (d *FilesystemDetector) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.stopCh)
	watcher := d.watcher
	d.watcher = nil
	d.mu.Unlock()

	err := watcher.Close()
	select {
	case <-d.doneCh:
	case <-time.After(time.Second):
	}
	if err != nil {
		logging.Error(api.SubsystemReconciler, err, "Error closing filesystem watcher")
	}
	return err
}

// GetSource implements ChangeDetector.
func (d *FilesystemDetector) GetSource() ChangeSource {
	return SourceFilesystem
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
