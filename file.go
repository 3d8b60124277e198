package fetchz

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FileTransport serves resources from files under a root directory. A
// resource key is a slash-separated path relative to the root.
type FileTransport struct {
	root string
}

// NewFileTransport creates a FileTransport rooted at dir.
func NewFileTransport(dir string) *FileTransport {
	return &FileTransport{root: dir}
}

// Send reads the file for key. Only reads are supported: any method other
// than GET fails with status 405. A missing file fails with status 404 and a
// key that escapes the root with status 400.
func (t *FileTransport) Send(_ context.Context, key string, opts CallOptions) ([]byte, error) {
	if opts.Method != "" && opts.Method != http.MethodGet {
		return nil, StatusError(http.StatusMethodNotAllowed)
	}
	if !filepath.IsLocal(filepath.FromSlash(key)) {
		return nil, StatusError(http.StatusBadRequest)
	}

	data, err := os.ReadFile(t.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, StatusError(http.StatusNotFound)
	}
	if err != nil {
		return nil, NetworkError(fmt.Errorf("failed to read %s: %w", key, err))
	}
	return data, nil
}

func (t *FileTransport) path(key string) string {
	return filepath.Join(t.root, filepath.FromSlash(key))
}

// FileNotifier watches a directory and emits the key of every file that is
// written, created, removed or renamed. Keys match those of a FileTransport
// rooted at the same directory. Subdirectories are not watched.
type FileNotifier struct {
	root string
}

// NewFileNotifier creates a FileNotifier for dir.
func NewFileNotifier(dir string) *FileNotifier {
	return &FileNotifier{root: dir}
}

// Notify begins watching the directory. The channel closes when ctx is done
// or the underlying watcher fails.
func (n *FileNotifier) Notify(ctx context.Context) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := watcher.Add(n.root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", n.root, err)
	}

	out := make(chan string)

	go func() {
		defer close(out)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}

				rel, err := filepath.Rel(n.root, event.Name)
				if err != nil {
					continue
				}

				select {
				case out <- filepath.ToSlash(rel):
				case <-ctx.Done():
					return
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
				// Continue watching despite errors
			}
		}
	}()

	return out, nil
}

// Ensure the file types implement their interfaces.
var (
	_ Transport = (*FileTransport)(nil)
	_ Notifier  = (*FileNotifier)(nil)
)
