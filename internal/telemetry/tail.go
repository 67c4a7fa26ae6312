package telemetry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// #region follow

// Follow decodes frames appended to the JSONL file at path and passes each to
// fn until ctx is done. With fromStart false, existing lines are skipped.
// Malformed lines are logged and skipped. A removed or renamed file ends the
// follow with an error.
func Follow(ctx context.Context, path string, fromStart bool, fn func(Frame)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("follow %s: %w", path, err)
	}
	defer f.Close()

	if !fromStart {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return fmt.Errorf("follow %s: seek: %w", path, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("follow %s: watcher: %w", path, err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("follow %s: watch: %w", path, err)
	}

	lr := &lineReader{r: bufio.NewReader(f), fn: fn}
	lr.drain()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) {
				lr.drain()
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				return fmt.Errorf("follow %s: file removed", path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("follow %s: %w", path, err)
		}
	}
}

// lineReader splits appended bytes into complete lines, holding back a
// trailing partial line until its newline arrives.
type lineReader struct {
	r       *bufio.Reader
	pending string
	fn      func(Frame)
}

func (lr *lineReader) drain() {
	for {
		chunk, err := lr.r.ReadString('\n')
		if err != nil {
			lr.pending += chunk
			if !errors.Is(err, io.EOF) {
				log.Printf("[SINK] follow read: %v", err)
			}
			return
		}
		line := strings.TrimSpace(lr.pending + chunk)
		lr.pending = ""
		if line == "" {
			continue
		}
		frame, err := Decode([]byte(line))
		if err != nil {
			log.Printf("[SINK] follow: skipping malformed line: %v", err)
			continue
		}
		lr.fn(frame)
	}
}

// #endregion follow
