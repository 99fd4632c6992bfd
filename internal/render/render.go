// Package render regenerates unit segments inside the destination file.
//
// Each unit owns one delimited segment of the destination:
//
//	-- svsync:begin Druid
//	-- file: main.lua
//	...
//	-- file: Druid/core.lua
//	...
//	-- svsync:end Druid
//
// A segment holds the shared root-level files followed by the unit's own
// files, each in sorted order. Syncing a set of units replaces exactly those
// segments and leaves every other byte of the destination untouched, so the
// same sources and the same destination always produce the same output.
//
// The begin and end marker lines are reserved: a source file containing one
// is rejected with ErrReservedMarker, since it would cut its segment short
// on the next merge.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/diddy-rotations/svsync/internal/units"
)

const (
	beginPrefix = "-- svsync:begin "
	endPrefix   = "-- svsync:end "
	filePrefix  = "-- file: "
)

// ErrReservedMarker indicates a source file contains a segment marker line.
var ErrReservedMarker = errors.New("source contains a reserved segment marker")

// Renderer writes unit segments for one source root into one destination.
type Renderer struct {
	root        string
	destination string
	discoverer  *units.Discoverer
	logger      *log.Logger
}

// New creates a Renderer. If logger is nil, a default logger writing to
// stderr is used.
func New(root, destination string, discoverer *units.Discoverer, logger *log.Logger) *Renderer {
	if logger == nil {
		logger = log.New(os.Stderr, "[render] ", log.LstdFlags)
	}
	return &Renderer{
		root:        root,
		destination: destination,
		discoverer:  discoverer,
		logger:      logger,
	}
}

// Destination returns the file the renderer writes.
func (r *Renderer) Destination() string {
	return r.destination
}

// SyncUnits regenerates the segments of the named units in the destination.
// The destination is created if it does not exist.
func (r *Renderer) SyncUnits(ctx context.Context, names []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	existing, err := os.ReadFile(r.destination)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read destination: %w", err)
	}

	segments := make(map[string]string, len(names))
	for _, name := range names {
		if _, done := segments[name]; done {
			continue
		}
		seg, err := r.Segment(name)
		if err != nil {
			return err
		}
		segments[name] = seg
	}

	out := Merge(string(existing), segments)
	if err := writeAtomic(r.destination, []byte(out)); err != nil {
		return err
	}

	r.logger.Printf("Synced %d unit(s) to %s (%d bytes)", len(segments), r.destination, len(out))
	return nil
}

// Segment renders the full segment for one unit, markers included.
func (r *Renderer) Segment(name string) (string, error) {
	shared, err := r.discoverer.Shared(r.root)
	if err != nil {
		return "", err
	}
	modules, err := r.discoverer.Modules(r.root, name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString(beginPrefix + name + "\n")
	for _, rel := range append(shared, modules...) {
		data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(rel)))
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", rel, err)
		}
		if line := reservedLine(data); line > 0 {
			return "", fmt.Errorf("%w: %s line %d", ErrReservedMarker, rel, line)
		}
		buf.WriteString(filePrefix + rel + "\n")
		buf.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.WriteString(endPrefix + name + "\n")
	return buf.String(), nil
}

// part is either literal text or an existing unit segment.
type part struct {
	unit string
	text string
}

// Merge replaces the segments named in segments within doc. Units with no
// segment in doc are appended in sorted order.
func Merge(doc string, segments map[string]string) string {
	parts := split(doc)

	seen := make(map[string]bool, len(segments))
	var b strings.Builder
	for _, p := range parts {
		if seg, ok := segments[p.unit]; ok && p.unit != "" {
			b.WriteString(seg)
			seen[p.unit] = true
			continue
		}
		b.WriteString(p.text)
	}

	var missing []string
	for name := range segments {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)

	for _, name := range missing {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
		b.WriteString(segments[name])
	}
	return b.String()
}

// Units returns the names of the segments present in doc, in file order.
func Units(doc string) []string {
	var names []string
	for _, p := range split(doc) {
		if p.unit != "" {
			names = append(names, p.unit)
		}
	}
	return names
}

func split(doc string) []part {
	lines := strings.SplitAfter(doc, "\n")
	var parts []part
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			parts = append(parts, part{text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(lines); i++ {
		name, ok := marker(lines[i], beginPrefix)
		if !ok {
			text.WriteString(lines[i])
			continue
		}

		end := -1
		for j := i + 1; j < len(lines); j++ {
			if n, ok := marker(lines[j], endPrefix); ok && n == name {
				end = j
				break
			}
		}
		if end < 0 {
			// Unterminated segments are kept as plain text.
			text.WriteString(lines[i])
			continue
		}

		flush()
		parts = append(parts, part{unit: name, text: strings.Join(lines[i:end+1], "")})
		i = end
	}
	flush()
	return parts
}

// reservedLine returns the 1-based number of the first marker line in data,
// or 0 if there is none.
func reservedLine(data []byte) int {
	for i, line := range strings.Split(string(data), "\n") {
		if _, ok := marker(line, beginPrefix); ok {
			return i + 1
		}
		if _, ok := marker(line, endPrefix); ok {
			return i + 1
		}
	}
	return 0
}

func marker(line, prefix string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	name := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	return name, name != ""
}

// writeAtomic replaces path via a temp file in the same directory so
// readers never observe a partial write.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace destination: %w", err)
	}
	return nil
}
