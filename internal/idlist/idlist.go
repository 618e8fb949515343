// Package idlist persists ordered, duplicate-free identifier lists as flat
// newline-delimited files. Stages read their todo list, diff it against their
// done list, and merge finished identifiers back into the done list.
//
// Writes always go through a temp file in the same directory followed by a
// rename, so concurrent readers observe either the old or the new list and
// never a partially written one.
package idlist

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/scqc/internal/atomicfile"
)

// disabledPath is the configured value that turns one side of a stage off.
const disabledPath = "none"

// ParsePath normalizes a configured list path. Empty values and "none" (any
// case) disable the list; a leading "~" expands to the user's home directory.
func ParsePath(raw string) (string, bool) {
	path := strings.TrimSpace(raw)
	if path == "" || strings.EqualFold(path, disabledPath) {
		return "", false
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path, true
}

// Read loads the list stored at path. A missing file is an empty list. Blank
// lines are skipped and repeated identifiers keep their first position.
func Read(path string) ([]string, error) {
	// #nosec G304 -- list paths come from operator configuration.
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("open list %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	ids, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("read list %s: %w", path, err)
	}
	return ids, nil
}

func parse(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return Dedupe(ids), nil
}

// Write atomically replaces the list at path with ids, one per line.
func Write(path string, ids []string) error {
	var buf bytes.Buffer
	for _, id := range Dedupe(ids) {
		buf.WriteString(id)
		buf.WriteByte('\n')
	}
	if err := atomicfile.Write(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write list %s: %w", path, err)
	}
	return nil
}

// Diff returns the elements of todo that are not present in done, in todo order.
func Diff(todo, done []string) []string {
	seen := make(map[string]struct{}, len(done))
	for _, id := range done {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(todo))
	for _, id := range todo {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Merge returns the union of a and b in first-seen order (a first, then b).
func Merge(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Dedupe drops repeated identifiers, keeping the first occurrence.
func Dedupe(ids []string) []string {
	return Merge(ids, nil)
}
