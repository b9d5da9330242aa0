// Package store persists crawl output as NDJSON files, the hand-off format
// between the crawl and export stages.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jonesrussell/ml-inventory/internal/domain"
)

// maxLineBytes bounds a single NDJSON record; detail attribute bags can get
// large but not this large.
const maxLineBytes = 4 * 1024 * 1024

// WriteItems writes items to path as NDJSON, replacing any existing file.
func WriteItems(path string, items []*domain.Item) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, item := range items {
		if encodeErr := enc.Encode(item); encodeErr != nil {
			return fmt.Errorf("encode item %s: %w", item.ChannelItemID, encodeErr)
		}
	}

	if flushErr := w.Flush(); flushErr != nil {
		return fmt.Errorf("flush %s: %w", path, flushErr)
	}
	return f.Close()
}

// AppendItems appends items to path, creating the file when missing.
func AppendItems(path string, items []*domain.Item) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, item := range items {
		if encodeErr := enc.Encode(item); encodeErr != nil {
			return fmt.Errorf("encode item %s: %w", item.ChannelItemID, encodeErr)
		}
	}

	return f.Close()
}

// ReadItems reads an NDJSON item file. Blank lines are skipped; a malformed
// line fails the read rather than being dropped silently.
func ReadItems(path string) ([]*domain.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var items []*domain.Item

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var item domain.Item
		if unmarshalErr := json.Unmarshal(line, &item); unmarshalErr != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, lineNo, unmarshalErr)
		}
		items = append(items, &item)
	}

	if scanErr := scanner.Err(); scanErr != nil {
		return nil, fmt.Errorf("read %s: %w", path, scanErr)
	}

	return items, nil
}
