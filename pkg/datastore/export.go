package datastore

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

const exportPageSize = 500

type exportDocument struct {
	ExportedAt time.Time     `yaml:"exported_at"`
	Count      int           `yaml:"count"`
	Messages   []exportEntry `yaml:"messages"`
}

type exportEntry struct {
	ID        int64     `yaml:"id"`
	Timestamp int64     `yaml:"timestamp"`
	Time      time.Time `yaml:"time"`
	Sender    string    `yaml:"sender"`
	Content   string    `yaml:"content"`
}

// ExportMessagesYAML writes every archived message matching filters to w as
// a YAML document. PageSize and Offset in filters are ignored; the export
// pages through the whole archive.
func ExportMessagesYAML(ctx context.Context, store DataStore, filters MessageFilters, w io.Writer, now time.Time) error {
	doc := exportDocument{ExportedAt: now.UTC(), Messages: []exportEntry{}}

	pageSize := int64(exportPageSize)
	var offset int64
	for {
		page := filters
		page.PageSize = &pageSize
		off := offset
		page.Offset = &off

		records, err := store.ListMessages(ctx, page)
		if err != nil {
			return fmt.Errorf("datastore: export: %w", err)
		}
		for _, r := range records {
			doc.Messages = append(doc.Messages, exportEntry{
				ID:        r.ID,
				Timestamp: r.Timestamp,
				Time:      r.Time().UTC(),
				Sender:    r.Sender,
				Content:   r.Content,
			})
		}
		if int64(len(records)) < pageSize {
			break
		}
		offset += pageSize
	}
	doc.Count = len(doc.Messages)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("datastore: export: encode: %w", err)
	}
	return enc.Close()
}
