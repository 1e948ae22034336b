package history

import (
	"fmt"
	"sort"
	"time"

	"server/internal/storage"
)

// LibraryItem is one artifact in a library view: the file on disk enriched
// with whatever ledger metadata exists for its filename.
type LibraryItem struct {
	Filename  string         `json:"filename"`
	URL       string         `json:"url"`
	Prompt    string         `json:"prompt,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Params    map[string]any `json:"params,omitempty"`
}

// DayGroup collects the items of one calendar day, newest first.
type DayGroup struct {
	Date  string        `json:"date"`
	Items []LibraryItem `json:"items"`
}

// LibraryPage is one page of day groups plus the cursor for the next page.
// NextCursor is empty when no earlier days remain.
type LibraryPage struct {
	Groups     []DayGroup `json:"groups"`
	NextCursor string     `json:"next_cursor,omitempty"`
	Total      int        `json:"total"`
}

// LibraryQuery selects a page. Days bounds the first page, LimitDays every
// cursor-driven page after it. Before is a YYYY-MM-DD anchor; only files from
// strictly earlier days are returned. Tier optionally filters images by the
// generation tier recorded in their params.
type LibraryQuery struct {
	Days      int
	Before    string
	LimitDays int
	Tier      string
}

// defaultTier classifies ledger records without a tier tag. Older records
// predate tier tracking and must keep showing up somewhere.
const defaultTier = "standard"

// Library derives the day-grouped view for one artifact kind by joining the
// output directory with the ledger. The directory scan decides which files
// exist; the ledger only contributes prompts and params. Files deleted out
// from under the ledger disappear from the view, files dropped in by hand
// appear without metadata.
type Library struct {
	store      *Store
	files      *storage.FileStore
	recordType string
	urlPrefix  string
	exts       []string
}

// NewLibrary wires a library view over the given file store. exts are the
// lowercase extensions (dot included) that count as artifacts of this kind.
func NewLibrary(store *Store, files *storage.FileStore, recordType, urlPrefix string, exts ...string) *Library {
	return &Library{
		store:      store,
		files:      files,
		recordType: recordType,
		urlPrefix:  urlPrefix,
		exts:       exts,
	}
}

// Build runs the reconciliation and returns one page of day groups.
func (l *Library) Build(q LibraryQuery) (*LibraryPage, error) {
	var before time.Time
	if q.Before != "" {
		parsed, err := time.ParseInLocation("2006-01-02", q.Before, time.Local)
		if err != nil {
			return nil, fmt.Errorf("history: invalid before date %q", q.Before)
		}
		before = parsed
	}

	meta, err := l.metadataByFilename()
	if err != nil {
		return nil, err
	}

	entries, err := l.files.List(l.exts...)
	if err != nil {
		return nil, err
	}

	var items []LibraryItem
	for _, entry := range entries {
		y, m, d := entry.ModTime.In(time.Local).Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, time.Local)
		if !before.IsZero() && !day.Before(before) {
			continue
		}

		item := LibraryItem{
			Filename:  entry.Name,
			URL:       l.urlPrefix + entry.Name,
			CreatedAt: entry.ModTime,
		}
		if record, ok := meta[entry.Name]; ok {
			item.Prompt = record.Prompt
			item.Params = record.Params
		}
		if q.Tier != "" && itemTier(item) != q.Tier {
			continue
		}
		items = append(items, item)
	}
	total := len(items)

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	var groups []DayGroup
	for _, item := range items {
		day := item.CreatedAt.In(time.Local).Format("2006-01-02")
		if n := len(groups); n > 0 && groups[n-1].Date == day {
			groups[n-1].Items = append(groups[n-1].Items, item)
			continue
		}
		groups = append(groups, DayGroup{Date: day, Items: []LibraryItem{item}})
	}

	pageDays := q.Days
	if q.Before != "" {
		pageDays = q.LimitDays
	}
	if pageDays <= 0 {
		pageDays = 7
	}

	page := &LibraryPage{Total: total}
	if len(groups) > pageDays {
		page.Groups = groups[:pageDays]
		page.NextCursor = page.Groups[len(page.Groups)-1].Date
	} else {
		page.Groups = groups
	}
	if page.Groups == nil {
		page.Groups = []DayGroup{}
	}
	return page, nil
}

// metadataByFilename builds the filename lookup from the ledger. The ledger
// is newest-first and only the first record per filename wins; a re-used
// filename shadows its older entries.
func (l *Library) metadataByFilename() (map[string]*LibraryItem, error) {
	records, _, err := l.store.List(l.recordType, 0, 0)
	if err != nil {
		return nil, err
	}
	meta := make(map[string]*LibraryItem, len(records))
	for i := range records {
		record := records[i]
		if _, seen := meta[record.Filename]; seen {
			continue
		}
		meta[record.Filename] = &LibraryItem{Prompt: record.Prompt, Params: record.Params}
	}
	return meta, nil
}

func itemTier(item LibraryItem) string {
	if item.Params != nil {
		if tier, ok := item.Params["tier"].(string); ok && tier != "" {
			return tier
		}
	}
	return defaultTier
}
