package metadata

import (
	"fmt"
	"strings"

	"github.com/dharsanguruparan/WallDrop/internal/categories"
	"github.com/dharsanguruparan/WallDrop/internal/model"
	"github.com/dharsanguruparan/WallDrop/internal/validate"
)

// PartialPolicy controls what happens when a row only partially matches a
// file name.
type PartialPolicy string

const (
	// PartialApply merges the first partial match immediately.
	PartialApply PartialPolicy = "apply"
	// PartialConfirm reports partial matches without merging them; callers
	// apply them after operator approval.
	PartialConfirm PartialPolicy = "confirm"
	// PartialOff ignores partial matches.
	PartialOff PartialPolicy = "off"
)

// ParsePartialPolicy maps a config value to a policy, defaulting to confirm.
func ParsePartialPolicy(s string) PartialPolicy {
	switch PartialPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PartialApply:
		return PartialApply
	case PartialOff:
		return PartialOff
	default:
		return PartialConfirm
	}
}

// MatchKind tells how a row was associated with an item.
type MatchKind string

const (
	MatchExact   MatchKind = "exact"
	MatchPartial MatchKind = "partial"
)

// Match links an item to a row. Index is the position in the rows handed to
// MatchRows; Row is the 1-based data row number shown to operators.
type Match struct {
	ItemID     string    `json:"itemId"`
	SourceName string    `json:"sourceName"`
	Filename   string    `json:"filename"`
	Index      int       `json:"-"`
	Row        int       `json:"row"`
	Kind       MatchKind `json:"kind"`
	Applied    bool      `json:"applied"`
}

// Renumber rewrites Row using sheetIndex, which maps a position in the rows
// handed to MatchRows to its 0-based position in the imported sheet.
func (r *Report) Renumber(sheetIndex []int) {
	for i := range r.Matches {
		if idx := r.Matches[i].Index; idx >= 0 && idx < len(sheetIndex) {
			r.Matches[i].Row = sheetIndex[idx] + 1
		}
	}
}

// Report summarises a matching pass.
type Report struct {
	Exact     int      `json:"exact"`
	Partial   int      `json:"partial"`
	Unmatched int      `json:"unmatched"`
	Skipped   []string `json:"skippedRows"`
	Matches   []Match  `json:"matches"`
}

// Pending returns partial matches that still await confirmation.
func (r Report) Pending() []Match {
	var out []Match
	for _, m := range r.Matches {
		if !m.Applied {
			out = append(out, m)
		}
	}
	return out
}

// Summary renders the counts for operator feedback.
func (r Report) Summary() string {
	return fmt.Sprintf("%d exact, %d partial, %d unmatched, %d rows skipped", r.Exact, r.Partial, r.Unmatched, len(r.Skipped))
}

// MatchRows associates rows with items and returns updated copies. Exact
// source name matches come first; otherwise the first row, in row order, whose
// filename contains or is contained in the source name is a partial match.
// Applying the same rows twice yields the same items.
func MatchRows(items []model.QueuedItem, rows []model.CSVRow, policy PartialPolicy) ([]model.QueuedItem, Report) {
	exact := make(map[string]int, len(rows))
	for i, row := range rows {
		fn := row.Get("filename")
		if fn == "" {
			continue
		}
		if _, dup := exact[fn]; !dup {
			exact[fn] = i
		}
	}

	out := make([]model.QueuedItem, len(items))
	used := make([]bool, len(rows))
	report := Report{Matches: []Match{}}
	for i := range items {
		item := items[i]
		name := item.Source.Name
		if idx, ok := exact[name]; ok {
			item.Metadata = Merge(item.Metadata, rows[idx])
			used[idx] = true
			report.Exact++
			report.Matches = append(report.Matches, Match{ItemID: item.ID, SourceName: name, Filename: name, Index: idx, Row: idx + 1, Kind: MatchExact, Applied: true})
			out[i] = item
			continue
		}
		idx := -1
		if policy != PartialOff {
			idx = partialRow(name, rows)
		}
		if idx < 0 {
			report.Unmatched++
			out[i] = item
			continue
		}
		used[idx] = true
		report.Partial++
		applied := policy == PartialApply
		if applied {
			item.Metadata = Merge(item.Metadata, rows[idx])
		}
		report.Matches = append(report.Matches, Match{
			ItemID: item.ID, SourceName: name, Filename: rows[idx].Get("filename"),
			Index: idx, Row: idx + 1, Kind: MatchPartial, Applied: applied,
		})
		out[i] = item
	}
	for i, row := range rows {
		if !used[i] {
			report.Skipped = append(report.Skipped, row.Get("filename"))
		}
	}
	return out, report
}

func partialRow(name string, rows []model.CSVRow) int {
	for i, row := range rows {
		fn := row.Get("filename")
		if fn == "" {
			continue
		}
		if strings.Contains(name, fn) || strings.Contains(fn, name) {
			return i
		}
	}
	return -1
}

// Merge overwrites fields of md with the non-empty fields of row. Unparseable
// prices leave the existing price untouched.
func Merge(md model.Metadata, row model.CSVRow) model.Metadata {
	md = md.Clone()
	if v := row.Get("title"); v != "" {
		md.Title = v
	}
	if v := row.Get("description"); v != "" {
		md.Description = v
	}
	if v := row.Get("category"); v != "" {
		md.Category = categories.Normalize(v)
	}
	if v := row.Get("price"); v != "" {
		if p, err := validate.ParsePrice(v); err == nil {
			md.Price = p
		}
	}
	if tags := SplitTags(row.Get("tags")); len(tags) > 0 {
		md.Tags = tags
	}
	if v := row.Get("dimensions"); v != "" {
		md.Dimensions = v
	}
	return md
}

// SplitTags splits a comma separated cell, dropping blanks.
func SplitTags(cell string) []string {
	var tags []string
	for _, t := range strings.Split(cell, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Shared holds defaults applied to every item at once. Zero values are
// ignored.
type Shared struct {
	Category    string   `json:"category"`
	Price       *float64 `json:"price"`
	Description string   `json:"description"`
}

// ApplyShared overwrites category, price and description on every item where
// the shared field is set.
func ApplyShared(items []model.QueuedItem, shared Shared) []model.QueuedItem {
	out := make([]model.QueuedItem, len(items))
	category := categories.Normalize(shared.Category)
	description := strings.TrimSpace(shared.Description)
	for i, item := range items {
		item.Metadata = item.Metadata.Clone()
		if category != "" {
			item.Metadata.Category = category
		}
		if shared.Price != nil && *shared.Price != 0 {
			item.Metadata.Price = *shared.Price
		}
		if description != "" {
			item.Metadata.Description = description
		}
		out[i] = item
	}
	return out
}

// DefaultTitle derives a title from a file name: extension dropped,
// separators turned into spaces.
func DefaultTitle(name string) string {
	base := name
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}
