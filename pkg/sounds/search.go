package sounds

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

const searchField = "name"

// Search returns the entries whose display names match text, best match
// first. Every word of text also matches as a prefix, so "tav amb" finds
// "Tavern Ambience". The index lives only for the duration of the call.
func Search(entries []Entry, text string, limit int) ([]Entry, error) {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 || len(entries) == 0 {
		return []Entry{}, nil
	}

	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create search index: %w", err)
	}
	defer index.Close()

	byPath := make(map[string]Entry, len(entries))
	batch := index.NewBatch()
	for _, entry := range entries {
		byPath[entry.Path] = entry
		if err := batch.Index(entry.Path, map[string]interface{}{
			searchField: entry.DisplayName(),
		}); err != nil {
			return nil, fmt.Errorf("failed to index %q: %w", entry.Path, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("failed to index entries: %w", err)
	}

	match := bleve.NewMatchQuery(text)
	match.SetField(searchField)
	disjuncts := []query.Query{match}
	for _, word := range words {
		prefix := bleve.NewPrefixQuery(word)
		prefix.SetField(searchField)
		disjuncts = append(disjuncts, prefix)
	}

	if limit <= 0 {
		limit = len(entries)
	}
	result, err := index.Search(bleve.NewSearchRequestOptions(
		bleve.NewDisjunctionQuery(disjuncts...), limit, 0, false))
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]Entry, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if entry, ok := byPath[hit.ID]; ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

// HandleSearch responds to GET requests with ?q=<text> with the locators of
// the matching entries, in the same form as HandleList.
func (ml *Library) HandleSearch(
	w http.ResponseWriter,
	req *http.Request,
) {
	ctx := req.Context()

	text := strings.TrimSpace(req.URL.Query().Get("q"))
	if text == "" {
		writeJson(ctx, w, http.StatusBadRequest, map[string]string{"error": "Missing query"})
		return
	}

	entries, err := ml.Entries()
	if err == nil {
		entries, err = Search(entries, text, 0)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to search sound files", "query", text, "error", err)
		writeJson(ctx, w, http.StatusInternalServerError, map[string]string{"error": "Failed to load sound files"})
		return
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, entry.Path)
	}
	writeJson(ctx, w, http.StatusOK, paths)
}
