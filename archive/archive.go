// Package archive keeps a searchable record of completed tasks. Every
// record is appended to a JSON-lines run log and indexed with Bleve, so a
// campaign can be replayed from the log and interrogated through the
// index: which methods failed, what the failure messages said, how runs
// on a topic went.
package archive

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/steerkit/steerkit/errors"
	"github.com/steerkit/steerkit/task"
)

// Config configures a Store.
type Config struct {
	// Dir is the directory holding the index and the run log.
	Dir string

	// LogResults appends every record to results.jsonl alongside the
	// index.
	LogResults bool
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogResults: true,
	}
}

// document is the indexed projection of a task record. The raw field
// carries the full encoded record for retrieval; it is stored, not
// indexed.
type document struct {
	TaskID    string    `json:"task_id"`
	Method    string    `json:"method"`
	Topic     string    `json:"topic"`
	Success   bool      `json:"success"`
	Failure   string    `json:"failure"`
	CreatedAt time.Time `json:"created_at"`
	RuntimeNS int64     `json:"runtime_ns"`
	Raw       string    `json:"raw"`
}

// Store is a searchable archive of completed task records.
type Store struct {
	mu    sync.Mutex
	index bleve.Index
	log   *os.File
	dir   string
}

// NewStore opens or creates an archive in cfg.Dir.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.Config("archive directory not set")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, errors.Config("creating archive directory "+cfg.Dir, errors.WithCause(err))
	}

	indexPath := filepath.Join(cfg.Dir, "results.bleve")

	var index bleve.Index
	var err error
	if _, statErr := os.Stat(indexPath); os.IsNotExist(statErr) {
		index, err = bleve.New(indexPath, buildIndexMapping())
	} else {
		index, err = bleve.Open(indexPath)
	}
	if err != nil {
		return nil, errors.Internal("opening archive index", errors.WithCause(err))
	}

	s := &Store{
		index: index,
		dir:   cfg.Dir,
	}

	if cfg.LogResults {
		logPath := filepath.Join(cfg.Dir, "results.jsonl")
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			index.Close()
			return nil, errors.Config("opening run log "+logPath, errors.WithCause(err))
		}
		s.log = f
	}

	return s, nil
}

// buildIndexMapping creates the Bleve index mapping for task records.
func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	// Keyword fields (not analyzed, exact match)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	// Failure text is analyzed for full-text search
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	dateFieldMapping := bleve.NewDateTimeFieldMapping()
	boolFieldMapping := bleve.NewBooleanFieldMapping()
	numericFieldMapping := bleve.NewNumericFieldMapping()

	// The raw record is stored for retrieval only
	rawFieldMapping := bleve.NewKeywordFieldMapping()
	rawFieldMapping.Index = false
	rawFieldMapping.IncludeInAll = false

	docMapping.AddFieldMappingsAt("task_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("method", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("topic", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("success", boolFieldMapping)
	docMapping.AddFieldMappingsAt("failure", textFieldMapping)
	docMapping.AddFieldMappingsAt("created_at", dateFieldMapping)
	docMapping.AddFieldMappingsAt("runtime_ns", numericFieldMapping)
	docMapping.AddFieldMappingsAt("raw", rawFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// Record appends the record to the run log and indexes it. Recording the
// same task ID again replaces the earlier index entry; the run log keeps
// both lines.
func (s *Store) Record(ctx context.Context, res *task.Result) error {
	if res == nil {
		return errors.InvalidTask("cannot archive a nil record")
	}

	data, err := res.Encode()
	if err != nil {
		return err
	}

	doc := document{
		TaskID:    res.TaskID,
		Method:    res.Method,
		Topic:     res.Topic,
		Success:   res.Success,
		CreatedAt: res.CreatedAt,
		RuntimeNS: int64(res.Runtime),
		Raw:       string(data),
	}
	if res.Failure != nil {
		doc.Failure = res.Failure.Message
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Index(res.TaskID, doc); err != nil {
		return errors.Internal("indexing record "+res.TaskID, errors.WithCause(err))
	}

	if s.log != nil {
		line := append(data, '\n')
		if _, err := s.log.Write(line); err != nil {
			return errors.Internal("appending run log", errors.WithCause(err))
		}
	}

	return nil
}

// Get retrieves one archived record by task ID.
func (s *Store) Get(ctx context.Context, taskID string) (*task.Result, error) {
	docQuery := bleve.NewDocIDQuery([]string{taskID})
	searchReq := bleve.NewSearchRequest(docQuery)
	searchReq.Fields = []string{"raw"}
	searchReq.Size = 1

	results, err := s.index.SearchInContext(ctx, searchReq)
	if err != nil {
		return nil, errors.Internal("archive lookup failed", errors.WithCause(err))
	}
	if results.Total == 0 {
		return nil, errors.NotFound("no archived record for task "+taskID, errors.WithTask(taskID))
	}

	raw, ok := results.Hits[0].Fields["raw"].(string)
	if !ok || raw == "" {
		return nil, errors.Internal("archived record " + taskID + " has no raw payload")
	}
	return task.Decode([]byte(raw))
}

// Query selects archived records. Zero-value fields do not filter.
type Query struct {
	// Text matches against failure messages.
	Text string

	// Method filters on the exact method name.
	Method string

	// Topic filters on the exact topic.
	Topic string

	// Success filters on outcome when non-nil.
	Success *bool

	// Limit caps returned entries. Default: 10.
	Limit int
}

// Entry is one search hit.
type Entry struct {
	TaskID  string
	Method  string
	Topic   string
	Success bool
	Failure string
	Score   float64
}

// Search returns archived records matching every set query field, best
// matches first. An empty query matches everything up to the limit.
func (s *Store) Search(ctx context.Context, q Query) ([]Entry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	boolQuery := bleve.NewBooleanQuery()
	clauses := 0

	if q.Text != "" {
		match := bleve.NewMatchQuery(q.Text)
		match.SetField("failure")
		boolQuery.AddMust(match)
		clauses++
	}
	if q.Method != "" {
		term := bleve.NewTermQuery(q.Method)
		term.SetField("method")
		boolQuery.AddMust(term)
		clauses++
	}
	if q.Topic != "" {
		term := bleve.NewTermQuery(q.Topic)
		term.SetField("topic")
		boolQuery.AddMust(term)
		clauses++
	}
	if q.Success != nil {
		outcome := bleve.NewBoolFieldQuery(*q.Success)
		outcome.SetField("success")
		boolQuery.AddMust(outcome)
		clauses++
	}

	var searchQuery query.Query = boolQuery
	if clauses == 0 {
		searchQuery = bleve.NewMatchAllQuery()
	}

	searchReq := bleve.NewSearchRequest(searchQuery)
	searchReq.Size = limit
	searchReq.Fields = []string{"method", "topic", "success", "failure"}

	searchResult, err := s.index.SearchInContext(ctx, searchReq)
	if err != nil {
		return nil, errors.Internal("archive search failed", errors.WithCause(err))
	}

	entries := make([]Entry, 0, len(searchResult.Hits))
	for _, hit := range searchResult.Hits {
		e := Entry{
			TaskID: hit.ID,
			Score:  hit.Score,
		}
		if v, ok := hit.Fields["method"].(string); ok {
			e.Method = v
		}
		if v, ok := hit.Fields["topic"].(string); ok {
			e.Topic = v
		}
		if v, ok := hit.Fields["success"].(bool); ok {
			e.Success = v
		}
		if v, ok := hit.Fields["failure"].(string); ok {
			e.Failure = v
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// Count returns the number of archived records.
func (s *Store) Count() (uint64, error) {
	return s.index.DocCount()
}

// Close flushes the run log and closes the index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.log != nil {
		s.log.Sync()
		s.log.Close()
		s.log = nil
	}
	return s.index.Close()
}
