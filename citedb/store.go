package citedb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	xerrors "github.com/researchforge/citekit/errors"
)

// Citation is a stored reference.
type Citation struct {
	ID           string
	CiteKey      string
	Authors      []string
	Title        string
	DOI          string
	Abstract     string
	Year         int
	Venue        string
	FullTextHash string
	Verified     bool
	CreatedAt    time.Time
}

// Store is the citation database plus its search index.
type Store struct {
	mu    sync.RWMutex
	db    *gorm.DB
	index bleve.Index
}

// Config configures the store.
type Config struct {
	// BasePath is the directory holding the database and the index.
	BasePath string
}

// Open opens (or creates) the store under cfg.BasePath.
func Open(cfg Config) (*Store, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("citedb: base path is required")
	}
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	dbPath := filepath.Join(cfg.BasePath, "citations.db")
	gdb, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open citation db: %w", err)
	}
	if err := gdb.AutoMigrate(&CitationModel{}); err != nil {
		return nil, fmt.Errorf("migrate citation db: %w", err)
	}

	indexPath := filepath.Join(cfg.BasePath, "citations.bleve")
	var index bleve.Index
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create citation index: %w", err)
		}
	} else {
		index, err = bleve.Open(indexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open citation index: %w", err)
		}
	}

	return &Store{db: gdb, index: index}, nil
}

// citationDocument is what Bleve indexes for each citation.
type citationDocument struct {
	CiteKey  string `json:"cite_key"`
	Title    string `json:"title"`
	Authors  string `json:"authors"`
	Abstract string `json:"abstract"`
	Venue    string `json:"venue"`
}

// buildIndexMapping creates the Bleve index mapping.
func buildIndexMapping() mapping.IndexMapping {
	citeMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	citeMapping.AddFieldMappingsAt("cite_key", keywordFieldMapping)
	citeMapping.AddFieldMappingsAt("title", textFieldMapping)
	citeMapping.AddFieldMappingsAt("authors", textFieldMapping)
	citeMapping.AddFieldMappingsAt("abstract", textFieldMapping)
	citeMapping.AddFieldMappingsAt("venue", textFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = citeMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// Add stores a citation and indexes it. Returns the assigned ID.
// The cite key must be unique; the DOI must be unique when present.
func (s *Store) Add(ctx context.Context, c *Citation) (string, error) {
	if c.CiteKey == "" {
		return "", fmt.Errorf("citedb: cite key is required")
	}
	if c.Title == "" {
		return "", fmt.Errorf("citedb: title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := c.ID
	if id == "" {
		id = uuid.New().String()
	}

	authorsJSON, err := json.Marshal(c.Authors)
	if err != nil {
		return "", err
	}

	model := CitationModel{
		ID:           id,
		CiteKey:      c.CiteKey,
		Title:        c.Title,
		AuthorsJSON:  authorsJSON,
		DOI:          c.DOI,
		Abstract:     c.Abstract,
		Year:         c.Year,
		Venue:        c.Venue,
		FullTextHash: c.FullTextHash,
		Verified:     c.Verified,
	}

	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return "", fmt.Errorf("store citation: %w", err)
	}

	doc := citationDocument{
		CiteKey:  c.CiteKey,
		Title:    c.Title,
		Authors:  strings.Join(c.Authors, " "),
		Abstract: c.Abstract,
		Venue:    c.Venue,
	}
	if err := s.index.Index(id, doc); err != nil {
		return "", fmt.Errorf("failed to index citation: %w", err)
	}

	return id, nil
}

// Get looks a citation up by DOI first, then by cite key.
func (s *Store) Get(ctx context.Context, ref string) (*Citation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var model CitationModel
	err := s.db.WithContext(ctx).
		Where("doi = ?", ref).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.db.WithContext(ctx).
			Where("cite_key = ?", ref).
			First(&model).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerrors.NotFound(fmt.Sprintf("no citation for %q", ref))
		}
		return nil, err
	}

	return fromModel(&model)
}

// Verify marks a citation as verified and records its full text hash.
func (s *Store) Verify(ctx context.Context, ref, fullTextHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).
		Model(&CitationModel{}).
		Where("doi = ? OR cite_key = ?", ref, ref).
		Updates(map[string]interface{}{
			"verified":       true,
			"full_text_hash": fullTextHash,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return xerrors.NotFound(fmt.Sprintf("no citation for %q", ref))
	}
	return nil
}

// Search runs a full-text query over titles, authors, and abstracts.
func (s *Store) Search(ctx context.Context, queryText string, limit int) ([]*Citation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	searchReq := bleve.NewSearchRequest(bleve.NewMatchQuery(queryText))
	searchReq.Size = limit

	searchResult, err := s.index.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	var citations []*Citation
	for _, hit := range searchResult.Hits {
		var model CitationModel
		err := s.db.WithContext(ctx).First(&model, "id = ?", hit.ID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Index entry with no row; skip it.
				continue
			}
			return nil, err
		}
		c, err := fromModel(&model)
		if err != nil {
			return nil, err
		}
		citations = append(citations, c)
	}

	return citations, nil
}

// Count returns the number of stored citations.
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.WithContext(ctx).Model(&CitationModel{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes the search index. The database handle closes with it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	indexErr := s.index.Close()

	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			return err
		}
	}
	return indexErr
}

func fromModel(m *CitationModel) (*Citation, error) {
	c := &Citation{
		ID:           m.ID,
		CiteKey:      m.CiteKey,
		Title:        m.Title,
		DOI:          m.DOI,
		Abstract:     m.Abstract,
		Year:         m.Year,
		Venue:        m.Venue,
		FullTextHash: m.FullTextHash,
		Verified:     m.Verified,
		CreatedAt:    m.CreatedAt,
	}
	if len(m.AuthorsJSON) > 0 {
		if err := json.Unmarshal(m.AuthorsJSON, &c.Authors); err != nil {
			return nil, err
		}
	}
	return c, nil
}
