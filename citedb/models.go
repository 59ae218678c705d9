package citedb

import "time"

type CitationModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	CiteKey      string `gorm:"column:cite_key;uniqueIndex;not null"`
	Title        string `gorm:"not null"`
	AuthorsJSON  []byte `gorm:"column:authors_json"`
	DOI          string `gorm:"column:doi;uniqueIndex"`
	Abstract     string
	Year         int
	Venue        string
	FullTextHash string    `gorm:"column:full_text_hash"`
	Verified     bool      `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (CitationModel) TableName() string {
	return "citations"
}
