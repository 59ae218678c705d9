// Package citedb stores verified citations locally. Records live in a
// SQLite database; a Bleve index alongside it serves full-text search
// over titles, authors, and abstracts.
package citedb
