// Package hints classifies deal documents into content categories and
// produces category-specific extraction guidance.
//
// Classification is a data-driven lookup: the keyword and guidance table
// lives in categories.yaml, embedded at build time. Adding a category or a
// keyword is an edit to that file, not to code. Matching is case-insensitive
// against the filename, first category in table order wins, and a filename
// matching nothing falls through to the general category.
package hints

import (
	"fmt"
	"path/filepath"
	"strings"

	_ "embed"

	"gopkg.in/yaml.v3"
)

// Category is a document content category.
type Category string

const (
	CategoryFinancial   Category = "financial"
	CategoryLegal       Category = "legal"
	CategoryOperational Category = "operational"
	CategoryMarket      Category = "market"
	CategoryGeneral     Category = "general"
)

// DocumentMeta describes a document for classification. Filename is the
// primary signal; Format is appended to the guidance when present.
type DocumentMeta struct {
	Filename string
	Format   string
}

//go:embed categories.yaml
var categoriesYAML []byte

type categoryEntry struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Guidance string   `yaml:"guidance"`
}

type categoryTable struct {
	Categories []categoryEntry `yaml:"categories"`
}

// Selector classifies documents and builds extraction guidance. It is pure
// and deterministic: the same metadata always yields the same category and
// hint text. Construct once and share; it holds no mutable state.
type Selector struct {
	entries  []categoryEntry
	guidance map[Category]string
}

// NewSelector parses the embedded category table.
func NewSelector() (*Selector, error) {
	var table categoryTable
	if err := yaml.Unmarshal(categoriesYAML, &table); err != nil {
		return nil, fmt.Errorf("parse category table: %w", err)
	}
	if len(table.Categories) == 0 {
		return nil, fmt.Errorf("category table is empty")
	}

	guidance := make(map[Category]string, len(table.Categories))
	for i, e := range table.Categories {
		// Keywords are normalized the same way filenames are, so entries
		// like "10-k" or "p&l" match regardless of separator style.
		for j, kw := range e.Keywords {
			table.Categories[i].Keywords[j] = normalizeFilename(kw)
		}
		guidance[Category(e.Name)] = e.Guidance
	}
	if _, ok := guidance[CategoryGeneral]; !ok {
		return nil, fmt.Errorf("category table missing general fallback")
	}

	return &Selector{entries: table.Categories, guidance: guidance}, nil
}

// DetectCategory classifies a document by filename. Keywords are matched
// case-insensitively on whole tokens of the normalized filename, so "nda"
// matches "NDA_Acme.pdf" but not "Brandable.pdf"; the first matching
// category in table order wins.
func (s *Selector) DetectCategory(meta DocumentMeta) Category {
	name := normalizeFilename(meta.Filename)
	if name == "" {
		return CategoryGeneral
	}
	// Space padding makes token-boundary matching a substring check that
	// also covers multi-word keywords like "term sheet".
	padded := " " + name + " "
	for _, e := range s.entries {
		for _, kw := range e.Keywords {
			if strings.Contains(padded, " "+kw+" ") {
				return Category(e.Name)
			}
		}
	}
	return CategoryGeneral
}

// BuildHints returns the guidance text for a category, suffixed with
// filename and format context when available.
func (s *Selector) BuildHints(category Category, meta DocumentMeta) string {
	text, ok := s.guidance[category]
	if !ok {
		text = s.guidance[CategoryGeneral]
	}

	var b strings.Builder
	b.WriteString(text)
	if meta.Filename != "" {
		fmt.Fprintf(&b, "\nSource file: %s.", meta.Filename)
	}
	if format := documentFormat(meta); format != "" {
		fmt.Fprintf(&b, " Format: %s.", format)
	}
	return b.String()
}

// normalizeFilename lowercases and turns underscores, dashes and dots into
// spaces so keywords match regardless of filename convention.
func normalizeFilename(filename string) string {
	name := strings.ToLower(filename)
	replacer := strings.NewReplacer("_", " ", "-", " ", ".", " ")
	return replacer.Replace(name)
}

// documentFormat prefers explicit metadata, falling back to the file
// extension.
func documentFormat(meta DocumentMeta) string {
	if meta.Format != "" {
		return meta.Format
	}
	ext := strings.TrimPrefix(filepath.Ext(meta.Filename), ".")
	return strings.ToLower(ext)
}
