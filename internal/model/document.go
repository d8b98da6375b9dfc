package model

import "strings"

// Page is the extracted text of one PDF page. Number is 1-indexed.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Document is a single source file of the corpus. Source is the name used in
// citations; Path is where the file was read from.
type Document struct {
	Source string `json:"source"`
	Path   string `json:"path"`
	Pages  []Page `json:"pages"`
}

// IsEmpty reports whether no page carries any non-whitespace text.
func (d Document) IsEmpty() bool {
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Text) != "" {
			return false
		}
	}
	return true
}

// SourceFile fingerprints an indexed file so corpus changes can be detected.
type SourceFile struct {
	Name   string `json:"name" yaml:"name"`
	Size   int64  `json:"size" yaml:"size"`
	SHA256 string `json:"sha256" yaml:"sha256"`
}
