package domain

import "time"

// Tab is one open page as tracked by the coordinator's registry.
type Tab struct {
	ID           int64     `json:"id"`
	URL          string    `json:"url"`
	Title        string    `json:"title,omitempty"`
	Active       bool      `json:"active,omitempty"`
	LastAccessed time.Time `json:"lastAccessed,omitempty"`
}

// TabSnapshot is an ephemeral structured extract of one page's visible
// content. Fields the underlying query finds nothing for stay empty;
// extraction never fails on missing attributes.
type TabSnapshot struct {
	Title           string   `json:"title,omitempty"`
	URL             string   `json:"url,omitempty"`
	MetaDescription string   `json:"metaDescription,omitempty"`
	Headings        []string `json:"headings,omitempty"`
	ExcerptText     string   `json:"excerptText,omitempty"`
}

// ConsoleEntry is one captured console record for a tab.
type ConsoleEntry struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// PageAnalysis is the extended diagnostic sweep produced on a "detailed
// analysis" request.
type PageAnalysis struct {
	BrokenImages       []string  `json:"brokenImages,omitempty"`
	ImagesMissingAlt   int       `json:"imagesMissingAlt"`
	InputsMissingLabel int       `json:"inputsMissingLabel"`
	FailedStylesheets  []string  `json:"failedStylesheets,omitempty"`
	FailedScripts      []string  `json:"failedScripts,omitempty"`
	SlowResources      []string  `json:"slowResources,omitempty"`
	HeadingOutline     []string  `json:"headingOutline,omitempty"`
	Stats              PageStats `json:"stats"`
}

// PageStats are coarse page statistics for the analysis sweep.
type PageStats struct {
	Elements    int `json:"elements"`
	Images      int `json:"images"`
	Scripts     int `json:"scripts"`
	Stylesheets int `json:"stylesheets"`
	Links       int `json:"links"`
	TextLength  int `json:"textLength"`
}
