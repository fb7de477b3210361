// Package catalog defines the resource types shared across the sweeper, the
// page parser and the persistence layer.
package catalog

import (
	"fmt"
	"time"
)

// ResourceID is the stable catalog key of a resource.
type ResourceID int64

// ExistenceStatus is the persisted outcome of the latest existence check.
// StatusExisting is stored as SQL NULL; every other value is written as-is.
type ExistenceStatus int

// Existence status values persisted in resources.existence_status.
const (
	StatusExisting   ExistenceStatus = 0
	StatusIncomplete ExistenceStatus = 1
	StatusUnknown    ExistenceStatus = 2
	StatusTimeout    ExistenceStatus = 3
)

// Suspect reports whether the status marks a probably deleted resource.
func (s ExistenceStatus) Suspect() bool {
	return s != StatusExisting
}

// String returns a short label used in logs and metric labels.
func (s ExistenceStatus) String() string {
	switch s {
	case StatusExisting:
		return "existing"
	case StatusIncomplete:
		return "incomplete"
	case StatusUnknown:
		return "unknown"
	case StatusTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// LinkDiscussion is the link key every well-formed resource page carries.
const LinkDiscussion = "discussion"

// Icon references the resource icon.
type Icon struct {
	URL  string `json:"url"`
	Data string `json:"data"`
}

// Author is the listed author reference.
type Author struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

// Category is the listed category reference.
type Category struct {
	ID int64 `json:"id"`
}

// Rating captures the review summary.
type Rating struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

// Version is the latest listed version.
type Version struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Released int64  `json:"releaseDate"`
}

// File describes the downloadable artifact of a resource.
type File struct {
	Type        string  `json:"type"`
	Size        float64 `json:"size"`
	SizeUnit    string  `json:"sizeUnit"`
	URL         string  `json:"url"`
	ExternalURL string  `json:"externalUrl,omitempty"`
}

// ListedResource is the summary form of a resource as it appears in listings.
// The sweeper builds one as a placeholder seed before parsing a resource page.
type ListedResource struct {
	ID       ResourceID `json:"id"`
	Name     string     `json:"name"`
	Tag      string     `json:"tag"`
	Icon     *Icon      `json:"icon"`
	Author   *Author    `json:"author"`
	Category *Category  `json:"category"`
	Rating   *Rating    `json:"rating"`
	Version  *Version   `json:"version"`
}

// NewSeed returns a ListedResource with zero-valued sub-records so that a page
// parser never fails only because listing context is missing.
func NewSeed(id ResourceID) ListedResource {
	return ListedResource{
		ID:       id,
		Icon:     &Icon{},
		Author:   &Author{},
		Category: &Category{},
		Rating:   &Rating{},
		Version:  &Version{},
	}
}

// Resource is the full record parsed from a resource page.
type Resource struct {
	ListedResource

	Description    string            `json:"description"`
	File           *File             `json:"file"`
	Downloads      int64             `json:"downloads"`
	Links          map[string]string `json:"links"`
	External       bool              `json:"external"`
	Premium        bool              `json:"premium"`
	Price          float64           `json:"price,omitempty"`
	Currency       string            `json:"currency,omitempty"`
	SourceCodeLink string            `json:"sourceCodeLink,omitempty"`
	DonationLink   string            `json:"donationLink,omitempty"`
	UpdateDate     time.Time         `json:"updateDate"`
}

// Link returns the named link and whether it is present.
func (r *Resource) Link(name string) (string, bool) {
	if r == nil || r.Links == nil {
		return "", false
	}
	v, ok := r.Links[name]
	return v, ok
}
