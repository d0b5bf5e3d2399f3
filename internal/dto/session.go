package dto

import (
	"time"

	"github.com/noah-isme/idcard-api/internal/models"
)

// StudentFilterQuery captures the roster filters shared by listing and select-visible.
type StudentFilterQuery struct {
	Search    string `form:"search"`
	Programme string `form:"programme"`
	Campus    string `form:"campus"`
	Since     string `form:"since"`
}

// CSVFilterState describes the uploaded student-ID allow-list.
type CSVFilterState struct {
	Active bool     `json:"active"`
	IDs    []string `json:"ids"`
	Count  int      `json:"count"`
}

// SessionSnapshot is the full view of one selection session.
type SessionSnapshot struct {
	ID            string            `json:"id"`
	Selected      []models.Student  `json:"selected"`
	SelectedCount int               `json:"selectedCount"`
	TempSelected  []string          `json:"tempSelected"`
	CSVFilter     CSVFilterState    `json:"csvFilter"`
	Overrides     map[string]string `json:"expirationOverrides"`
	StaffCount    int               `json:"staffCount"`
	Generating    bool              `json:"generating"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// StudentListing is the filtered roster for a session.
type StudentListing struct {
	Students      []models.Student `json:"students"`
	Total         int              `json:"total"`
	Visible       int              `json:"visible"`
	SelectedCount int              `json:"selectedCount"`
	TempSelected  []string         `json:"tempSelected"`
	Programmes    []string         `json:"programmes"`
	Campuses      []string         `json:"campuses"`
	FetchedAt     time.Time        `json:"fetchedAt"`
}

// ExpirationOverrideRequest sets a custom expiration label. Empty clears it.
type ExpirationOverrideRequest struct {
	ExpirationDate string `json:"expirationDate" validate:"max=64"`
}
