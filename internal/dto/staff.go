package dto

import "github.com/noah-isme/idcard-api/internal/models"

// StaffAddRequest captures a manually entered staff member.
type StaffAddRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	StaffID   string `json:"staffId" validate:"required,max=100"`
	IssueDate string `json:"issueDate" validate:"max=32"`
	Photo     string `json:"photo"`
}

// StaffView is a staff member without the inline photo.
type StaffView struct {
	models.Staff
	HasPhoto bool `json:"hasPhoto"`
}

// StaffListing is the session's staff list.
type StaffListing struct {
	Staff      []StaffView `json:"staff"`
	Count      int         `json:"count"`
	WithPhotos int         `json:"withPhotos"`
}
