package models

// Staff is a staff member imported from CSV or added by hand. The photo is
// always a locally uploaded data URL.
type Staff struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	StaffID      string `json:"staffId"`
	IssueDate    string `json:"issueDate"`
	PhotoDataURL string `json:"-"`
}

// HasPhoto reports whether a photo has been uploaded.
func (s Staff) HasPhoto() bool {
	return s.PhotoDataURL != ""
}
