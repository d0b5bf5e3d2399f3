package models

import "time"

// StudentStatusActive is the only status the roster produces.
const StudentStatusActive = "active"

// Student is a roster entry normalised for card printing. ID is synthesised
// from name and position at fetch time and is only stable within one fetch.
type Student struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Degree         string     `json:"degree"`
	Programme      string     `json:"programme"`
	IDNumber       string     `json:"idNumber"`
	ExpirationDate string     `json:"expirationDate"`
	PhotoURL       string     `json:"photoUrl"`
	Email          string     `json:"email,omitempty"`
	Status         string     `json:"status,omitempty"`
	ArrivalDate    *time.Time `json:"arrivalDate"`
	Campus         string     `json:"campus,omitempty"`
	IsTeacher      bool       `json:"isTeacher,omitempty"`
}

// RosterRecord mirrors one element of the upstream users-list payload.
type RosterRecord struct {
	FullName        string  `json:"full_name"`
	Programme       *string `json:"programme"`
	StudentIDNumber *string `json:"student_id_number"`
	ArrivalDate     *string `json:"arrival_date"`
	Degree          *string `json:"degree"`
	Campus          string  `json:"campus"`
	IsTeacher       bool    `json:"is_teacher"`
	Photo           string  `json:"photo"`
}

// RosterResponse is the single accepted upstream response schema.
type RosterResponse struct {
	Data []RosterRecord `json:"data"`
}

// Roster is a fetched, normalised student list.
type Roster struct {
	Students  []Student `json:"students"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// RosterDiagnostics reports the outcome of a roster connection self-test.
type RosterDiagnostics struct {
	Success       bool     `json:"success" yaml:"success"`
	Message       string   `json:"message" yaml:"message"`
	StudentCount  int      `json:"studentCount" yaml:"studentCount"`
	SampleStudent *Student `json:"sampleStudent,omitempty" yaml:"sampleStudent,omitempty"`
	LatencyMs     int64    `json:"latencyMs" yaml:"latencyMs"`
}
