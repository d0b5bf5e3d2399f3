package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/idcard-api/internal/dto"
	"github.com/noah-isme/idcard-api/internal/models"
	"github.com/noah-isme/idcard-api/internal/repository"
	"github.com/noah-isme/idcard-api/internal/selection"
	"github.com/noah-isme/idcard-api/pkg/csvimport"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
)

type rosterSource interface {
	Students(ctx context.Context, refresh bool) (*models.Roster, error)
}

type sessionStore interface {
	Create() repository.Session
	Get(id string) (repository.Session, error)
	Update(id string, fn func(*repository.Session) error) (repository.Session, error)
}

// SelectionService applies selection transitions to a session against the current roster.
type SelectionService struct {
	sessions sessionStore
	roster   rosterSource
	logger   *zap.Logger
}

// NewSelectionService constructs a selection service.
func NewSelectionService(sessions sessionStore, roster rosterSource, logger *zap.Logger) *SelectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelectionService{sessions: sessions, roster: roster, logger: logger}
}

// ParseFilter converts query parameters into a selection filter.
func ParseFilter(q dto.StudentFilterQuery) (selection.Filter, error) {
	f := selection.Filter{
		Search:    q.Search,
		Programme: strings.TrimSpace(q.Programme),
		Campus:    strings.TrimSpace(q.Campus),
	}
	if strings.TrimSpace(q.Since) != "" {
		ym, err := selection.ParseYearMonth(q.Since)
		if err != nil {
			return selection.Filter{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "since must be YYYY-MM")
		}
		f.Since = &ym
	}
	return f, nil
}

// CreateSession starts an empty session.
func (s *SelectionService) CreateSession(ctx context.Context) (*dto.SessionSnapshot, error) {
	sess := s.sessions.Create()
	return s.snapshot(ctx, sess)
}

// Snapshot returns the session view with committed students resolved.
func (s *SelectionService) Snapshot(ctx context.Context, sessionID string) (*dto.SessionSnapshot, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, sess)
}

// Students lists the visible roster for the session.
func (s *SelectionService) Students(ctx context.Context, sessionID string, q dto.StudentFilterQuery, refresh bool) (*dto.StudentListing, error) {
	filter, err := ParseFilter(q)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	roster, err := s.roster.Students(ctx, refresh)
	if err != nil {
		return nil, err
	}

	visible := selection.ApplyFilters(roster.Students, sess.Selection, filter)
	programmes, campuses := selection.Facets(roster.Students)
	return &dto.StudentListing{
		Students:      visible,
		Total:         len(roster.Students),
		Visible:       len(visible),
		SelectedCount: sess.Selection.CommittedCount(),
		TempSelected:  sess.Selection.TempIDs(),
		Programmes:    programmes,
		Campuses:      campuses,
		FetchedAt:     roster.FetchedAt,
	}, nil
}

// ToggleTemp flips a temporary pick.
func (s *SelectionService) ToggleTemp(ctx context.Context, sessionID, studentID string) (*dto.SessionSnapshot, error) {
	return s.transition(ctx, sessionID, studentID, func(st selection.State) (selection.State, error) {
		return st.ToggleTemp(studentID), nil
	})
}

// SelectAllVisible replaces the temporary picks with every currently visible student.
func (s *SelectionService) SelectAllVisible(ctx context.Context, sessionID string, q dto.StudentFilterQuery) (*dto.SessionSnapshot, error) {
	filter, err := ParseFilter(q)
	if err != nil {
		return nil, err
	}
	roster, err := s.roster.Students(ctx, false)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, sessionID, func(st selection.State) (selection.State, error) {
		visible := selection.ApplyFilters(roster.Students, st, filter)
		return st.SelectAllVisible(selection.IDs(visible)), nil
	})
}

// CommitAll moves every temporary pick into the selection.
func (s *SelectionService) CommitAll(ctx context.Context, sessionID string) (*dto.SessionSnapshot, error) {
	return s.apply(ctx, sessionID, func(st selection.State) (selection.State, error) {
		return st.CommitAll(), nil
	})
}

// Commit adds one student to the selection.
func (s *SelectionService) Commit(ctx context.Context, sessionID, studentID string) (*dto.SessionSnapshot, error) {
	return s.transition(ctx, sessionID, studentID, func(st selection.State) (selection.State, error) {
		return st.Commit(studentID), nil
	})
}

// Remove drops one student from the selection together with its override.
func (s *SelectionService) Remove(ctx context.Context, sessionID, studentID string) (*dto.SessionSnapshot, error) {
	return s.apply(ctx, sessionID, func(st selection.State) (selection.State, error) {
		return st.Remove(studentID), nil
	})
}

// Clear empties the selection.
func (s *SelectionService) Clear(ctx context.Context, sessionID string) (*dto.SessionSnapshot, error) {
	return s.apply(ctx, sessionID, func(st selection.State) (selection.State, error) {
		return st.Clear(), nil
	})
}

// SetExpiration overrides the printed expiration of a selected student.
func (s *SelectionService) SetExpiration(ctx context.Context, sessionID, studentID, date string) (*dto.SessionSnapshot, error) {
	date = strings.TrimSpace(date)
	return s.transition(ctx, sessionID, studentID, func(st selection.State) (selection.State, error) {
		if !st.IsCommitted(studentID) {
			return st, appErrors.Clone(appErrors.ErrValidation, "student is not selected")
		}
		return st.SetOverride(studentID, date), nil
	})
}

// UploadCSVFilter parses a CSV or XLSX upload and activates it as the allow-list.
func (s *SelectionService) UploadCSVFilter(ctx context.Context, sessionID, filename string, r io.Reader) (*dto.SessionSnapshot, error) {
	rows, err := csvimport.ReadRows(filename, r)
	if err != nil {
		return nil, err
	}
	ids, err := csvimport.ParseStudentIDRows(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Info("csv filter loaded", zap.String("session_id", sessionID), zap.Int("ids", ids.Len()))
	return s.apply(ctx, sessionID, func(st selection.State) (selection.State, error) {
		return st.SetCSVFilter(ids.Sorted()), nil
	})
}

// ClearCSVFilter deactivates the allow-list.
func (s *SelectionService) ClearCSVFilter(ctx context.Context, sessionID string) (*dto.SessionSnapshot, error) {
	return s.apply(ctx, sessionID, func(st selection.State) (selection.State, error) {
		return st.ClearCSVFilter(), nil
	})
}

// transition is apply for operations naming a student, which must exist in the roster.
func (s *SelectionService) transition(ctx context.Context, sessionID, studentID string, fn func(selection.State) (selection.State, error)) (*dto.SessionSnapshot, error) {
	if _, err := s.sessions.Get(sessionID); err != nil {
		return nil, err
	}
	roster, err := s.roster.Students(ctx, false)
	if err != nil {
		return nil, err
	}
	if !containsStudent(roster.Students, studentID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %q not found", studentID))
	}
	return s.apply(ctx, sessionID, fn)
}

func (s *SelectionService) apply(ctx context.Context, sessionID string, fn func(selection.State) (selection.State, error)) (*dto.SessionSnapshot, error) {
	sess, err := s.sessions.Update(sessionID, func(sess *repository.Session) error {
		next, err := fn(sess.Selection)
		if err != nil {
			return err
		}
		sess.Selection = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, sess)
}

func (s *SelectionService) snapshot(ctx context.Context, sess repository.Session) (*dto.SessionSnapshot, error) {
	selected := []models.Student{}
	if sess.Selection.CommittedCount() > 0 {
		roster, err := s.roster.Students(ctx, false)
		if err != nil {
			return nil, err
		}
		selected = selection.Committed(roster.Students, sess.Selection)
	}
	csvIDs, csvActive := sess.Selection.CSVFilter()
	return &dto.SessionSnapshot{
		ID:            sess.ID,
		Selected:      selected,
		SelectedCount: len(selected),
		TempSelected:  sess.Selection.TempIDs(),
		CSVFilter:     dto.CSVFilterState{Active: csvActive, IDs: csvIDs, Count: len(csvIDs)},
		Overrides:     sess.Selection.Overrides(),
		StaffCount:    len(sess.Staff),
		Generating:    sess.Generating,
		CreatedAt:     sess.CreatedAt,
		UpdatedAt:     sess.UpdatedAt,
	}, nil
}

func containsStudent(students []models.Student, id string) bool {
	for _, st := range students {
		if st.ID == id {
			return true
		}
	}
	return false
}
