package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/idcard-api/internal/dto"
	"github.com/noah-isme/idcard-api/internal/models"
	"github.com/noah-isme/idcard-api/internal/repository"
	"github.com/noah-isme/idcard-api/pkg/csvimport"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
	"github.com/noah-isme/idcard-api/pkg/imaging"
)

// MaxStaffPhotoBytes bounds an uploaded staff photo.
const MaxStaffPhotoBytes = 10 << 20

// StaffService manages the per-session staff roster.
type StaffService struct {
	sessions  sessionStore
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewStaffService constructs a staff service.
func NewStaffService(sessions sessionStore, validate *validator.Validate, logger *zap.Logger) *StaffService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaffService{sessions: sessions, validator: validate, logger: logger, now: time.Now}
}

// List returns the session's staff.
func (s *StaffService) List(ctx context.Context, sessionID string) (*dto.StaffListing, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return staffListing(sess.Staff), nil
}

// Import replaces the staff list with the rows of a CSV or XLSX upload.
func (s *StaffService) Import(ctx context.Context, sessionID, filename string, r io.Reader) (*dto.StaffListing, error) {
	rows, err := csvimport.ReadRows(filename, r)
	if err != nil {
		return nil, err
	}
	records, err := csvimport.ParseStaffRows(rows, s.now())
	if err != nil {
		return nil, err
	}
	staff := make([]models.Staff, 0, len(records))
	for _, rec := range records {
		staff = append(staff, models.Staff{ID: rec.ID, Name: rec.Name, StaffID: rec.StaffID, IssueDate: rec.IssueDate})
	}
	s.logger.Info("staff imported", zap.String("session_id", sessionID), zap.Int("staff", len(staff)))
	return s.mutate(sessionID, func(list []models.Staff) ([]models.Staff, error) {
		return staff, nil
	})
}

// Add appends a manually entered staff member. Staff IDs are unique per session.
func (s *StaffService) Add(ctx context.Context, sessionID string, req dto.StaffAddRequest) (*dto.StaffListing, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.IssueDate = strings.TrimSpace(req.IssueDate)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "name and staffId are required")
	}
	if req.Photo != "" && !imaging.IsDataURL(req.Photo) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "photo must be an image data url")
	}
	if req.IssueDate == "" {
		req.IssueDate = s.now().Format(csvimport.IssueDateLayout)
	}

	return s.mutate(sessionID, func(list []models.Staff) ([]models.Staff, error) {
		for _, existing := range list {
			if strings.EqualFold(existing.StaffID, req.StaffID) {
				return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("staff id %q already exists", req.StaffID))
			}
		}
		return append(list, models.Staff{
			ID:           "staff-" + uuid.NewString(),
			Name:         req.Name,
			StaffID:      req.StaffID,
			IssueDate:    req.IssueDate,
			PhotoDataURL: req.Photo,
		}), nil
	})
}

// SetPhoto stores an uploaded image as the member's photo.
func (s *StaffService) SetPhoto(ctx context.Context, sessionID, id, contentType string, r io.Reader) (*dto.StaffListing, error) {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "please upload an image file")
	}
	raw, err := io.ReadAll(io.LimitReader(r, MaxStaffPhotoBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read photo")
	}
	if len(raw) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "photo is empty")
	}
	if len(raw) > MaxStaffPhotoBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "photo exceeds 10 MiB")
	}
	dataURL := imaging.EncodeDataURL(mediaType, raw)
	return s.mutateOne(sessionID, id, func(member *models.Staff) { member.PhotoDataURL = dataURL })
}

// RemovePhoto clears the member's photo.
func (s *StaffService) RemovePhoto(ctx context.Context, sessionID, id string) (*dto.StaffListing, error) {
	return s.mutateOne(sessionID, id, func(member *models.Staff) { member.PhotoDataURL = "" })
}

// Remove deletes one member.
func (s *StaffService) Remove(ctx context.Context, sessionID, id string) (*dto.StaffListing, error) {
	return s.mutate(sessionID, func(list []models.Staff) ([]models.Staff, error) {
		idx := indexOfStaff(list, id)
		if idx == -1 {
			return nil, staffNotFound(id)
		}
		return append(list[:idx:idx], list[idx+1:]...), nil
	})
}

// Clear removes every member.
func (s *StaffService) Clear(ctx context.Context, sessionID string) (*dto.StaffListing, error) {
	return s.mutate(sessionID, func([]models.Staff) ([]models.Staff, error) {
		return []models.Staff{}, nil
	})
}

func (s *StaffService) mutateOne(sessionID, id string, fn func(*models.Staff)) (*dto.StaffListing, error) {
	return s.mutate(sessionID, func(list []models.Staff) ([]models.Staff, error) {
		idx := indexOfStaff(list, id)
		if idx == -1 {
			return nil, staffNotFound(id)
		}
		fn(&list[idx])
		return list, nil
	})
}

func (s *StaffService) mutate(sessionID string, fn func([]models.Staff) ([]models.Staff, error)) (*dto.StaffListing, error) {
	sess, err := s.sessions.Update(sessionID, func(sess *repository.Session) error {
		next, err := fn(sess.Staff)
		if err != nil {
			return err
		}
		sess.Staff = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return staffListing(sess.Staff), nil
}

func indexOfStaff(list []models.Staff, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func staffNotFound(id string) error {
	return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("staff member %q not found", id))
}

func staffListing(list []models.Staff) *dto.StaffListing {
	out := &dto.StaffListing{Staff: make([]dto.StaffView, 0, len(list)), Count: len(list)}
	for _, member := range list {
		if member.HasPhoto() {
			out.WithPhotos++
		}
		out.Staff = append(out.Staff, dto.StaffView{Staff: member, HasPhoto: member.HasPhoto()})
	}
	return out
}
