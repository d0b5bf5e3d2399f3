package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/idcard-api/internal/models"
	"github.com/noah-isme/idcard-api/internal/repository"
	"github.com/noah-isme/idcard-api/internal/selection"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
	"github.com/noah-isme/idcard-api/pkg/export"
	"github.com/noah-isme/idcard-api/pkg/imaging"
)

const (
	pdfContentType   = "application/pdf"
	csvContentType   = "text/csv; charset=utf-8"
	placeholderPhoto = "/test-photo.jpg"
)

type photoFetcher interface {
	PhotoDataURL(ctx context.Context, rawURL string, width int) (string, error)
}

type cardRenderer interface {
	RenderStudents(cards []export.StudentCard, photos export.Photos) ([]byte, error)
	RenderStaff(cards []export.StaffCard, photos export.Photos) ([]byte, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// CardServiceConfig tunes photo resolution and file naming.
type CardServiceConfig struct {
	FilenamePrefix   string
	PhotoConcurrency int
	PhotoTimeout     time.Duration
	PhotoSize        int
}

// CardFile is a rendered download.
type CardFile struct {
	FileName    string
	ContentType string
	Body        []byte
	CardCount   int
}

// CardService assembles ID card PDFs and manifests for a session.
type CardService struct {
	sessions sessionStore
	roster   rosterSource
	photos   photoFetcher
	renderer cardRenderer
	csv      csvRenderer
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      CardServiceConfig
}

// NewCardService constructs a card service.
func NewCardService(sessions sessionStore, roster rosterSource, photos photoFetcher, renderer cardRenderer, csv csvRenderer, metrics *MetricsService, logger *zap.Logger, cfg CardServiceConfig) *CardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = export.NewCardRenderer(export.DefaultLayout())
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if cfg.FilenamePrefix == "" {
		cfg.FilenamePrefix = "Harbour_Space"
	}
	if cfg.PhotoConcurrency <= 0 {
		cfg.PhotoConcurrency = 8
	}
	if cfg.PhotoTimeout <= 0 {
		cfg.PhotoTimeout = 20 * time.Second
	}
	if cfg.PhotoSize <= 0 {
		cfg.PhotoSize = 600
	}
	return &CardService{
		sessions: sessions,
		roster:   roster,
		photos:   photos,
		renderer: renderer,
		csv:      csv,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// GenerateStudents renders the session's committed students. Only one
// generation per session runs at a time.
func (s *CardService) GenerateStudents(ctx context.Context, sessionID string) (*CardFile, error) {
	release, err := s.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	students, err := s.SelectedStudents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.RenderStudents(ctx, students)
}

// GenerateStaff renders the session's staff members that have photos.
func (s *CardService) GenerateStaff(ctx context.Context, sessionID string) (*CardFile, error) {
	release, err := s.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	staff, err := s.PrintableStaff(sessionID)
	if err != nil {
		return nil, err
	}
	return s.RenderStaff(ctx, staff)
}

// SelectedStudents returns the committed students with expiration overrides applied.
func (s *CardService) SelectedStudents(ctx context.Context, sessionID string) ([]models.Student, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Selection.CommittedCount() == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no students selected")
	}
	roster, err := s.roster.Students(ctx, false)
	if err != nil {
		return nil, err
	}
	students := selection.Committed(roster.Students, sess.Selection)
	if len(students) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "selected students are no longer in the roster")
	}
	return students, nil
}

// PrintableStaff returns the staff members that have photos.
func (s *CardService) PrintableStaff(sessionID string) ([]models.Staff, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	staff := make([]models.Staff, 0, len(sess.Staff))
	for _, member := range sess.Staff {
		if member.HasPhoto() {
			staff = append(staff, member)
		}
	}
	if len(staff) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no staff members with photos to generate")
	}
	return staff, nil
}

// RenderStudents resolves photos and renders one card per student.
func (s *CardService) RenderStudents(ctx context.Context, students []models.Student) (*CardFile, error) {
	if len(students) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no students selected")
	}
	cards := make([]export.StudentCard, 0, len(students))
	for _, st := range students {
		cards = append(cards, studentCard(st))
	}
	photos := s.resolvePhotos(ctx, students)

	body, err := s.renderer.RenderStudents(cards, photos)
	if err != nil {
		s.logger.Error("student card render failed", zap.Int("cards", len(cards)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate ID cards")
	}
	s.metrics.AddCardsGenerated(models.CardJobKindStudents, len(cards))

	name := fmt.Sprintf("%s_Student_IDs_Bulk_%d_cards.pdf", s.cfg.FilenamePrefix, len(cards))
	if len(cards) == 1 {
		name = sanitizeFilename(whitespace.ReplaceAllString(students[0].Name, "_")) + "_StudentID.pdf"
	}
	return &CardFile{FileName: name, ContentType: pdfContentType, Body: body, CardCount: len(cards)}, nil
}

// RenderStaff renders one card per staff member using their uploaded photos.
func (s *CardService) RenderStaff(ctx context.Context, staff []models.Staff) (*CardFile, error) {
	if len(staff) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no staff members with photos to generate")
	}
	cards := make([]export.StaffCard, 0, len(staff))
	photos := make(export.Photos, len(staff))
	for _, member := range staff {
		cards = append(cards, export.StaffCard{ID: member.ID, Name: member.Name, StaffID: member.StaffID, IssueDate: member.IssueDate})
		if member.HasPhoto() {
			photos[member.ID] = member.PhotoDataURL
		}
	}

	body, err := s.renderer.RenderStaff(cards, photos)
	if err != nil {
		s.logger.Error("staff card render failed", zap.Int("cards", len(cards)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate ID cards")
	}
	s.metrics.AddCardsGenerated(models.CardJobKindStaff, len(cards))

	return &CardFile{
		FileName:    fmt.Sprintf("%s_Staff_IDs_Bulk_%d_cards.pdf", s.cfg.FilenamePrefix, len(cards)),
		ContentType: pdfContentType,
		Body:        body,
		CardCount:   len(cards),
	}, nil
}

// Manifest renders the committed students as CSV.
func (s *CardService) Manifest(ctx context.Context, sessionID string) (*CardFile, error) {
	students, err := s.SelectedStudents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cards := make([]export.StudentCard, 0, len(students))
	for _, st := range students {
		cards = append(cards, studentCard(st))
	}
	body, err := s.csv.Render(export.StudentManifest(cards))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render manifest")
	}
	return &CardFile{
		FileName:    fmt.Sprintf("%s_Student_IDs_%d_manifest.csv", s.cfg.FilenamePrefix, len(cards)),
		ContentType: csvContentType,
		Body:        body,
		CardCount:   len(cards),
	}, nil
}

// resolvePhotos converts every photo to a data URL. A single student is one
// conversion; more fan out with bounded concurrency and are joined before
// rendering. Failures leave the entry empty so a placeholder is drawn.
func (s *CardService) resolvePhotos(ctx context.Context, students []models.Student) export.Photos {
	photos := make(export.Photos, len(students))
	if len(students) == 1 {
		if dataURL := s.resolvePhoto(ctx, students[0]); dataURL != "" {
			photos[students[0].ID] = dataURL
		}
		return photos
	}

	results := make([]string, len(students))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PhotoConcurrency)
	for i := range students {
		i := i
		g.Go(func() error {
			results[i] = s.resolvePhoto(gctx, students[i])
			return nil
		})
	}
	_ = g.Wait()

	for i, dataURL := range results {
		if dataURL != "" {
			photos[students[i].ID] = dataURL
		}
	}
	return photos
}

func (s *CardService) resolvePhoto(ctx context.Context, st models.Student) string {
	url := strings.TrimSpace(st.PhotoURL)
	switch {
	case url == "" || url == placeholderPhoto:
		return ""
	case imaging.IsDataURL(url):
		return url
	case s.photos == nil:
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.PhotoTimeout)
	defer cancel()
	dataURL, err := s.photos.PhotoDataURL(ctx, url, s.cfg.PhotoSize)
	if err != nil {
		s.logger.Warn("photo conversion failed, using placeholder",
			zap.String("student_id", st.ID), zap.Error(err))
		return ""
	}
	return dataURL
}

// acquire marks the session as generating; the returned func clears the flag.
func (s *CardService) acquire(sessionID string) (func(), error) {
	_, err := s.sessions.Update(sessionID, func(sess *repository.Session) error {
		if sess.Generating {
			return appErrors.Clone(appErrors.ErrBusy, "card generation already in progress")
		}
		sess.Generating = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return func() {
		if _, err := s.sessions.Update(sessionID, func(sess *repository.Session) error {
			sess.Generating = false
			return nil
		}); err != nil {
			s.logger.Warn("failed to clear generating flag", zap.String("session_id", sessionID), zap.Error(err))
		}
	}, nil
}

func studentCard(st models.Student) export.StudentCard {
	return export.StudentCard{
		ID:             st.ID,
		Name:           st.Name,
		Degree:         st.Degree,
		Programme:      st.Programme,
		IDNumber:       st.IDNumber,
		ExpirationDate: st.ExpirationDate,
		Campus:         st.Campus,
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "Student"
	}
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", "\"", "", "..", ".")
	result := []rune(replacer.Replace(raw))
	if len(result) > 100 {
		result = result[:100]
	}
	return string(result)
}
