package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/idcard-api/internal/dto"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
)

type selectionServiceStub struct {
	lastStudent string
	lastDate    string
	lastQuery   dto.StudentFilterQuery
	uploadName  string
	uploadBody  string
	err         error
}

func (s *selectionServiceStub) snap(id string) (*dto.SessionSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.SessionSnapshot{ID: id}, nil
}

func (s *selectionServiceStub) CreateSession(ctx context.Context) (*dto.SessionSnapshot, error) {
	return s.snap("new")
}

func (s *selectionServiceStub) Snapshot(ctx context.Context, id string) (*dto.SessionSnapshot, error) {
	return s.snap(id)
}

func (s *selectionServiceStub) Students(ctx context.Context, id string, q dto.StudentFilterQuery, refresh bool) (*dto.StudentListing, error) {
	s.lastQuery = q
	if s.err != nil {
		return nil, s.err
	}
	return &dto.StudentListing{Total: 3, Visible: 1}, nil
}

func (s *selectionServiceStub) ToggleTemp(ctx context.Context, id, studentID string) (*dto.SessionSnapshot, error) {
	s.lastStudent = studentID
	return s.snap(id)
}

func (s *selectionServiceStub) SelectAllVisible(ctx context.Context, id string, q dto.StudentFilterQuery) (*dto.SessionSnapshot, error) {
	s.lastQuery = q
	return s.snap(id)
}

func (s *selectionServiceStub) CommitAll(ctx context.Context, id string) (*dto.SessionSnapshot, error) {
	return s.snap(id)
}

func (s *selectionServiceStub) Commit(ctx context.Context, id, studentID string) (*dto.SessionSnapshot, error) {
	s.lastStudent = studentID
	return s.snap(id)
}

func (s *selectionServiceStub) Remove(ctx context.Context, id, studentID string) (*dto.SessionSnapshot, error) {
	s.lastStudent = studentID
	return s.snap(id)
}

func (s *selectionServiceStub) Clear(ctx context.Context, id string) (*dto.SessionSnapshot, error) {
	return s.snap(id)
}

func (s *selectionServiceStub) SetExpiration(ctx context.Context, id, studentID, date string) (*dto.SessionSnapshot, error) {
	s.lastStudent, s.lastDate = studentID, date
	return s.snap(id)
}

func (s *selectionServiceStub) UploadCSVFilter(ctx context.Context, id, filename string, r io.Reader) (*dto.SessionSnapshot, error) {
	raw, _ := io.ReadAll(r)
	s.uploadName, s.uploadBody = filename, string(raw)
	return s.snap(id)
}

func (s *selectionServiceStub) ClearCSVFilter(ctx context.Context, id string) (*dto.SessionSnapshot, error) {
	return s.snap(id)
}

func sessionRouter(svc selectionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSessionHandler(svc, nil)
	r := gin.New()
	r.POST("/sessions", h.Create)
	s := r.Group("/sessions/:id")
	s.GET("", h.Get)
	s.GET("/students", h.Students)
	s.POST("/temp/:studentId/toggle", h.ToggleTemp)
	s.POST("/temp/select-visible", h.SelectVisible)
	s.PUT("/selected/:studentId/expiration", h.SetExpiration)
	s.POST("/csv-filter", h.UploadCSVFilter)
	return r
}

func TestSessionHandlerCreate(t *testing.T) {
	r := sessionRouter(&selectionServiceStub{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var env struct {
		Data dto.SessionSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "new", env.Data.ID)
}

func TestSessionHandlerStudentsBindsFilters(t *testing.T) {
	stub := &selectionServiceStub{}
	r := sessionRouter(stub)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/s1/students?search=ana&programme=CS&campus=Barcelona&since=2024-09", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.StudentFilterQuery{Search: "ana", Programme: "CS", Campus: "Barcelona", Since: "2024-09"}, stub.lastQuery)
}

func TestSessionHandlerMapsServiceErrors(t *testing.T) {
	r := sessionRouter(&selectionServiceStub{err: appErrors.Clone(appErrors.ErrNotFound, "session not found")})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrNotFound.Code, env.Error.Code)
}

func TestSessionHandlerToggleUsesPathParams(t *testing.T) {
	stub := &selectionServiceStub{}
	r := sessionRouter(stub)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions/s1/temp/ana_0/toggle", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana_0", stub.lastStudent)
}

func TestSessionHandlerSetExpiration(t *testing.T) {
	stub := &selectionServiceStub{}
	r := sessionRouter(stub)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/sessions/s1/selected/ana_0/expiration", bytes.NewBufferString(`{"expirationDate":"June 2027"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "June 2027", stub.lastDate)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/sessions/s1/selected/ana_0/expiration", bytes.NewBufferString(`{`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandlerUploadCSVFilter(t *testing.T) {
	stub := &selectionServiceStub{}
	r := sessionRouter(stub)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "ids.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("id\nHS-1\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/sessions/s1/csv-filter", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ids.csv", stub.uploadName)
	assert.Equal(t, "id\nHS-1\n", stub.uploadBody)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions/s1/csv-filter", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
