package handler

import (
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
	"github.com/noah-isme/idcard-api/pkg/response"
)

// maxUploadBytes caps multipart uploads; photos are further limited by the staff service.
const maxUploadBytes = 16 << 20

type uploadedFile struct {
	multipart.File
	Filename    string
	ContentType string
}

// formFile opens the named multipart field, writing an error response when absent.
func formFile(c *gin.Context, field string) (*uploadedFile, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	header, err := c.FormFile(field)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, field+" is required"))
		return nil, false
	}
	src, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open upload"))
		return nil, false
	}
	return &uploadedFile{File: src, Filename: header.Filename, ContentType: header.Header.Get("Content-Type")}, true
}
