package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/internal/service"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/response"
)

type certificateService interface {
	ListMine(ctx context.Context, principal models.Principal) ([]models.Certificate, error)
	Get(ctx context.Context, principal models.Principal, id string) (*models.CertificateDetail, error)
	DownloadURL(ctx context.Context, principal models.Principal, id string) (*models.CertificateDownload, error)
	Open(ctx context.Context, token string) (*service.CertificateFile, error)
}

// CertificateHandler exposes issued certificates and their signed downloads.
type CertificateHandler struct {
	service certificateService
}

// NewCertificateHandler constructs the handler.
func NewCertificateHandler(svc certificateService) *CertificateHandler {
	return &CertificateHandler{service: svc}
}

// ListMine godoc
// @Summary My certificates
// @Tags Certificates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /certificates [get]
func (h *CertificateHandler) ListMine(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	certs, err := h.service.ListMine(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, certs)
}

// Get godoc
// @Summary Get certificate
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates/{id} [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	cert, err := h.service.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cert)
}

// DownloadURL godoc
// @Summary Signed download link
// @Description ready=false while the PDF is still rendering; poll again later
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/download-url [get]
func (h *CertificateHandler) DownloadURL(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	link, err := h.service.DownloadURL(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if !link.Ready {
		status = http.StatusAccepted
	}
	response.JSON(c, status, link, nil)
}

// Download godoc
// @Summary Download certificate PDF
// @Description Authenticated by the signed token, not by a bearer header
// @Tags Certificates
// @Produce application/pdf
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /certificates/download [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.service.Open(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, "application/pdf", file.Data)
}
