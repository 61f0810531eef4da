package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/export"
	"github.com/noah-isme/tutorly-api/pkg/jobs"
	"github.com/noah-isme/tutorly-api/pkg/storage"
)

type certificateRepository interface {
	GetDetail(ctx context.Context, id string) (*models.CertificateDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Certificate, error)
	SetFilePath(ctx context.Context, id, path string) error
}

type certificateStore interface {
	Save(relPath string, data []byte) (string, error)
	Read(relPath string) ([]byte, error)
}

type certificateRenderer interface {
	RenderCertificate(doc export.CertificateDocument) ([]byte, error)
}

type downloadSigner interface {
	Sign(resourceID, relPath string) (string, time.Time, error)
	Verify(token string, allowExpired bool) (storage.SignedObject, error)
}

// CertificateConfig tunes certificate rendering and download links.
type CertificateConfig struct {
	IssuerName string
	APIPrefix  string
}

// CertificateFile is a rendered certificate ready to be served.
type CertificateFile struct {
	Filename string
	Data     []byte
}

// CertificateService renders issued certificates and hands out signed download links.
type CertificateService struct {
	repo     certificateRepository
	store    certificateStore
	renderer certificateRenderer
	signer   downloadSigner
	authz    Authorizer
	logger   *zap.Logger
	cfg      CertificateConfig
}

// NewCertificateService constructs the service.
func NewCertificateService(repo certificateRepository, store certificateStore, signer downloadSigner, renderer certificateRenderer, authz Authorizer, logger *zap.Logger, cfg CertificateConfig) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if authz == nil {
		authz = DefaultPolicy()
	}
	if renderer == nil {
		renderer = export.NewPDFExporter()
	}
	if cfg.IssuerName == "" {
		cfg.IssuerName = "Tutorly"
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &CertificateService{repo: repo, store: store, renderer: renderer, signer: signer, authz: authz, logger: logger, cfg: cfg}
}

// HandleRender is the job handler for JobCertificateRender. Payload is the certificate ID.
func (s *CertificateService) HandleRender(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok || id == "" {
		return fmt.Errorf("certificate render: unexpected payload %T", job.Payload)
	}
	_, err := s.Render(ctx, id)
	return err
}

// Render draws the certificate PDF, stores it and records its path.
func (s *CertificateService) Render(ctx context.Context, id string) (string, error) {
	detail, err := s.repo.GetDetail(ctx, id)
	if err != nil {
		return "", fmt.Errorf("load certificate %s: %w", id, err)
	}
	pdf, err := s.renderer.RenderCertificate(export.CertificateDocument{
		Number:         detail.CertificateNumber,
		StudentName:    detail.StudentName,
		CourseTitle:    detail.CourseTitle,
		InstructorName: detail.InstructorName,
		IssuerName:     s.cfg.IssuerName,
		CompletedAt:    detail.CompletedAt,
		IssuedAt:       detail.IssuedAt,
	})
	if err != nil {
		return "", fmt.Errorf("render certificate %s: %w", id, err)
	}
	relPath, err := s.store.Save(certificatePath(&detail.Certificate), pdf)
	if err != nil {
		return "", fmt.Errorf("store certificate %s: %w", id, err)
	}
	if err := s.repo.SetFilePath(ctx, id, relPath); err != nil {
		return "", err
	}
	s.logger.Info("certificate rendered", zap.String("certificate_id", id), zap.String("path", relPath))
	return relPath, nil
}

// ListMine returns the caller's certificates.
func (s *CertificateService) ListMine(ctx context.Context, principal models.Principal) ([]models.Certificate, error) {
	certs, err := s.repo.ListByStudent(ctx, principal.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificates")
	}
	return certs, nil
}

// Get returns a certificate visible to its student, its instructor or an admin.
func (s *CertificateService) Get(ctx context.Context, principal models.Principal, id string) (*models.CertificateDetail, error) {
	detail, err := s.repo.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	if err := authorize(s.authz, principal, models.CapCertificateView, detail.StudentID, detail.InstructorID); err != nil {
		return nil, err
	}
	return detail, nil
}

// DownloadURL signs a short-lived link to the certificate PDF. Ready is false
// while the PDF is still being rendered.
func (s *CertificateService) DownloadURL(ctx context.Context, principal models.Principal, id string) (*models.CertificateDownload, error) {
	detail, err := s.Get(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if detail.FilePath == nil || *detail.FilePath == "" {
		return &models.CertificateDownload{CertificateID: id, Ready: false}, nil
	}
	token, expiresAt, err := s.signer.Sign(id, *detail.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	url := fmt.Sprintf("%s/certificates/download?token=%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token)
	return &models.CertificateDownload{CertificateID: id, URL: url, ExpiresAt: expiresAt, Ready: true}, nil
}

// Open verifies a download token and returns the stored PDF.
func (s *CertificateService) Open(ctx context.Context, token string) (*CertificateFile, error) {
	object, err := s.signer.Verify(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrExpiredToken) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
	}
	data, err := s.store.Read(object.Path)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate file not found")
	}
	return &CertificateFile{Filename: fmt.Sprintf("certificate-%s.pdf", object.ResourceID), Data: data}, nil
}

func certificatePath(cert *models.Certificate) string {
	return fmt.Sprintf("certificates/%s/%s.pdf", cert.StudentID, cert.ID)
}
