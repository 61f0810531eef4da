package handler

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorly-api/internal/middleware"
	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

var (
	adminPrincipal   = models.Principal{UserID: "admin-1", Role: models.RoleAdmin}
	tutorPrincipal   = models.Principal{UserID: "tutor-1", Role: models.RoleTutor}
	studentPrincipal = models.Principal{UserID: "student-1", Role: models.RoleStudent}
)

type testEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

// newTestContext builds a gin context for calling a handler directly. A nil
// principal leaves the request unauthenticated.
func newTestContext(method, target, body string, p *models.Principal, params ...gin.Param) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	if body != "" {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	if p != nil {
		c.Set(middleware.ContextPrincipalKey, *p)
	}
	c.Params = params
	return c, rec
}

func idParam(id string) gin.Param {
	return gin.Param{Key: "id", Value: id}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}
