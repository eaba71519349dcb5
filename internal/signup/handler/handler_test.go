package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,Metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"

	"signup-api/internal/platform/health"
	"signup-api/internal/signup/handler/mocks"
	"signup-api/internal/signup/models"
	"signup-api/internal/signup/service"
	dErrors "signup-api/pkg/domain-errors"
	"signup-api/pkg/platform/httputil"
	request "signup-api/pkg/platform/middleware/request"
)

const validBody = `{"firstName":"Jane","lastName":"Doe","email":"jane.doe@leeds.gov.uk","domain":"leeds.gov.uk"}`

type HandlerSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	mockService *mocks.MockService
	mockMetrics *mocks.MockMetrics
	logs        bytes.Buffer
	router      http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockService = mocks.NewMockService(s.ctrl)
	s.mockMetrics = mocks.NewMockMetrics(s.ctrl)
	s.logs.Reset()

	logger := slog.New(slog.NewJSONHandler(&s.logs, nil))
	h := New(s.mockService, logger,
		WithMetrics(s.mockMetrics),
		WithLoginRedirectURL("/login"),
	)
	s.router = NewRouter(h, health.New("test"), logger, request.NewMetrics(prometheus.NewRegistry()))
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) post(body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/signup-api/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignupHeader, SignupHeaderValue)
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) errorBody(rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (s *HandlerSuite) assertError(rec *httptest.ResponseRecorder, status int, code, message string) {
	s.Equal(status, rec.Code)
	body := s.errorBody(rec)
	s.Equal(code, body["error"])
	if message != "" {
		s.Equal(message, body["message"])
	}
	if code != httputil.CodeUserExists {
		s.NotContains(body, "redirectUrl")
	}
}

func (s *HandlerSuite) assertSecurityHeaders(rec *httptest.ResponseRecorder) {
	h := rec.Header()
	s.Equal("default-src 'none'", h.Get("Content-Security-Policy"))
	s.Equal("nosniff", h.Get("X-Content-Type-Options"))
	s.Equal("DENY", h.Get("X-Frame-Options"))
	s.Equal("strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
	s.Equal("max-age=31536000; includeSubDomains", h.Get("Strict-Transport-Security"))
	s.Equal("application/json", h.Get("Content-Type"))
	s.NotEmpty(h.Get("X-Request-ID"))
}

func (s *HandlerSuite) TestSignupSuccess() {
	s.Run("mixed case signup header is accepted", func() {
		s.mockService.EXPECT().Signup(gomock.Any(), gomock.Any()).Return(nil)
		s.mockMetrics.EXPECT().IncrementSignupRequests(outcomeSuccess)

		rec := s.post(validBody, func(r *http.Request) {
			r.Header.Set(SignupHeader, "SIGNUP-FORM")
		})

		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"success":true}`, rec.Body.String())
		s.assertSecurityHeaders(rec)
	})

	s.Run("content type parameters are tolerated", func() {
		s.mockService.EXPECT().Signup(gomock.Any(), gomock.Any()).Return(nil)
		s.mockMetrics.EXPECT().IncrementSignupRequests(outcomeSuccess)

		rec := s.post(validBody, func(r *http.Request) {
			r.Header.Set("Content-Type", "application/json; charset=utf-8")
		})

		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("service receives the canonical request", func() {
		var got *models.SignupRequest
		s.mockService.EXPECT().Signup(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *models.SignupRequest) error {
				got = req
				return nil
			})
		s.mockMetrics.EXPECT().IncrementSignupRequests(outcomeSuccess)

		rec := s.post(`{"firstName":"  Jane ","lastName":"Doe","email":"Jane.Doe+test@Leeds.gov.uk","domain":"LEEDS.gov.uk"}`)

		s.Require().Equal(http.StatusOK, rec.Code)
		s.Require().NotNil(got)
		s.Equal("Jane", got.FirstName)
		s.Equal("jane.doe@leeds.gov.uk", got.Email)
		s.Equal("leeds.gov.uk", got.Domain)
	})

	s.Run("caller correlation id is echoed", func() {
		s.mockService.EXPECT().Signup(gomock.Any(), gomock.Any()).Return(nil)
		s.mockMetrics.EXPECT().IncrementSignupRequests(outcomeSuccess)

		rec := s.post(validBody, func(r *http.Request) {
			r.Header.Set("X-Request-ID", "trace-abc-123")
		})

		s.Equal("trace-abc-123", rec.Header().Get("X-Request-ID"))
	})
}

func (s *HandlerSuite) TestSignupAdmission() {
	s.Run("missing signup header", func() {
		s.mockMetrics.EXPECT().IncrementSignupRequests(httputil.CodeCSRFInvalid)

		rec := s.post(validBody, func(r *http.Request) {
			r.Header.Del(SignupHeader)
		})

		s.assertError(rec, http.StatusForbidden, httputil.CodeCSRFInvalid, msgCSRFInvalid)
		s.assertSecurityHeaders(rec)
	})

	s.Run("wrong signup header value", func() {
		s.mockMetrics.EXPECT().IncrementSignupRequests(httputil.CodeCSRFInvalid)

		rec := s.post(validBody, func(r *http.Request) {
			r.Header.Set(SignupHeader, "other-form")
		})

		s.assertError(rec, http.StatusForbidden, httputil.CodeCSRFInvalid, "")
	})

	s.Run("signup header is checked before content type", func() {
		s.mockMetrics.EXPECT().IncrementSignupRequests(httputil.CodeCSRFInvalid)

		rec := s.post(validBody, func(r *http.Request) {
			r.Header.Del(SignupHeader)
			r.Header.Set("Content-Type", "text/plain")
		})

		s.assertError(rec, http.StatusForbidden, httputil.CodeCSRFInvalid, "")
	})

	s.Run("form content type", func() {
		s.mockMetrics.EXPECT().IncrementSignupRequests(httputil.CodeInvalidContentType)

		rec := s.post("firstName=Jane", func(r *http.Request) {
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		})

		s.assertError(rec, http.StatusBadRequest, httputil.CodeInvalidContentType, msgInvalidContentType)
	})

	s.Run("missing content type", func() {
		s.mockMetrics.EXPECT().IncrementSignupRequests(httputil.CodeInvalidContentType)

		rec := s.post(validBody, func(r *http.Request) {
			r.Header.Del("Content-Type")
		})

		s.assertError(rec, http.StatusBadRequest, httputil.CodeInvalidContentType, "")
	})

	s.Run("oversized body", func() {
		s.mockMetrics.EXPECT().IncrementSignupRequests(httputil.CodeRequestTooLarge)

		body := `{"firstName":"` + strings.Repeat("a", 15000) + `","lastName":"Doe","email":"jane@leeds.gov.uk","domain":"leeds.gov.uk"}`
		rec := s.post(body)

		s.assertError(rec, http.StatusBadRequest, httputil.CodeRequestTooLarge, msgRequestTooLarge)
	})

	s.Run("oversized body without declared length", func() {
		s.mockMetrics.EXPECT().IncrementSignupRequests(httputil.CodeRequestTooLarge)

		rec := s.post(`{"firstName":"`+strings.Repeat("a", 15000)+`"}`, func(r *http.Request) {
			r.ContentLength = -1
		})

		s.assertError(rec, http.StatusBadRequest, httputil.CodeRequestTooLarge, "")
	})
}

func (s *HandlerSuite) TestSignupInvalidBody() {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"firstName":`},
		{"array top level", `[{"firstName":"Jane"}]`},
		{"string top level", `"hello"`},
		{"wrong field type", `{"firstName":42,"lastName":"Doe","email":"jane@leeds.gov.uk","domain":"leeds.gov.uk"}`},
		{"proto key", `{"__proto__":{"admin":true},"firstName":"Jane","lastName":"Doe","email":"jane@leeds.gov.uk","domain":"leeds.gov.uk"}`},
		{"nested constructor key", `{"firstName":"Jane","lastName":"Doe","email":"jane@leeds.gov.uk","domain":"leeds.gov.uk","extra":{"constructor":{"prototype":1}}}`},
		{"trailing data", validBody + `{}`},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.mockMetrics.EXPECT().IncrementSignupRequests(httputil.CodeInvalidContentType)

			rec := s.post(tt.body)

			s.assertError(rec, http.StatusBadRequest, httputil.CodeInvalidContentType, msgInvalidBody)
		})
	}
}

func (s *HandlerSuite) TestSignupFieldValidation() {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{
			name:    "missing field",
			body:    `{"firstName":"Jane","lastName":"Doe","email":"jane@leeds.gov.uk"}`,
			message: models.MsgFieldsRequired,
		},
		{
			name:    "whitespace only field",
			body:    `{"firstName":"   ","lastName":"Doe","email":"jane@leeds.gov.uk","domain":"leeds.gov.uk"}`,
			message: models.MsgFieldsRequired,
		},
		{
			name:    "name too long",
			body:    `{"firstName":"` + strings.Repeat("a", 101) + `","lastName":"Doe","email":"jane@leeds.gov.uk","domain":"leeds.gov.uk"}`,
			message: models.MsgNameTooLong,
		},
		{
			name:    "apostrophe in name",
			body:    `{"firstName":"O'Brien","lastName":"Doe","email":"jane@leeds.gov.uk","domain":"leeds.gov.uk"}`,
			message: models.MsgNameInvalidChars,
		},
		{
			name:    "markup in name",
			body:    `{"firstName":"Jane","lastName":"<b>Doe</b>","email":"jane@leeds.gov.uk","domain":"leeds.gov.uk"}`,
			message: models.MsgNameInvalidChars,
		},
		{
			name:    "email too long",
			body:    `{"firstName":"Jane","lastName":"Doe","email":"` + strings.Repeat("a", 250) + `@leeds.gov.uk","domain":"leeds.gov.uk"}`,
			message: models.MsgEmailTooLong,
		},
		{
			name:    "cyrillic homoglyph in email",
			body:    `{"firstName":"Jane","lastName":"Doe","email":"j` + "а" + `ne@leeds.gov.uk","domain":"leeds.gov.uk"}`,
			message: models.MsgEmailInvalidChar,
		},
		{
			name:    "email without domain",
			body:    `{"firstName":"Jane","lastName":"Doe","email":"jane@","domain":"leeds.gov.uk"}`,
			message: models.MsgEmailFormat,
		},
		{
			name:    "email domain mismatch",
			body:    `{"firstName":"Jane","lastName":"Doe","email":"jane@york.gov.uk","domain":"leeds.gov.uk"}`,
			message: models.MsgDomainMismatch,
		},
		{
			name:    "local part only alias",
			body:    `{"firstName":"Jane","lastName":"Doe","email":"+tag@leeds.gov.uk","domain":"leeds.gov.uk"}`,
			message: models.MsgEmailFormat,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.mockMetrics.EXPECT().IncrementSignupRequests(httputil.CodeInvalidEmail)

			rec := s.post(tt.body)

			s.assertError(rec, http.StatusBadRequest, httputil.CodeInvalidEmail, tt.message)
		})
	}
}

func (s *HandlerSuite) TestSignupMissingFieldsAreLogged() {
	s.mockMetrics.EXPECT().IncrementSignupRequests(httputil.CodeInvalidEmail)

	rec := s.post(`{"firstName":"Jane","lastName":"Doe","email":"jane.doe@leeds.gov.uk"}`)

	s.assertError(rec, http.StatusBadRequest, httputil.CodeInvalidEmail, models.MsgFieldsRequired)
	s.Contains(s.logs.String(), `"msg":"signup fields missing"`)
	s.Contains(s.logs.String(), `"fields":["domain"]`)
	s.NotContains(s.logs.String(), "jane.doe")
}

func (s *HandlerSuite) TestSignupServiceErrors() {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"domain not allowed", dErrors.New(dErrors.CodeForbidden, "domain not allowed"), http.StatusForbidden, httputil.CodeDomainNotAllowed, msgDomainNotAllowed},
		{"allowlist unavailable", dErrors.New(dErrors.CodeUnavailable, "allowlist unavailable"), http.StatusServiceUnavailable, httputil.CodeServiceUnavailable, msgServiceUnavailable},
		{"timeout", dErrors.New(dErrors.CodeTimeout, "timed out"), http.StatusServiceUnavailable, httputil.CodeServiceUnavailable, msgServiceUnavailable},
		{"internal", dErrors.New(dErrors.CodeInternal, "existence check failed"), http.StatusInternalServerError, httputil.CodeServerError, msgServerError},
		{"configuration", dErrors.New(dErrors.CodeConfiguration, "missing configuration: role_arn"), http.StatusInternalServerError, httputil.CodeServerError, msgServerError},
		{"untyped", errors.New("boom"), http.StatusInternalServerError, httputil.CodeServerError, msgServerError},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.mockService.EXPECT().Signup(gomock.Any(), gomock.Any()).Return(tt.err)
			s.mockMetrics.EXPECT().IncrementSignupRequests(tt.code)

			rec := s.post(validBody)

			s.assertError(rec, tt.status, tt.code, tt.message)
			s.NotContains(rec.Body.String(), tt.err.Error())
		})
	}
}

func (s *HandlerSuite) TestSignupUserExists() {
	s.mockService.EXPECT().Signup(gomock.Any(), gomock.Any()).Return(models.ErrUserExists)
	s.mockMetrics.EXPECT().IncrementSignupRequests(httputil.CodeUserExists)

	rec := s.post(validBody)

	s.Equal(http.StatusConflict, rec.Code)
	s.JSONEq(`{"error":"USER_EXISTS","message":"An account with this email address already exists","redirectUrl":"/login"}`, rec.Body.String())
}

func (s *HandlerSuite) TestSignupRejectionLogsNoPersonalData() {
	s.mockMetrics.EXPECT().IncrementSignupRequests(httputil.CodeInvalidEmail)

	rec := s.post(`{"firstName":"Jane","lastName":"O'Doe","email":"jane.doe@leeds.gov.uk","domain":"leeds.gov.uk"}`)

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(s.logs.String(), "signup rejected")
	s.NotContains(s.logs.String(), "jane.doe")
	s.NotContains(s.logs.String(), "O'Doe")
}

func (s *HandlerSuite) TestDomains() {
	s.Run("returns allowlist", func() {
		s.mockService.EXPECT().Domains(gomock.Any()).Return([]models.DomainInfo{
			{Domain: "leeds.gov.uk", OrgName: "Leeds City Council"},
		}, nil)

		rec := s.get("/signup-api/domains")

		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"domains":[{"domain":"leeds.gov.uk","orgName":"Leeds City Council"}]}`, rec.Body.String())
		s.assertSecurityHeaders(rec)
	})

	s.Run("allowlist unavailable", func() {
		s.logs.Reset()
		s.mockService.EXPECT().Domains(gomock.Any()).Return(nil, dErrors.New(dErrors.CodeUnavailable, "no snapshot"))

		rec := s.get("/signup-api/domains")

		s.assertError(rec, http.StatusServiceUnavailable, httputil.CodeServiceUnavailable, msgServiceUnavailable)
		s.NotContains(s.logs.String(), `"level":"ERROR"`, "the cache already logged the failure")
	})
}

func (s *HandlerSuite) TestRouting() {
	s.Run("unknown path", func() {
		rec := s.get("/signup-api/unknown")

		s.assertError(rec, http.StatusNotFound, httputil.CodeNotFound, msgNotFound)
		s.assertSecurityHeaders(rec)
	})

	s.Run("path outside base", func() {
		rec := s.get("/signup")

		s.assertError(rec, http.StatusNotFound, httputil.CodeNotFound, msgNotFound)
	})

	s.Run("wrong method", func() {
		rec := s.get("/signup-api/signup")

		s.assertError(rec, http.StatusNotFound, httputil.CodeNotFound, msgNotFound)
		s.assertSecurityHeaders(rec)
	})

	s.Run("liveness", func() {
		rec := s.get("/signup-api/health")

		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"status":"ok"}`, rec.Body.String())
		s.assertSecurityHeaders(rec)
	})
}

func TestRouter_TimedOutRequestKeepsHeaders(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	released := make(chan struct{})
	svc.EXPECT().Domains(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]models.DomainInfo, error) {
		defer close(released)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(New(svc, logger), health.New("test"), logger, request.NewMetrics(prometheus.NewRegistry()),
		WithRequestTimeout(20*time.Millisecond),
	)

	req := httptest.NewRequest(http.MethodGet, "/signup-api/domains", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	<-released

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"SERVICE_UNAVAILABLE","message":"Request timed out"}`, rec.Body.String())
	h := rec.Header()
	assert.Equal(t, "abc-123", h.Get("X-Request-ID"))
	assert.Equal(t, "default-src 'none'", h.Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", h.Get("Strict-Transport-Security"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
}

type staticDomains []models.DomainInfo

func (d staticDomains) GetDomains(context.Context) ([]models.DomainInfo, error) {
	return d, nil
}

// directoryStub is an in-memory directory that enforces username uniqueness
// on create the way the identity store does.
type directoryStub struct {
	mu    sync.Mutex
	users map[string]struct{}
}

func (d *directoryStub) UserExists(_ context.Context, email string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.users[email]
	return ok, nil
}

func (d *directoryStub) CreateUser(_ context.Context, req *models.SignupRequest) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[req.Email]; ok {
		return "", models.ErrUserExists
	}
	d.users[req.Email] = struct{}{}
	return "user-" + req.Email, nil
}

func TestSignup_ConcurrentSameEmail(t *testing.T) {
	const attempts = 10

	directory := &directoryStub{users: map[string]struct{}{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(staticDomains{{Domain: "leeds.gov.uk", OrgName: "Leeds City Council"}}, directory,
		service.WithLogger(logger),
	)
	router := NewRouter(New(svc, logger), health.New("test"), logger, request.NewMetrics(prometheus.NewRegistry()))

	var (
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			// Variants of one mailbox must collapse to the same identity.
			email := "jane.doe@leeds.gov.uk"
			if i%2 == 1 {
				email = "Jane.Doe+try@LEEDS.gov.uk"
			}
			body := `{"firstName":"Jane","lastName":"Doe","email":"` + email + `","domain":"leeds.gov.uk"}`
			req := httptest.NewRequest(http.MethodPost, "/signup-api/signup", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(SignupHeader, SignupHeaderValue)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			mu.Lock()
			statuses[rec.Code]++
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, statuses[http.StatusOK])
	assert.Equal(t, attempts-1, statuses[http.StatusConflict])
	assert.Len(t, directory.users, 1)
}
