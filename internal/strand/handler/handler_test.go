package handler

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"strand/internal/entropy"
	"strand/internal/strand/assembler"
	"strand/internal/strand/builder"
	"strand/internal/strand/codec"
	"strand/internal/strand/handler/mocks"
	"strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
	"strand/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
	cred    *models.Credential
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)

	h := New(s.service, nil, 64)
	s.router = chi.NewRouter()
	h.Register(s.router)
	h.RegisterAdmin(s.router)

	src := entropy.New()
	b, err := builder.New(src, testutil.NewPolicySource(), testutil.IssuerKey())
	s.Require().NoError(err)
	s.cred, err = assembler.New(src, b, testutil.IssuerKey()).Generate(context.Background(), models.GenerateRequest{
		SubjectID:        "user-1",
		PolicyID:         "standard",
		SegmentCount:     32,
		SubjectPublicKey: testutil.SubjectKey().Public().(ed25519.PublicKey),
	})
	s.Require().NoError(err)
}

func (s *HandlerSuite) do(method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) errorCode(rec *httptest.ResponseRecorder) string {
	var body map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func (s *HandlerSuite) validRequest() GenerateRequest {
	return GenerateRequest{
		SubjectID:        " user-1 ",
		PolicyID:         "standard",
		SubjectPublicKey: hex.EncodeToString(testutil.SubjectKey().Public().(ed25519.PublicKey)),
		TTL:              "2h",
	}
}

func (s *HandlerSuite) TestGenerate() {
	s.service.EXPECT().Generate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req models.GenerateRequest) (*models.Credential, error) {
			s.Equal("user-1", req.SubjectID)
			s.Equal(64, req.SegmentCount, "default count applies")
			s.Equal(2*time.Hour, req.TTL)
			s.Len(req.SubjectPublicKey, ed25519.PublicKeySize)
			s.Nil(req.StepUpPublicKey)
			return s.cred, nil
		})

	rec := s.do(http.MethodPost, "/strands", s.validRequest(), nil)
	s.Require().Equal(http.StatusCreated, rec.Code)

	var resp CredentialResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(s.cred.ID, resp.CredentialID)
	s.Equal(s.cred.Digest.Hex(), resp.Digest)

	decoded, err := codec.DecodeCredential(resp.Encoding)
	s.Require().NoError(err)
	s.Equal(s.cred.Digest, decoded.Digest)
}

func (s *HandlerSuite) TestGenerateEnrollsStepUpKey() {
	stepUp := testutil.StepUpKey().Public().(ed25519.PublicKey)
	s.service.EXPECT().Generate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req models.GenerateRequest) (*models.Credential, error) {
			s.Equal(stepUp, req.StepUpPublicKey)
			return s.cred, nil
		})

	req := s.validRequest()
	req.StepUpPublicKey = hex.EncodeToString(stepUp)
	rec := s.do(http.MethodPost, "/strands", req, nil)
	s.Equal(http.StatusCreated, rec.Code)
}

func (s *HandlerSuite) TestGenerateValidation() {
	cases := map[string]func(*GenerateRequest){
		"missing subject": func(r *GenerateRequest) { r.SubjectID = "  " },
		"short key":       func(r *GenerateRequest) { r.SubjectPublicKey = "abcd" },
		"non-hex key":     func(r *GenerateRequest) { r.SubjectPublicKey = string(bytes.Repeat([]byte("zz"), 32)) },
		"tiny count":      func(r *GenerateRequest) { r.SegmentCount = 8 },
		"bad ttl":         func(r *GenerateRequest) { r.TTL = "forever" },
		"short step-up":   func(r *GenerateRequest) { r.StepUpPublicKey = "abcd" },
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			req := s.validRequest()
			mutate(&req)
			rec := s.do(http.MethodPost, "/strands", req, nil)
			s.Equal(http.StatusBadRequest, rec.Code)
			s.Equal("bad_request", s.errorCode(rec))
		})
	}
}

func (s *HandlerSuite) TestGenerateErrorMapping() {
	cases := []struct {
		code   dErrors.Code
		status int
	}{
		{dErrors.CodeConfiguration, http.StatusBadRequest},
		{dErrors.CodeEntropyUnavailable, http.StatusServiceUnavailable},
		{dErrors.CodeTransient, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		s.Run(string(tc.code), func() {
			s.service.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(tc.code, "x"))
			rec := s.do(http.MethodPost, "/strands", s.validRequest(), nil)
			s.Equal(tc.status, rec.Code)
		})
	}
}

func (s *HandlerSuite) TestGet() {
	s.service.EXPECT().Get(gomock.Any(), s.cred.ID).Return(s.cred, nil).Times(2)

	rec := s.do(http.MethodGet, "/strands/"+s.cred.ID, nil, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var resp CredentialResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(uint32(32), resp.SegmentCount)

	rec = s.do(http.MethodGet, "/strands/"+s.cred.ID, nil, map[string]string{"Accept": ContentTypeCBOR})
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(ContentTypeCBOR, rec.Header().Get("Content-Type"))
	want, err := codec.EncodeCredential(s.cred)
	s.Require().NoError(err)
	s.Equal(want, rec.Body.Bytes())
}

func (s *HandlerSuite) TestGetNotFound() {
	s.service.EXPECT().Get(gomock.Any(), "strand_missing").Return(nil, dErrors.New(dErrors.CodeNotFound, "credential not found"))
	rec := s.do(http.MethodGet, "/strands/strand_missing", nil, nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/strands/not-a-strand", nil, nil)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("not_found", s.errorCode(rec))
}
