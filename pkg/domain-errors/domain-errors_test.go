package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite tests the error primitives used at every trust boundary:
// wrapped domain errors keep their original code and errors.Is matches by code.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorInterface() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeNotFound, Message: "credential not found"}
		s.Equal("credential not found", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeIntegrity}
		s.Equal("integrity_failure", err.Error())
	})
}

func (s *DomainErrorsSuite) TestIsMatchesByCode() {
	s.Run("matches same code with different messages", func() {
		err1 := &Error{Code: CodeRevoked, Message: "credential revoked"}
		err2 := &Error{Code: CodeRevoked, Message: "other"}
		s.True(err1.Is(err2))
	})

	s.Run("does not match different codes", func() {
		s.False((&Error{Code: CodeExpired}).Is(&Error{Code: CodeChallengeExpired}))
	})

	s.Run("does not match plain errors", func() {
		s.False((&Error{Code: CodeNotFound}).Is(errors.New("not found")))
	})

	s.Run("errors.Is walks the chain", func() {
		inner := &Error{Code: CodeNotFound, Message: "original"}
		wrapped := &Error{Code: CodeInternal, Message: "wrapped", Err: inner}
		s.True(errors.Is(wrapped, &Error{Code: CodeNotFound}))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("preserves original domain code", func() {
		original := New(CodeIntegrity, "segment digest mismatch")
		wrapped := Wrap(original, CodeInternal, "verification failed")

		var domainErr *Error
		s.Require().True(errors.As(wrapped, &domainErr))
		s.Equal(CodeIntegrity, domainErr.Code)
		s.Equal("verification failed", domainErr.Message)
	})

	s.Run("uses provided code for plain errors", func() {
		original := errors.New("redis timeout")
		wrapped := Wrap(original, CodeTransient, "credential store unavailable")

		s.True(HasCode(wrapped, CodeTransient))
		s.True(errors.Is(wrapped, original))
	})
}

func (s *DomainErrorsSuite) TestHasCode() {
	s.True(HasCode(New(CodeReplayDetected, "used"), CodeReplayDetected))
	s.False(HasCode(New(CodeReplayDetected, "used"), CodeNotFound))
	s.False(HasCode(errors.New("plain"), CodeNotFound))
	s.False(HasCode(nil, CodeNotFound))
	s.True(HasCode(fmt.Errorf("ctx: %w", New(CodeRevoked, "revoked")), CodeRevoked))
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(CodeConfiguration, CodeOf(New(CodeConfiguration, "bad weights")))
	s.Equal(CodeInternal, CodeOf(errors.New("boom")))
}

func (s *DomainErrorsSuite) TestIsDenial() {
	for _, code := range []Code{CodeIntegrity, CodeExpired, CodeRevoked, CodeAuthFailed, CodePolicyDenied} {
		s.True(IsDenial(New(code, "x")), string(code))
	}
	for _, code := range []Code{CodeNotFound, CodeTransient, CodeReplayDetected, CodeConfiguration} {
		s.False(IsDenial(New(code, "x")), string(code))
	}
}
