package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

// LimitsSuite tests the length helpers at the request trust boundary.
// "max+1 must fail" and "max must pass" both hold at every limit.
type LimitsSuite struct {
	suite.Suite
}

func TestLimitsSuite(t *testing.T) {
	suite.Run(t, new(LimitsSuite))
}

func (s *LimitsSuite) TestExceedsLength() {
	s.Run("passes when length equals max", func() {
		s.False(ExceedsLength(strings.Repeat("a", MaxNameLength), MaxNameLength))
	})

	s.Run("fails at max plus one", func() {
		s.True(ExceedsLength(strings.Repeat("a", MaxNameLength+1), MaxNameLength))
	})

	s.Run("counts characters not bytes", func() {
		s.False(ExceedsLength(strings.Repeat("é", 100), MaxNameLength))
	})
}
