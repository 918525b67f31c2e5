package pseudonym

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashIsDeterministic(t *testing.T) {
	h := New("pepper")

	first := h.Hash("203.0.113.7")
	second := h.Hash("203.0.113.7")

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.NotContains(t, first, "203.0.113.7")
}

func TestHashMatchesSaltedSHA256(t *testing.T) {
	sum := sha256.Sum256([]byte("10.0.0.1" + "pepper"))

	assert.Equal(t, hex.EncodeToString(sum[:]), New("pepper").Hash("10.0.0.1"))
}

func TestHashDependsOnSalt(t *testing.T) {
	assert.NotEqual(t, New("a").Hash("10.0.0.1"), New("b").Hash("10.0.0.1"))
}

func TestEmptySaltFallsBackToDefault(t *testing.T) {
	assert.Equal(t, New(DefaultSalt).Hash("10.0.0.1"), New("").Hash("10.0.0.1"))
}

func TestForSurveyIsScoped(t *testing.T) {
	h := New("pepper")

	assert.Equal(t, h.ForSurvey("s1", "10.0.0.1"), h.ForSurvey("s1", "10.0.0.1"))
	assert.NotEqual(t, h.ForSurvey("s1", "10.0.0.1"), h.ForSurvey("s2", "10.0.0.1"))
	assert.NotEqual(t, h.Hash("10.0.0.1"), h.ForSurvey("s1", "10.0.0.1"))
}
