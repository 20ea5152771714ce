package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSDP(t *testing.T) {
	valid := "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"
	assert.NoError(t, ValidateSDP(valid))

	assert.Error(t, ValidateSDP(""))
	assert.Error(t, ValidateSDP("hello"))
	assert.Error(t, ValidateSDP("o=- 0 0\r\nv=0\r\ns=-\r\nt=0 0\r\n")) // must start with v=
	assert.Error(t, ValidateSDP("v=0\r\ns=-\r\nt=0 0\r\n"))           // missing o=
}

func TestValidateStreamID(t *testing.T) {
	assert.NoError(t, ValidateStreamID("morning-show_01"))
	assert.Error(t, ValidateStreamID(""))
	assert.Error(t, ValidateStreamID("has space"))
	assert.Error(t, ValidateStreamID("semi;colon"))
	assert.Error(t, ValidateStreamID(strings.Repeat("a", 101)))
}

func TestValidateViewerID(t *testing.T) {
	assert.NoError(t, ValidateViewerID("550e8400-e29b-41d4-a716-446655440000"))
	assert.Error(t, ValidateViewerID(""))
	assert.Error(t, ValidateViewerID("bad/slash"))
}
