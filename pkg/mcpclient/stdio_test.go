package mcpclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertEnv(t *testing.T) {
	assert.Nil(t, convertEnv(nil))

	out := convertEnv(map[string]string{"FOO": "bar"})
	assert.Equal(t, []string{"FOO=bar"}, out)
}
