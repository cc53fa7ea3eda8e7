package lambda

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBody(t *testing.T) {
	body, err := readBody(strings.NewReader("0123456789"), 10)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(body), "body at the limit is kept whole")

	_, err = readBody(strings.NewReader("0123456789A"), 10)
	require.ErrorIs(t, err, ErrResponseTooLarge)
}
