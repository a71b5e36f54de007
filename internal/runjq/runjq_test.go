package runjq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunSelectsField(t *testing.T) {
	out, err := Run(".name", `{"name":"ada","age":30}`, true)
	require.NoError(t, err)
	require.Equal(t, "ada", out)
}

func TestRunIteratesArray(t *testing.T) {
	out, err := Run(".items[] | .id", `{"items":[{"id":1},{"id":2}]}`, false)
	require.NoError(t, err)
	require.Equal(t, "1\n2", out)
}

func TestRunInvalidJSON(t *testing.T) {
	_, err := Run(".", `not-json`, false)
	require.Error(t, err)
}

func TestRunInvalidQuery(t *testing.T) {
	_, err := Run("][", `{}`, false)
	require.Error(t, err)
}
