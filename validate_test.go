package stowage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUserAccepts(t *testing.T) {
	assert.NoError(t, ValidateUser(Params{Username: "boris", Password: "zipwire"}))
	assert.NoError(t, ValidateUser(Params{Username: "a.b-c_9", Password: "x"}))
	assert.NoError(t, ValidateUser(Params{Username: "ab", Password: "x", Email: "boris@example.com"}))
}

func TestValidateUserRejects(t *testing.T) {
	tests := []struct {
		name     string
		params   Params
		failures int
	}{
		{"short username", Params{Username: "b", Password: "x"}, 1},
		{"bad charset", Params{Username: "boris!", Password: "x"}, 1},
		{"blank password", Params{Username: "boris", Password: ""}, 1},
		{"everything wrong", Params{Username: "", Password: ""}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUser(tt.params)
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Len(t, verr.Failures, tt.failures)
		})
	}
}
