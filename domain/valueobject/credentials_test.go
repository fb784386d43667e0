package valueobject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCredentials(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{name: "valid", username: "admin", password: "@adminbkn"},
		{name: "trims username", username: "  admin  ", password: "x"},
		{name: "missing username", username: "   ", password: "x", wantErr: ErrMissingUsername},
		{name: "missing password", username: "admin", password: "", wantErr: ErrMissingPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := NewCredentials(tt.username, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, creds)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "admin", creds.Username())
			assert.Equal(t, tt.password, creds.Password())
		})
	}
}
