package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaultJWTSecret(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{"development with default secret", map[string]string{"ENVIRONMENT": "development"}, false},
		{"production with default secret", map[string]string{"ENVIRONMENT": "production"}, true},
		{"production with secret", map[string]string{"ENVIRONMENT": "production", "JWT_SECRET": "s3cret"}, false},
		{"production with firebase auth", map[string]string{"ENVIRONMENT": "production", "AUTH_MODE": "firebase"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", DefaultJWTSecret)
			t.Setenv("AUTH_MODE", AuthJWT)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.NoError(t, err)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}
