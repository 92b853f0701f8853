package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewEtcdBackendValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     EtcdConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:    "empty endpoints",
			cfg:     EtcdConfig{},
			wantErr: true,
			errMsg:  "endpoints cannot be empty",
		},
		{
			name: "default dial timeout",
			cfg:  EtcdConfig{Endpoints: []string{"localhost:2379"}},
		},
		{
			name: "custom dial timeout",
			cfg:  EtcdConfig{Endpoints: []string{"localhost:2379"}, DialTimeout: 10 * time.Second},
		},
		{
			name: "with authentication",
			cfg:  EtcdConfig{Endpoints: []string{"localhost:2379"}, Username: "user", Password: "pass"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEtcdBackend(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
				return
			}
			// clientv3.New doesn't dial eagerly, so a well-formed config never
			// errors here even with no etcd server reachable.
			assert.NoError(t, err)
		})
	}
}
