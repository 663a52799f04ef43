package vectorstore_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/supportd/internal/vectorstore"
)

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "valid simple name",
			input:   "support_docs",
			wantErr: false,
		},
		{
			name:    "valid with digits",
			input:   "docs_v2",
			wantErr: false,
		},
		{
			name:    "valid session collection with uuid",
			input:   "user_6f1a2b3c-4d5e-6f70-8192-a3b4c5d6e7f8",
			wantErr: false,
		},
		{
			name:    "empty name",
			input:   "",
			wantErr: true,
		},
		{
			name:    "uppercase rejected",
			input:   "SupportDocs",
			wantErr: true,
		},
		{
			name:    "spaces rejected",
			input:   "support docs",
			wantErr: true,
		},
		{
			name:    "path traversal rejected",
			input:   "../etc/passwd",
			wantErr: true,
		},
		{
			name:    "over 64 chars rejected",
			input:   strings.Repeat("a", 65),
			wantErr: true,
		},
		{
			name:    "exactly 64 chars accepted",
			input:   strings.Repeat("a", 64),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := vectorstore.ValidateCollectionName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
