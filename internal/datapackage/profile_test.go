package datapackage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{name: "path resource", json: `{"name":"a","resources":[{"name":"r","path":"r.csv"}]}`},
		{name: "inline data resource", json: `{"title":"Upload Test","resources":[{"name":"r","data":[[1,2]]}]}`},
		{name: "no resources", json: `{"name":"a"}`, wantErr: true},
		{name: "empty resources", json: `{"name":"a","resources":[]}`, wantErr: true},
		{name: "resource without path or data", json: `{"resources":[{"name":"r"}]}`, wantErr: true},
		{name: "uppercase name", json: `{"name":"Gemeinden","resources":[{"path":"r.csv"}]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Decode([]byte(tt.json))
			require.NoError(t, err)

			err = Validate(d)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.NotEmpty(t, verr.Problems)
		})
	}
}
