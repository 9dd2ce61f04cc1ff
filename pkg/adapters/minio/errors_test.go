package minio

import (
	"errors"
	"testing"

	"github.com/aretw0/baton/pkg/domain"
	backend "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		key  string
		want []error
	}{
		{
			name: "missing key",
			err:  backend.ErrorResponse{Code: "NoSuchKey", StatusCode: 404},
			key:  "result",
			want: []error{domain.ErrArtifactNotFound},
		},
		{
			name: "missing bucket on read",
			err:  backend.ErrorResponse{Code: "NoSuchBucket", StatusCode: 404},
			key:  "result",
			want: []error{domain.ErrArtifactNotFound, domain.ErrBucketNotFound},
		},
		{
			name: "missing bucket",
			err:  backend.ErrorResponse{Code: "NoSuchBucket", StatusCode: 404},
			want: []error{domain.ErrBucketNotFound},
		},
		{
			name: "access denied",
			err:  backend.ErrorResponse{Code: "AccessDenied", StatusCode: 403},
			key:  "result",
			want: []error{domain.ErrStorageUnavailable},
		},
		{
			name: "network",
			err:  errors.New("dial tcp: connection refused"),
			want: []error{domain.ErrStorageUnavailable},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err, "bucket", tt.key)
			for _, want := range tt.want {
				assert.ErrorIs(t, got, want)
			}
		})
	}
}

func TestAlreadyOwned(t *testing.T) {
	assert.True(t, alreadyOwned(backend.ErrorResponse{Code: "BucketAlreadyOwnedByYou"}))
	assert.False(t, alreadyOwned(backend.ErrorResponse{Code: "BucketAlreadyExists"}))
	assert.False(t, alreadyOwned(errors.New("boom")))
}
