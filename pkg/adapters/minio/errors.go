package minio

import (
	"fmt"

	"github.com/aretw0/baton/pkg/domain"
	backend "github.com/minio/minio-go/v7"
)

// S3 error codes the store distinguishes.
const (
	codeNoSuchKey               = "NoSuchKey"
	codeNoSuchBucket            = "NoSuchBucket"
	codeBucketAlreadyOwnedByYou = "BucketAlreadyOwnedByYou"
)

// classify maps S3 errors onto the domain taxonomy. Anything not identified as a
// missing object or bucket is treated as the store being unavailable.
func classify(err error, bucket, key string) error {
	resp := backend.ToErrorResponse(err)
	switch resp.Code {
	case codeNoSuchKey:
		return fmt.Errorf("%w: %s/%s", domain.ErrArtifactNotFound, bucket, key)
	case codeNoSuchBucket:
		if key != "" {
			return fmt.Errorf("%w: %s (reading %s): %w", domain.ErrArtifactNotFound, bucket, key, domain.ErrBucketNotFound)
		}
		return fmt.Errorf("%w: %s", domain.ErrBucketNotFound, bucket)
	}
	return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
}

func alreadyOwned(err error) bool {
	return backend.ToErrorResponse(err).Code == codeBucketAlreadyOwnedByYou
}
