package objectstorage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/northbound/codewatch/internal/apperrors"
)

// AzureBlobStore implements Store against one Azure Blob Storage (or
// Azurite-compatible) container.
type AzureBlobStore struct {
	client    *azblob.Client
	container string
}

// NewAzureBlobStore builds a client from a connection string and targets
// the given container, creating it if absent.
func NewAzureBlobStore(ctx context.Context, connectionString, container string) (*AzureBlobStore, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("new azblob client: %w", err)
	}

	s := &AzureBlobStore{client: client, container: container}
	if _, err := client.CreateContainer(ctx, container, nil); err != nil {
		if !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil, fmt.Errorf("create container %s: %w", container, err)
		}
	}
	return s, nil
}

func (s *AzureBlobStore) Put(ctx context.Context, key string, content []byte) error {
	_, err := s.client.UploadBuffer(ctx, s.container, key, content, nil)
	if err != nil {
		return &apperrors.UpstreamUnavailable{Upstream: "object_storage", Err: err}
	}
	return nil
}

func (s *AzureBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("object %s: %w", key, apperrors.ErrContentCacheNotFound)
		}
		return nil, &apperrors.UpstreamUnavailable{Upstream: "object_storage", Err: err}
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

func (s *AzureBlobStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteBlob(ctx, s.container, key, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return &apperrors.UpstreamUnavailable{Upstream: "object_storage", Err: err}
	}
	return nil
}

func (s *AzureBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, &apperrors.UpstreamUnavailable{Upstream: "object_storage", Err: err}
	}
	return true, nil
}
