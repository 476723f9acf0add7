package storage

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// azblobUploader is the production Uploader, authenticating via the
// ambient Azure credential chain (managed identity in production,
// az-cli/env vars in development) and uploading each segment as a
// single blob named by its registry key.
type azblobUploader struct {
	client    *azblob.Client
	container string
}

// NewAzureBlobUploader builds an Uploader against the given storage
// account service URL ("https://<account>.blob.core.windows.net/") and
// container, authenticating with DefaultAzureCredential.
func NewAzureBlobUploader(serviceURL, container string) (Uploader, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("storage: azure credential: %w", err)
	}
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: azblob client: %w", err)
	}
	return &azblobUploader{client: client, container: container}, nil
}

func (u *azblobUploader) Upload(ctx context.Context, key string, data []byte) error {
	_, err := u.client.UploadBuffer(ctx, u.container, key, data, nil)
	if err != nil {
		return fmt.Errorf("storage: upload %s: %w", key, err)
	}
	return nil
}
