package objstore

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"

	ierr "github.com/costplane/costplane/internal/errors"
)

// AzureClient implements Client against one blob storage container.
type AzureClient struct {
	client    *container.Client
	container string
}

// NewAzureClient builds a client bound to one container. A connection string
// takes precedence; otherwise DefaultAzureCredential against the storage
// account endpoint is used.
func NewAzureClient(storageAccount, containerName, connectionString string) (*AzureClient, error) {
	var svc *azblob.Client
	var err error

	if connectionString != "" {
		svc, err = azblob.NewClientFromConnectionString(connectionString, nil)
	} else {
		var cred *azidentity.DefaultAzureCredential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err == nil {
			url := fmt.Sprintf("https://%s.blob.core.windows.net/", storageAccount)
			svc, err = azblob.NewClient(url, cred, nil)
		}
	}
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to build azure blob client").
			Mark(ierr.ErrTransport)
	}

	return &AzureClient{
		client:    svc.ServiceClient().NewContainerClient(containerName),
		container: containerName,
	}, nil
}

func (c *AzureClient) Bucket() string {
	return c.container
}

func (c *AzureClient) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	pager := c.client.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix: &prefix,
	})
	for pager.More() {
		var resp container.ListBlobsFlatResponse
		err := retryTransient(ctx, func() error {
			var perr error
			resp, perr = pager.NextPage(ctx)
			return perr
		})
		if err != nil {
			return nil, ierr.WithError(err).
				WithHintf("failed to list blobs in %s under %s", c.container, prefix).
				Mark(ierr.ErrTransport)
		}

		for _, item := range resp.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			info := ObjectInfo{Key: *item.Name}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					info.Size = *item.Properties.ContentLength
				}
				if item.Properties.LastModified != nil {
					info.LastModified = *item.Properties.LastModified
				}
			}
			objects = append(objects, info)
		}
	}

	return objects, nil
}

func (c *AzureClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	blobClient := c.client.NewBlobClient(key)

	var body io.ReadCloser
	err := retryTransient(ctx, func() error {
		resp, gerr := blobClient.DownloadStream(ctx, nil)
		if gerr != nil {
			if isAzureNotFound(gerr) {
				return backoff.Permanent(gerr)
			}
			return gerr
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		if isAzureNotFound(err) {
			return nil, ierr.WithError(err).
				WithHintf("blob %s/%s does not exist", c.container, key).
				Mark(ierr.ErrObjectNotFound)
		}
		return nil, ierr.WithError(err).
			WithHintf("failed to fetch blob %s/%s", c.container, key).
			Mark(ierr.ErrTransport)
	}
	return body, nil
}

func isAzureNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
