package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"marketchat/internal/domain/entity"
	"marketchat/pkg/errors"
	"marketchat/pkg/logger"
)

const (
	MaxAttachmentSize = 10 << 20
	sniffLength       = 3072
)

var allowedMIMETypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"text/plain",
}

type CloudStorageClient struct {
	client     *storage.Client
	bucketName string
}

func NewCloudStorageClient(ctx context.Context, bucketName string, opts ...option.ClientOption) (*CloudStorageClient, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %v", err)
	}

	storageClient := &CloudStorageClient{
		client:     client,
		bucketName: bucketName,
	}

	if err := storageClient.setBucketCORS(ctx); err != nil {
		logger.Warn("Failed to set CORS configuration: %v", err)
	}

	return storageClient, nil
}

func (c *CloudStorageClient) setBucketCORS(ctx context.Context) error {
	bucket := c.client.Bucket(c.bucketName)

	corsConfig := storage.CORS{
		MaxAge:          3600,
		Methods:         []string{"GET", "HEAD"},
		Origins:         []string{"*"},
		ResponseHeaders: []string{"Content-Type"},
	}

	bucketAttrs, err := bucket.Attrs(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bucket attributes: %v", err)
	}

	if len(bucketAttrs.CORS) == 0 {
		_, err := bucket.Update(ctx, storage.BucketAttrsToUpdate{
			CORS: []storage.CORS{corsConfig},
		})
		if err != nil {
			return fmt.Errorf("failed to update bucket CORS: %v", err)
		}
	}

	return nil
}

// SniffAttachment detects the content type from the first bytes of a file
// and rejects anything that is not an allowed chat attachment. It returns
// the detected MIME type, the attachment kind and the file extension.
func SniffAttachment(head []byte) (string, string, string, error) {
	mtype := mimetype.Detect(head)
	for _, allowed := range allowedMIMETypes {
		if mtype.Is(allowed) {
			kind := "file"
			if strings.HasPrefix(allowed, "image/") {
				kind = "image"
			}
			return allowed, kind, mtype.Extension(), nil
		}
	}
	return "", "", "", errors.Validation("Unsupported attachment type: "+mtype.String(), nil)
}

// UploadAttachment stores a chat attachment under chat/<conversation>/ and
// returns it ready to be sent with a message.
func (c *CloudStorageClient) UploadAttachment(ctx context.Context, conversationID, filename string, file io.Reader) (*entity.Attachment, error) {
	head := make([]byte, sniffLength)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, errors.Validation("Failed to read attachment", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, errors.Validation("Attachment is empty", nil)
	}

	contentType, kind, ext, err := SniffAttachment(head)
	if err != nil {
		return nil, err
	}

	objectName := fmt.Sprintf("chat/%s/%s-%s%s", conversationID, uuid.New().String(), time.Now().Format("20060102150405"), ext)
	obj := c.client.Bucket(c.bucketName).Object(objectName)
	wc := obj.NewWriter(ctx)
	wc.ContentType = contentType
	wc.CacheControl = "private, max-age=86400"

	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), file), MaxAttachmentSize+1)
	written, err := io.Copy(wc, body)
	if err != nil {
		wc.Close()
		return nil, errors.Persistence("Failed to upload attachment", err)
	}
	if written > MaxAttachmentSize {
		wc.Close()
		_ = obj.Delete(ctx)
		return nil, errors.Validation("Attachment is too large", nil)
	}
	if err := wc.Close(); err != nil {
		return nil, errors.Persistence("Failed to upload attachment", err)
	}

	return &entity.Attachment{
		URL:  fmt.Sprintf("https://storage.googleapis.com/%s/%s", c.bucketName, objectName),
		Type: kind,
		Name: path.Base(filename),
		Size: written,
	}, nil
}

func (c *CloudStorageClient) Close() error {
	return c.client.Close()
}
