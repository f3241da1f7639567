package usecase

import (
	"context"
	"io"

	"marketchat/internal/domain/entity"
)

// AttachmentUploader stores a file a participant attaches to a message.
type AttachmentUploader interface {
	UploadAttachment(ctx context.Context, conversationID, filename string, file io.Reader) (*entity.Attachment, error)
}
