package contracts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/wolfman30/realestate-marketplace/pkg/logging"
)

var ErrDocumentNotFound = errors.New("contracts: document not found")

const documentContentType = "text/plain; charset=utf-8"

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Archive keeps rendered contract documents in an S3 bucket.
type Archive struct {
	client s3API
	bucket string
	logger *logging.Logger
	now    func() time.Time
}

// NewArchive returns nil when no bucket is configured.
func NewArchive(client *s3.Client, bucket string, logger *logging.Logger) *Archive {
	if client == nil || bucket == "" {
		return nil
	}
	return newArchive(client, bucket, logger)
}

func newArchive(client s3API, bucket string, logger *logging.Logger) *Archive {
	if logger == nil {
		logger = logging.Default()
	}
	return &Archive{client: client, bucket: bucket, logger: logger, now: time.Now}
}

// DocumentKey is the object key of a contract's document.
func DocumentKey(id uuid.UUID) string {
	return "contracts/v1/" + id.String() + ".txt"
}

// Put renders c and uploads it, returning the object key.
func (a *Archive) Put(ctx context.Context, c *Contract) (string, error) {
	body, err := RenderDocument(c, a.now().UTC())
	if err != nil {
		return "", err
	}
	key := DocumentKey(c.ID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(documentContentType),
		Metadata: map[string]string{
			"proposal-id": c.ProposalID.String(),
			"kind":        string(c.Kind),
		},
	})
	if err != nil {
		return "", fmt.Errorf("contracts: upload %s: %w", key, err)
	}
	return key, nil
}

// Open streams the stored document. Callers close the reader.
func (a *Archive) Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(DocumentKey(id)),
	})
	if err != nil {
		var missing *s3types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("contracts: download %s: %w", DocumentKey(id), err)
	}
	return out.Body, nil
}

// ArchivingStore stores contracts and then uploads their documents. Upload
// failures are logged; the handler renders a missing document on demand.
type ArchivingStore struct {
	Store
	archive *Archive
	logger  *logging.Logger
}

func NewArchivingStore(store Store, archive *Archive, logger *logging.Logger) *ArchivingStore {
	if store == nil {
		panic("contracts: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ArchivingStore{Store: store, archive: archive, logger: logger}
}

func (s *ArchivingStore) Create(ctx context.Context, c *Contract) error {
	if err := s.Store.Create(ctx, c); err != nil {
		return err
	}
	if s.archive == nil {
		return nil
	}
	key, err := s.archive.Put(ctx, c)
	if err != nil {
		s.logger.Warn("contract document not archived", "error", err, "contract_id", c.ID)
		return nil
	}
	s.logger.Info("contract document archived", "contract_id", c.ID, "key", key)
	return nil
}
