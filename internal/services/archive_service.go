package services

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go/logging"
	"github.com/beatvault/backend/internal/config"
	"github.com/google/uuid"
)

// ArchiveService mirrors committed objects to an S3-compatible bucket.
// Mirroring is fire-and-forget; the request path never waits on it.
type ArchiveService struct {
	client      *s3.Client
	cfg         *config.Config
	objectStore *ObjectStoreService
}

func NewArchiveService(cfg *config.Config, objectStore *ObjectStoreService) (*ArchiveService, error) {
	client, err := buildS3Client(cfg.ArchiveS3Endpoint, cfg.ArchiveS3Region, cfg.ArchiveS3AccessKeyID, cfg.ArchiveS3SecretAccess, cfg.ArchiveS3UsePathStyle)
	if err != nil {
		return nil, err
	}
	return &ArchiveService{client: client, cfg: cfg, objectStore: objectStore}, nil
}

func buildS3Client(endpoint, region, key, secret string, pathStyle bool) (*s3.Client, error) {
	resolver := awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
		func(service, rgn string, options ...interface{}) (aws.Endpoint, error) {
			if endpoint != "" {
				return aws.Endpoint{URL: endpoint, SigningRegion: region}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		}))
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")),
		resolver,
		awsconfig.WithLogger(logging.NewStandardLogger(nil)),
	)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
	})
	return client, nil
}

func (s *ArchiveService) archiveKey(objectID uuid.UUID) string {
	return fmt.Sprintf("objects/%s", objectID)
}

// MirrorObject streams a committed object into the archive bucket.
// Intended to run in its own goroutine; errors are logged, never surfaced.
func (s *ArchiveService) MirrorObject(ctx context.Context, objectID uuid.UUID) {
	obj, stream, err := s.objectStore.Get(ctx, objectID)
	if err != nil {
		log.Printf("Archive mirror: cannot open object %s: %v", objectID, err)
		return
	}
	defer stream.Close()

	key := s.archiveKey(objectID)
	uploader := manager.NewUploader(s.client)
	in := &s3.PutObjectInput{
		Bucket:      &s.cfg.ArchiveBucket,
		Key:         &key,
		Body:        stream,
		ContentType: &obj.MimeType,
		ACL:         s3types.ObjectCannedACLPrivate,
	}
	if _, err := uploader.Upload(ctx, in, func(u *manager.Uploader) { u.PartSize = 10 * 1024 * 1024 }); err != nil {
		log.Printf("Archive mirror: upload of object %s failed: %v", objectID, err)
		return
	}
	log.Printf("Archive mirror: object %s mirrored (%d bytes)", objectID, obj.Length)
}

// PurgeObject removes the mirrored copy after the object is deleted.
// Best-effort; a leftover archive copy is harmless.
func (s *ArchiveService) PurgeObject(ctx context.Context, objectID uuid.UUID) {
	key := s.archiveKey(objectID)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.cfg.ArchiveBucket,
		Key:    &key,
	}); err != nil {
		log.Printf("Archive mirror: purge of object %s failed: %v", objectID, err)
	}
}
