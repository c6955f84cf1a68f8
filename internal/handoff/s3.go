package handoff

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"lifesaver/internal/services"
)

// PutObjectAPI is the subset of *s3.Client the S3 transport uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Transport uploads each file to <prefix>/<session id>/<file name>.
type S3Transport struct {
	client PutObjectAPI
	bucket string
	prefix string
}

func NewS3Transport(client PutObjectAPI, bucket, prefix string) *S3Transport {
	return &S3Transport{client: client, bucket: bucket, prefix: prefix}
}

func (t *S3Transport) Name() string { return "s3" }

// Key returns the object key for a file of sessionID.
func (t *S3Transport) Key(sessionID, file string) string {
	return path.Join(t.prefix, sessionID, filepath.Base(file))
}

func (t *S3Transport) Submit(ctx context.Context, sessionID string, paths ...string) error {
	for _, p := range paths {
		if err := t.put(ctx, sessionID, p); err != nil {
			return err
		}
	}
	return nil
}

func (t *S3Transport) put(ctx context.Context, sessionID, p string) error {
	file, err := os.Open(p)
	if err != nil {
		return services.Wrap(services.ErrHandoffTransport, "handoff", "open", p, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return services.Wrap(services.ErrHandoffTransport, "handoff", "stat", p, err)
	}

	key := t.Key(sessionID, p)
	contentType := mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return services.Wrap(services.ErrHandoffTransport, "handoff", "put object",
			fmt.Sprintf("s3://%s/%s", t.bucket, key), err)
	}
	return nil
}
