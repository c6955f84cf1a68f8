package handoff

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"lifesaver/internal/config"
	"lifesaver/internal/services"
)

// Transport submits the files of one event to remote storage.
type Transport interface {
	Name() string
	Submit(ctx context.Context, sessionID string, paths ...string) error
}

// NewTransport builds the transport selected by cfg.Handoff.Transport.
func NewTransport(ctx context.Context, cfg *config.Config) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Handoff.Transport)) {
	case "", "none":
		return NoneTransport{}, nil
	case "http":
		timeout := time.Duration(cfg.Handoff.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		return NewHTTPTransport(cfg.Handoff.UploadURL, &http.Client{Timeout: timeout}), nil
	case "s3":
		var loadOpts []func(*awsconfig.LoadOptions) error
		if region := strings.TrimSpace(cfg.Handoff.S3Region); region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "handoff", "load aws config", "", err)
		}
		return NewS3Transport(s3.NewFromConfig(awsCfg), cfg.Handoff.S3Bucket, cfg.Handoff.S3Prefix), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "handoff", "new transport",
			fmt.Sprintf("unknown transport %q", cfg.Handoff.Transport), nil)
	}
}

// NoneTransport keeps events on local storage only.
type NoneTransport struct{}

func (NoneTransport) Name() string { return "none" }

func (NoneTransport) Submit(context.Context, string, ...string) error { return nil }
