// Package s3 serves Amazon S3 and compatible object stores. Buckets are the
// volumes at the top of the tree; directories below them are key prefixes,
// optionally backed by an empty "name/" placeholder object.
package s3

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/bamsammich/ferry/internal/checksum"
	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/host"
	"github.com/bamsammich/ferry/internal/remote"
)

const (
	// DefaultRegion signs requests when neither the bookmark nor the
	// configuration names one.
	DefaultRegion = "us-east-1"
	// AccelerateHostname is the endpoint of accelerated transfers.
	AccelerateHostname = "s3-accelerate.amazonaws.com"

	// maxDeleteBatch is the DeleteObjects limit per request.
	maxDeleteBatch = 1000
	// slowDownBackoff is suggested to callers when the service throttles.
	slowDownBackoff = 5 * time.Second
)

// Backend is a connection to one S3 endpoint.
type Backend struct {
	host     host.Host
	region   string
	endpoint string
	logger   *slog.Logger

	client *s3.Client
}

// Option configures a Backend.
type Option func(*Backend)

func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithRegion sets the signing region used when the bookmark has none.
func WithRegion(region string) Option {
	return func(b *Backend) {
		if region != "" && b.region == "" {
			b.region = region
		}
	}
}

// WithEndpoint overrides the service URL, for S3-compatible stores.
// Requests then use path-style addressing.
func WithEndpoint(url string) Option {
	return func(b *Backend) { b.endpoint = url }
}

// WithClient uses c instead of building a client on Open.
func WithClient(c *s3.Client) Option {
	return func(b *Backend) { b.client = c }
}

// New returns an unconnected backend for h.
func New(h host.Host, opts ...Option) *Backend {
	b := &Backend{host: h, region: h.Region, logger: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	if b.region == "" {
		b.region = DefaultRegion
	}
	if b.endpoint == "" {
		b.endpoint = endpointFor(h)
	}
	return b
}

// SetCredentials replaces the credentials used by the next Open.
func (b *Backend) SetCredentials(c host.Credentials) {
	b.host.Credentials = c
	b.client = nil
}

// endpointFor returns the base URL for custom hosts, or "" for AWS.
func endpointFor(h host.Host) string {
	switch h.Hostname {
	case "", host.DefaultS3Hostname, AccelerateHostname:
		return ""
	}
	return "https://" + h.Addr()
}

// Open builds the client and checks the credentials with a cheap request.
func (b *Backend) Open(ctx context.Context) error {
	if b.client == nil {
		client, err := b.newClient(ctx)
		if err != nil {
			return err
		}
		b.client = client
	}

	var err error
	if bucket, _ := bucketKey(remote.Parse(b.host.DefaultPath, remote.Directory)); bucket != "" {
		_, err = b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	} else {
		_, err = b.client.ListBuckets(ctx, &s3.ListBucketsInput{MaxBuckets: aws.Int32(1)})
	}
	if err != nil {
		return mapError("login", b.host.String(), err)
	}
	b.logger.Debug("s3 connected", "endpoint", b.endpoint, "region", b.region)
	return nil
}

func (b *Backend) newClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(b.region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	creds := b.host.Credentials
	if creds.IsAnonymous() {
		// Fall back to unsigned requests when the environment has no keys.
		if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
			cfg.Credentials = aws.AnonymousCredentials{}
		}
	} else {
		cfg.Credentials = credentials.NewStaticCredentialsProvider(creds.User, creds.Password, creds.Token)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if b.endpoint != "" {
			o.BaseEndpoint = aws.String(b.endpoint)
			o.UsePathStyle = true
		}
		if b.host.Hostname == AccelerateHostname {
			o.UseAccelerate = true
		}
	}), nil
}

func (b *Backend) Close() error {
	b.client = nil
	return nil
}

// Features registers every capability S3 offers.
func (b *Backend) Features() []feature.Entry {
	return []feature.Entry{
		feature.Provide[feature.Read](feature.ReadKey, b),
		feature.Provide[feature.Write](feature.WriteKey, b),
		feature.Provide[feature.List](feature.ListKey, b),
		feature.Provide[feature.Delete](feature.DeleteKey, b),
		feature.Provide[feature.Search](feature.SearchKey, b),
		feature.Provide[feature.AclPermission](feature.AclPermissionKey, b),
		feature.Provide[feature.Location](feature.LocationKey, b),
		feature.Provide[feature.TransferAcceleration](feature.TransferAccelerationKey, &acceleration{b: b}),
		feature.Provide[feature.Directory](feature.DirectoryKey, b),
		feature.Provide[feature.Stat](feature.StatKey, b),
	}
}

// bucketKey splits p into its bucket and object key. Directory keys carry a
// trailing delimiter; a bucket itself has an empty key.
func bucketKey(p *remote.Path) (bucket, key string) {
	segs := p.Segments()
	if len(segs) == 0 {
		return "", ""
	}
	key = strings.Join(segs[1:], remote.Delimiter)
	if key != "" && p.IsDirectory() {
		key += remote.Delimiter
	}
	return segs[0], key
}

// decodeChecksum converts the base64 digest S3 returns into a Checksum.
func decodeChecksum(alg checksum.Algorithm, b64 *string) checksum.Checksum {
	if b64 == nil || *b64 == "" {
		return checksum.None
	}
	// Multipart objects report "digest-N", which is not a digest of the content.
	if strings.Contains(*b64, "-") {
		return checksum.None
	}
	raw, err := base64.StdEncoding.DecodeString(*b64)
	if err != nil {
		return checksum.None
	}
	return checksum.New(alg, hex.EncodeToString(raw))
}

type statusCoder interface {
	HTTPStatusCode() int
}

// mapError converts service errors to the shared sentinels, keeping the
// original in the chain.
func mapError(op, p string, err error) error {
	if err == nil {
		return nil
	}
	wrap := func(sentinel error) error {
		return &errdefs.BackgroundError{Op: op, Path: p, Err: fmt.Errorf("%w: %w", sentinel, err)}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound", "NoSuchVersion":
			return wrap(errdefs.ErrNotFound)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AllAccessDisabled", "Forbidden":
			return wrap(errdefs.ErrAccessDenied)
		case "SlowDown", "RequestLimitExceeded", "TooManyRequests":
			return &errdefs.BackgroundError{Op: op, Path: p, Err: &errdefs.RetriableAccessDeniedError{
				Detail:  apiErr.ErrorMessage(),
				Backoff: slowDownBackoff,
			}}
		case "BadDigest", "InvalidDigest", "XAmzContentSHA256Mismatch":
			return wrap(errdefs.ErrChecksumMismatch)
		case "NotImplemented", "MethodNotAllowed":
			return wrap(errdefs.ErrUnsupported)
		}
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch sc.HTTPStatusCode() {
		case http.StatusNotFound:
			return wrap(errdefs.ErrNotFound)
		case http.StatusUnauthorized, http.StatusForbidden:
			return wrap(errdefs.ErrAccessDenied)
		case http.StatusNotImplemented:
			return wrap(errdefs.ErrUnsupported)
		}
	}
	return errdefs.Background(op, p, err)
}
