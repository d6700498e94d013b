package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/host"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/transfer"
)

// AccelerateThreshold is the upload size above which Prompt offers to
// enable acceleration on a bucket that has it off.
const AccelerateThreshold = 100 << 20

var regions = []string{
	"us-east-1", "us-east-2", "us-west-1", "us-west-2",
	"ca-central-1", "sa-east-1",
	"eu-west-1", "eu-west-2", "eu-west-3", "eu-central-1", "eu-north-1", "eu-south-1",
	"ap-northeast-1", "ap-northeast-2", "ap-northeast-3", "ap-southeast-1", "ap-southeast-2",
	"ap-south-1", "ap-east-1", "me-south-1", "af-south-1",
}

// Locations lists the regions a bucket can be created in. Custom
// endpoints pick their own region, so only the configured one is offered.
func (b *Backend) Locations(context.Context) ([]feature.Region, error) {
	if b.endpoint != "" {
		return []feature.Region{{ID: b.region}}, nil
	}
	out := make([]feature.Region, len(regions))
	for i, r := range regions {
		out[i] = feature.Region{ID: r}
	}
	return out, nil
}

// Location returns the region of p's bucket.
func (b *Backend) Location(ctx context.Context, p *remote.Path) (feature.Region, error) {
	vol := p.Volume()
	if vol == nil {
		return feature.UnknownRegion, nil
	}
	out, err := b.client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: aws.String(vol.Name())})
	if err != nil {
		return feature.UnknownRegion, mapError("location", vol.Abs(), err)
	}
	return feature.Region{ID: normalizeRegion(out.LocationConstraint)}, nil
}

// normalizeRegion maps the legacy constraints S3 still returns.
func normalizeRegion(c types.BucketLocationConstraint) string {
	switch c {
	case "":
		return DefaultRegion
	case types.BucketLocationConstraintEu:
		return "eu-west-1"
	default:
		return string(c)
	}
}

// acceleration toggles S3 Transfer Acceleration per bucket. Its Open would
// collide with Backend.Open, hence the separate type.
type acceleration struct{ b *Backend }

func (a *acceleration) Status(ctx context.Context, p *remote.Path) (bool, error) {
	vol := p.Volume()
	if vol == nil {
		return false, fmt.Errorf("acceleration status: %w: no bucket", errdefs.ErrUnsupported)
	}
	out, err := a.b.client.GetBucketAccelerateConfiguration(ctx, &s3.GetBucketAccelerateConfigurationInput{
		Bucket: aws.String(vol.Name()),
	})
	if err != nil {
		return false, mapError("acceleration status", vol.Abs(), err)
	}
	return out.Status == types.BucketAccelerateStatusEnabled, nil
}

func (a *acceleration) SetStatus(ctx context.Context, p *remote.Path, enabled bool) error {
	vol := p.Volume()
	if vol == nil {
		return fmt.Errorf("acceleration status: %w: no bucket", errdefs.ErrUnsupported)
	}
	status := types.BucketAccelerateStatusSuspended
	if enabled {
		status = types.BucketAccelerateStatusEnabled
	}
	_, err := a.b.client.PutBucketAccelerateConfiguration(ctx, &s3.PutBucketAccelerateConfigurationInput{
		Bucket:                  aws.String(vol.Name()),
		AccelerateConfiguration: &types.AccelerateConfiguration{Status: status},
	})
	return mapError("acceleration status", vol.Abs(), err)
}

// Prompt reports whether a transfer of p should go through the
// accelerated endpoint. For large uploads to a bucket with acceleration
// off, cb is asked first; declining keeps the regular endpoint.
func (a *acceleration) Prompt(ctx context.Context, bookmark host.Host, p *remote.Path, status *transfer.Status, cb feature.ConnectionCallback) (bool, error) {
	enabled, err := a.Status(ctx, p)
	if err != nil {
		if errors.Is(err, errdefs.ErrAccessDenied) || errors.Is(err, errdefs.ErrUnsupported) {
			return false, nil
		}
		return false, err
	}
	if enabled || cb == nil || status == nil || status.Length < AccelerateThreshold {
		return enabled, nil
	}
	msg := fmt.Sprintf("Enable Transfer Acceleration for bucket %s? Additional charges apply.", p.Volume().Name())
	if err := cb.Warn(ctx, bookmark, "Transfer Acceleration", msg); err != nil {
		if errors.Is(err, errdefs.ErrLoginCanceled) || errors.Is(err, errdefs.ErrCanceled) {
			return false, nil
		}
		return false, err
	}
	if err := a.SetStatus(ctx, p, true); err != nil {
		return false, err
	}
	return true, nil
}

// Open returns bookmark pointed at the accelerated endpoint. A backend
// created for it addresses buckets virtual-host style through that endpoint.
func (a *acceleration) Open(_ context.Context, bookmark host.Host, p *remote.Path) (host.Host, error) {
	if p.Volume() == nil {
		return host.Host{}, fmt.Errorf("accelerate: %w: no bucket", errdefs.ErrUnsupported)
	}
	accelerated := bookmark
	accelerated.Hostname = AccelerateHostname
	accelerated.Port = 0
	return accelerated, nil
}
