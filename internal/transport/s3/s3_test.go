package s3

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/checksum"
	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/host"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/transfer"
)

func TestBucketKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		abs    string
		typ    remote.Type
		bucket string
		key    string
	}{
		{"/", remote.Directory, "", ""},
		{"/bucket", remote.Directory, "bucket", ""},
		{"/bucket/a.txt", remote.File, "bucket", "a.txt"},
		{"/bucket/dir", remote.Directory, "bucket", "dir/"},
		{"/bucket/dir/sub/f", remote.File, "bucket", "dir/sub/f"},
	}
	for _, tt := range tests {
		t.Run(tt.abs, func(t *testing.T) {
			bucket, key := bucketKey(remote.Parse(tt.abs, tt.typ))
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestDecodeChecksum(t *testing.T) {
	t.Parallel()
	// sha256("hello")
	got := decodeChecksum(checksum.SHA256, aws.String("LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ="))
	assert.Equal(t, "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", got.String())

	assert.True(t, decodeChecksum(checksum.SHA256, nil).IsNone())
	assert.True(t, decodeChecksum(checksum.SHA256, aws.String("")).IsNone())
	assert.True(t, decodeChecksum(checksum.SHA256, aws.String("abc=-3")).IsNone())
	assert.True(t, decodeChecksum(checksum.SHA256, aws.String("%%%")).IsNone())
}

type httpStatusError struct{ code int }

func (e httpStatusError) Error() string       { return fmt.Sprintf("http %d", e.code) }
func (e httpStatusError) HTTPStatusCode() int { return e.code }

func TestMapError(t *testing.T) {
	t.Parallel()
	api := func(code string) error { return &smithy.GenericAPIError{Code: code, Message: "m"} }
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no such key", api("NoSuchKey"), errdefs.ErrNotFound},
		{"typed no such key", &types.NoSuchKey{}, errdefs.ErrNotFound},
		{"no such bucket", api("NoSuchBucket"), errdefs.ErrNotFound},
		{"access denied", api("AccessDenied"), errdefs.ErrAccessDenied},
		{"bad signature", api("SignatureDoesNotMatch"), errdefs.ErrAccessDenied},
		{"bad digest", api("BadDigest"), errdefs.ErrChecksumMismatch},
		{"not implemented", api("NotImplemented"), errdefs.ErrUnsupported},
		{"http 404", httpStatusError{404}, errdefs.ErrNotFound},
		{"http 403", httpStatusError{403}, errdefs.ErrAccessDenied},
		{"wrapped", fmt.Errorf("op: %w", api("NoSuchKey")), errdefs.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError("op", "/b/k", tt.err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, mapError("op", "/b", nil))
	other := errors.New("boom")
	err := mapError("op", "/b", other)
	var bg *errdefs.BackgroundError
	require.ErrorAs(t, err, &bg)
	assert.Equal(t, "op", bg.Op)
	assert.ErrorIs(t, err, other)
}

func TestMapErrorThrottlingIsRetriable(t *testing.T) {
	t.Parallel()
	err := mapError("list", "/b", &smithy.GenericAPIError{Code: "SlowDown", Message: "reduce your request rate"})
	backoff, ok := errdefs.Retriable(err)
	assert.True(t, ok)
	assert.Equal(t, slowDownBackoff, backoff)
	assert.ErrorIs(t, err, errdefs.ErrAccessDenied)
}

func TestAclConversion(t *testing.T) {
	t.Parallel()
	acl := remote.NewAcl(
		remote.Grant{User: remote.User{Kind: remote.CanonicalUser, ID: "abc"}, Role: remote.RoleFullControl},
		remote.Grant{User: remote.User{Kind: remote.EmailUser, ID: "a@b.c"}, Role: remote.RoleRead},
		remote.Grant{User: remote.User{Kind: remote.GroupUser, ID: "http://acs.amazonaws.com/groups/global/AllUsers"}, Role: remote.RoleRead},
		remote.Grant{User: remote.User{Kind: remote.OwnerUser}, Role: remote.RoleWrite},
	)
	grants := fromAcl(acl)
	require.Len(t, grants, 3)
	assert.Equal(t, types.TypeCanonicalUser, grants[0].Grantee.Type)
	assert.Equal(t, types.PermissionFullControl, grants[0].Permission)
	assert.Equal(t, types.TypeAmazonCustomerByEmail, grants[1].Grantee.Type)
	assert.Equal(t, types.TypeGroup, grants[2].Grantee.Type)

	back := toAcl(append(grants, types.Grant{Permission: types.PermissionRead}))
	assert.False(t, back.Modified)
	assert.True(t, remote.NewAcl(acl.Grants[:3]...).Equal(back))
}

func TestNormalizeRegion(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "us-east-1", normalizeRegion(""))
	assert.Equal(t, "eu-west-1", normalizeRegion(types.BucketLocationConstraintEu))
	assert.Equal(t, "ap-south-1", normalizeRegion("ap-south-1"))
}

func TestNewEndpointAndRegion(t *testing.T) {
	t.Parallel()
	amazon := New(host.Host{Protocol: host.ProtocolS3, Hostname: host.DefaultS3Hostname})
	assert.Empty(t, amazon.endpoint)
	assert.Equal(t, DefaultRegion, amazon.region)

	minio := New(host.Host{Protocol: host.ProtocolS3, Hostname: "minio.local", Port: 9000}, WithRegion("eu-central-1"))
	assert.Equal(t, "https://minio.local:9000", minio.endpoint)
	assert.Equal(t, "eu-central-1", minio.region)

	explicit := New(host.Host{Protocol: host.ProtocolS3, Region: "ap-south-1"},
		WithRegion("eu-central-1"), WithEndpoint("http://127.0.0.1:9000"))
	assert.Equal(t, "http://127.0.0.1:9000", explicit.endpoint)
	assert.Equal(t, "ap-south-1", explicit.region)

	custom, err := explicit.Locations(context.Background())
	require.NoError(t, err)
	require.Len(t, custom, 1)
	assert.Equal(t, "ap-south-1", custom[0].ID)

	all, err := amazon.Locations(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, len(regions))
}

func TestWriteRejectsWhatS3CannotStore(t *testing.T) {
	t.Parallel()
	b := New(host.Host{Protocol: host.ProtocolS3})
	ctx := context.Background()

	_, err := b.Write(ctx, remote.Parse("/bucket", remote.Directory), transfer.NewStatus())
	assert.ErrorIs(t, err, errdefs.ErrUnsupported)

	appendStatus := transfer.NewStatus()
	appendStatus.Length, appendStatus.Append = 3, true
	_, err = b.Write(ctx, remote.Parse("/bucket/k", remote.File), appendStatus)
	assert.ErrorIs(t, err, errdefs.ErrUnsupported)

	_, err = b.Write(ctx, remote.Parse("/bucket/k", remote.File), transfer.NewStatus())
	assert.ErrorIs(t, err, errdefs.ErrUnsupported)
}

func TestPageEntries(t *testing.T) {
	t.Parallel()
	dir := remote.Parse("/bucket/photos", remote.Directory)
	modified := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	page := &s3.ListObjectsV2Output{
		CommonPrefixes: []types.CommonPrefix{{Prefix: aws.String("photos/2024/")}},
		Contents: []types.Object{
			{Key: aws.String("photos/")},
			{Key: aws.String("photos/cat.jpg"), Size: aws.Int64(42), LastModified: &modified, StorageClass: types.ObjectStorageClassGlacier},
		},
	}
	list := pageEntries(dir, "photos/", page)
	require.Len(t, list, 2)
	assert.Equal(t, "/bucket/photos/2024", list[0].Abs())
	assert.True(t, list[0].IsDirectory())
	assert.Equal(t, "cat.jpg", list[1].Name())
	attrs := list[1].Attributes()
	assert.Equal(t, int64(42), attrs.Size)
	assert.Equal(t, "GLACIER", attrs.StorageClass)
	assert.True(t, attrs.Modified.Equal(modified))
}

func TestAccelerationOpen(t *testing.T) {
	t.Parallel()
	a := &acceleration{b: New(host.Host{})}
	bookmark := host.Host{Protocol: host.ProtocolS3, Hostname: host.DefaultS3Hostname, Port: 443}

	opened, err := a.Open(context.Background(), bookmark, remote.Parse("/bucket/k", remote.File))
	require.NoError(t, err)
	assert.Equal(t, AccelerateHostname, opened.Hostname)
	assert.Empty(t, New(opened).endpoint)

	_, err = a.Open(context.Background(), bookmark, remote.Root())
	assert.ErrorIs(t, err, errdefs.ErrUnsupported)
}
