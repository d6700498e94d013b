package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/bamsammich/ferry/internal/checksum"
	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/filter"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/transfer"
)

func (b *Backend) Read(ctx context.Context, p *remote.Path, status *transfer.Status) (io.ReadCloser, error) {
	bucket, key := bucketKey(p)
	in := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if status.Offset > 0 {
		in.Range = aws.String(fmt.Sprintf("bytes=%d-", status.Offset))
	}
	out, err := b.client.GetObject(ctx, in)
	if err != nil {
		return nil, mapError("read", p.Abs(), err)
	}
	return out.Body, nil
}

// Write streams the body into a single PutObject. The payload is sent
// unsigned with a trailing SHA-256 that S3 checks and echoes back.
func (b *Backend) Write(ctx context.Context, p *remote.Path, status *transfer.Status) (transfer.StatusWriter, error) {
	bucket, key := bucketKey(p)
	switch {
	case key == "":
		return nil, fmt.Errorf("write %s: %w: not an object", p, errdefs.ErrUnsupported)
	case status.Append:
		return nil, fmt.Errorf("write %s: %w: objects cannot be appended", p, errdefs.ErrUnsupported)
	case !status.HasLength():
		return nil, fmt.Errorf("write %s: %w: length required", p, errdefs.ErrUnsupported)
	}

	in := &s3.PutObjectInput{
		Bucket:            aws.String(bucket),
		Key:               aws.String(key),
		ContentLength:     aws.Int64(status.Length),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		Metadata:          status.Metadata,
	}
	if status.MimeType != "" {
		in.ContentType = aws.String(status.MimeType)
	}
	if status.StorageClass != "" {
		in.StorageClass = types.StorageClass(status.StorageClass)
	}

	length := status.Length
	pw := transfer.NewPipeWriter(ctx, checksum.SHA256, func(ctx context.Context, body io.Reader) (transfer.Reply, error) {
		in.Body = body
		out, err := b.client.PutObject(ctx, in, s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware))
		if err != nil {
			return transfer.Reply{}, mapError("write", p.Abs(), err)
		}
		return transfer.Reply{
			Size:      length,
			Checksum:  decodeChecksum(checksum.SHA256, out.ChecksumSHA256),
			VersionID: aws.ToString(out.VersionId),
		}, nil
	})
	sink := &objectSink{PipeWriter: pw, b: b, bucket: bucket, key: key}
	return transfer.Verify(p.Abs(), status, sink).WithLogger(b.logger), nil
}

// objectSink removes an object S3 already stored when the write is
// aborted after Close.
type objectSink struct {
	*transfer.PipeWriter
	b      *Backend
	bucket string
	key    string
	stored bool
}

func (s *objectSink) Close() error {
	err := s.PipeWriter.Close()
	s.stored = err == nil
	return err
}

func (s *objectSink) Abort() error {
	if !s.stored {
		return s.PipeWriter.Abort()
	}
	s.stored = false
	_, err := s.b.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		s.b.logger.Warn("remove rejected object", "bucket", s.bucket, "key", s.key, "error", err)
	}
	return err
}

// List returns buckets at the root and the delimited children of a prefix
// elsewhere. listener sees each page as it arrives.
func (b *Backend) List(ctx context.Context, dir *remote.Path, listener feature.ListProgressListener) (remote.List, error) {
	return b.list(ctx, dir, filter.All, listener, "list")
}

// Search lists workdir and keeps what f accepts. Matching is on names, so
// it cannot be pushed into the request prefix.
func (b *Backend) Search(ctx context.Context, workdir *remote.Path, f filter.Filter, listener feature.ListProgressListener) (remote.List, error) {
	return b.list(ctx, workdir, f, listener, "search")
}

func (b *Backend) list(ctx context.Context, dir *remote.Path, f filter.Filter, listener feature.ListProgressListener, op string) (remote.List, error) {
	if listener == nil {
		listener = feature.DisabledListProgressListener{}
	}
	if dir.IsRoot() {
		out, err := b.buckets(ctx, dir, f)
		if err != nil {
			return nil, err
		}
		if len(out) > 0 {
			listener.Chunk(dir, out)
		}
		return out, nil
	}

	bucket, prefix := bucketKey(dir)
	pages := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(remote.Delimiter),
	})
	var out remote.List
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, mapError(op, dir.Abs(), err)
		}
		chunk := pageEntries(dir, prefix, page).Filter(f.Accept)
		if len(chunk) > 0 {
			listener.Chunk(dir, chunk)
		}
		out = append(out, chunk...)
	}
	out.Sort()
	return out, nil
}

func (b *Backend) buckets(ctx context.Context, root *remote.Path, f filter.Filter) (remote.List, error) {
	var out remote.List
	pages := s3.NewListBucketsPaginator(b.client, &s3.ListBucketsInput{})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, mapError("list", root.Abs(), err)
		}
		for _, bk := range page.Buckets {
			p := remote.New(root, aws.ToString(bk.Name), remote.Directory|remote.Volume).
				WithAttributes(remote.Attributes{
					Modified: aws.ToTime(bk.CreationDate),
					Region:   aws.ToString(bk.BucketRegion),
				})
			if f.Accept(p) {
				out = append(out, p)
			}
		}
	}
	out.Sort()
	return out, nil
}

// pageEntries converts one listing page. The placeholder object for dir
// itself is skipped.
func pageEntries(dir *remote.Path, prefix string, page *s3.ListObjectsV2Output) remote.List {
	out := make(remote.List, 0, len(page.CommonPrefixes)+len(page.Contents))
	for _, cp := range page.CommonPrefixes {
		name := trimName(aws.ToString(cp.Prefix), prefix)
		if name == "" {
			continue
		}
		out = append(out, remote.New(dir, name, remote.Directory))
	}
	for _, obj := range page.Contents {
		name := trimName(aws.ToString(obj.Key), prefix)
		if name == "" {
			continue
		}
		out = append(out, remote.New(dir, name, remote.File).WithAttributes(remote.Attributes{
			Size:         aws.ToInt64(obj.Size),
			Modified:     aws.ToTime(obj.LastModified),
			StorageClass: string(obj.StorageClass),
		}))
	}
	return out
}

func trimName(key, prefix string) string {
	name := key[len(prefix):]
	if name != "" && name[len(name)-1] == '/' {
		name = name[:len(name)-1]
	}
	return name
}

// Delete removes objects in batches per bucket, then any buckets. Buckets
// must already be empty.
func (b *Backend) Delete(ctx context.Context, files []*remote.Path, _ feature.LoginCallback, cb feature.DeleteCallback) error {
	if cb == nil {
		cb = feature.DisabledDeleteCallback{}
	}
	var (
		order   []string
		batches = make(map[string][]*remote.Path)
		volumes []*remote.Path
	)
	for _, p := range files {
		switch {
		case p.IsRoot():
			return fmt.Errorf("delete %s: %w", p, errdefs.ErrAccessDenied)
		case p.IsVolume():
			volumes = append(volumes, p)
		default:
			bucket, _ := bucketKey(p)
			if _, ok := batches[bucket]; !ok {
				order = append(order, bucket)
			}
			batches[bucket] = append(batches[bucket], p)
		}
	}

	for _, bucket := range order {
		paths := batches[bucket]
		for start := 0; start < len(paths); start += maxDeleteBatch {
			if err := b.deleteBatch(ctx, bucket, paths[start:min(start+maxDeleteBatch, len(paths))], cb); err != nil {
				return err
			}
		}
	}
	for _, v := range volumes {
		if _, err := b.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(v.Name())}); err != nil {
			return mapError("delete", v.Abs(), err)
		}
		cb.Delete(v)
	}
	return nil
}

func (b *Backend) deleteBatch(ctx context.Context, bucket string, paths []*remote.Path, cb feature.DeleteCallback) error {
	ids := make([]types.ObjectIdentifier, len(paths))
	byKey := make(map[string]*remote.Path, len(paths))
	for i, p := range paths {
		_, key := bucketKey(p)
		ids[i] = types.ObjectIdentifier{Key: aws.String(key)}
		byKey[key] = p
	}
	out, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(false)},
	})
	if err != nil {
		return mapError("delete", "/"+bucket, err)
	}
	for _, d := range out.Deleted {
		if p, ok := byKey[aws.ToString(d.Key)]; ok {
			cb.Delete(p)
		}
	}
	if len(out.Errors) > 0 {
		e := out.Errors[0]
		p := "/" + bucket + "/" + aws.ToString(e.Key)
		return mapError("delete", p, &smithy.GenericAPIError{
			Code:    aws.ToString(e.Code),
			Message: aws.ToString(e.Message),
			Fault:   smithy.FaultServer,
		})
	}
	return nil
}

// Mkdir creates a bucket at the top level and a placeholder object below.
func (b *Backend) Mkdir(ctx context.Context, p *remote.Path, status *transfer.Status) (*remote.Path, error) {
	bucket, key := bucketKey(p)
	if p.IsRoot() {
		return p, nil
	}
	if key == "" {
		in := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
		if b.region != DefaultRegion {
			in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
				LocationConstraint: types.BucketLocationConstraint(b.region),
			}
		}
		if _, err := b.client.CreateBucket(ctx, in); err != nil {
			return nil, mapError("mkdir", p.Abs(), err)
		}
		return remote.New(p.Parent(), p.Name(), remote.Directory|remote.Volume).
			WithAttributes(remote.Attributes{Region: b.region}), nil
	}

	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	}
	if status != nil && status.StorageClass != "" {
		in.StorageClass = types.StorageClass(status.StorageClass)
	}
	if _, err := b.client.PutObject(ctx, in); err != nil {
		return nil, mapError("mkdir", p.Abs(), err)
	}
	return remote.New(p.Parent(), p.Name(), remote.Directory), nil
}

// Stat heads the bucket or object. A directory without a placeholder
// exists when anything is stored beneath its prefix.
func (b *Backend) Stat(ctx context.Context, p *remote.Path) (remote.Attributes, error) {
	bucket, key := bucketKey(p)
	switch {
	case p.IsRoot():
		return remote.Attributes{}, nil
	case key == "":
		out, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
		if err != nil {
			return remote.Attributes{}, mapError("stat", p.Abs(), err)
		}
		return remote.Attributes{Region: aws.ToString(out.BucketRegion)}, nil
	case p.IsDirectory():
		out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(bucket),
			Prefix:  aws.String(key),
			MaxKeys: aws.Int32(1),
		})
		if err != nil {
			return remote.Attributes{}, mapError("stat", p.Abs(), err)
		}
		if len(out.Contents) == 0 && len(out.CommonPrefixes) == 0 {
			return remote.Attributes{}, errdefs.NotFound("stat", p.Abs())
		}
		return remote.Attributes{}, nil
	}

	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(key),
		ChecksumMode: types.ChecksumModeEnabled,
	})
	if err != nil {
		return remote.Attributes{}, mapError("stat", p.Abs(), err)
	}
	return remote.Attributes{
		Size:         aws.ToInt64(out.ContentLength),
		Checksum:     decodeChecksum(checksum.SHA256, out.ChecksumSHA256),
		MimeType:     aws.ToString(out.ContentType),
		StorageClass: string(out.StorageClass),
		Modified:     aws.ToTime(out.LastModified),
		VersionID:    aws.ToString(out.VersionId),
	}, nil
}

var (
	_ transfer.Aborter           = (*objectSink)(nil)
	_ transfer.NativeChecksummer = (*objectSink)(nil)
)
