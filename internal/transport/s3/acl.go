package s3

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/bamsammich/ferry/internal/remote"
)

// ReadAcl returns the grants on a bucket or object.
func (b *Backend) ReadAcl(ctx context.Context, p *remote.Path) (remote.Acl, error) {
	grants, _, err := b.readAcl(ctx, p)
	if err != nil {
		return remote.Acl{}, err
	}
	return toAcl(grants), nil
}

func (b *Backend) readAcl(ctx context.Context, p *remote.Path) ([]types.Grant, *types.Owner, error) {
	bucket, key := bucketKey(p)
	if key == "" {
		out, err := b.client.GetBucketAcl(ctx, &s3.GetBucketAclInput{Bucket: aws.String(bucket)})
		if err != nil {
			return nil, nil, mapError("read acl", p.Abs(), err)
		}
		return out.Grants, out.Owner, nil
	}
	out, err := b.client.GetObjectAcl(ctx, &s3.GetObjectAclInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, nil, mapError("read acl", p.Abs(), err)
	}
	return out.Grants, out.Owner, nil
}

// WriteAcl replaces the grants on p. A recursive write also replaces them
// on every object stored beneath a bucket or directory prefix, keeping the
// bucket owner.
func (b *Backend) WriteAcl(ctx context.Context, p *remote.Path, acl remote.Acl, recursive bool) error {
	bucket, key := bucketKey(p)
	grants := fromAcl(acl)

	if key == "" {
		_, owner, err := b.readAcl(ctx, p)
		if err != nil {
			return err
		}
		_, err = b.client.PutBucketAcl(ctx, &s3.PutBucketAclInput{
			Bucket:              aws.String(bucket),
			AccessControlPolicy: &types.AccessControlPolicy{Grants: grants, Owner: owner},
		})
		if err != nil {
			return mapError("write acl", p.Abs(), err)
		}
		if !recursive {
			return nil
		}
		return b.writeAclUnder(ctx, p, bucket, "", grants, owner)
	}

	if p.IsDirectory() && recursive {
		_, owner, err := b.readAcl(ctx, p.Volume())
		if err != nil {
			return err
		}
		return b.writeAclUnder(ctx, p, bucket, key, grants, owner)
	}

	_, owner, err := b.readAcl(ctx, p)
	if err != nil {
		return err
	}
	return b.putObjectAcl(ctx, p.Abs(), bucket, key, grants, owner)
}

func (b *Backend) writeAclUnder(ctx context.Context, p *remote.Path, bucket, prefix string, grants []types.Grant, owner *types.Owner) error {
	pages := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return mapError("write acl", p.Abs(), err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if err := b.putObjectAcl(ctx, "/"+bucket+"/"+key, bucket, key, grants, owner); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Backend) putObjectAcl(ctx context.Context, abs, bucket, key string, grants []types.Grant, owner *types.Owner) error {
	_, err := b.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket:              aws.String(bucket),
		Key:                 aws.String(key),
		AccessControlPolicy: &types.AccessControlPolicy{Grants: grants, Owner: owner},
	})
	return mapError("write acl", abs, err)
}

func toAcl(grants []types.Grant) remote.Acl {
	out := make([]remote.Grant, 0, len(grants))
	for _, g := range grants {
		if g.Grantee == nil {
			continue
		}
		var u remote.User
		switch g.Grantee.Type {
		case types.TypeAmazonCustomerByEmail:
			u = remote.User{Kind: remote.EmailUser, ID: aws.ToString(g.Grantee.EmailAddress)}
		case types.TypeGroup:
			u = remote.User{Kind: remote.GroupUser, ID: aws.ToString(g.Grantee.URI)}
		default:
			u = remote.User{Kind: remote.CanonicalUser, ID: aws.ToString(g.Grantee.ID)}
		}
		out = append(out, remote.Grant{User: u, Role: remote.Role(g.Permission)})
	}
	return remote.NewAcl(out...)
}

// fromAcl converts grants for S3. POSIX mode classes have no S3 grantee
// and are dropped.
func fromAcl(acl remote.Acl) []types.Grant {
	out := make([]types.Grant, 0, len(acl.Grants))
	for _, g := range acl.Grants {
		grantee := &types.Grantee{}
		switch g.User.Kind {
		case remote.CanonicalUser:
			grantee.Type = types.TypeCanonicalUser
			grantee.ID = aws.String(g.User.ID)
		case remote.EmailUser:
			grantee.Type = types.TypeAmazonCustomerByEmail
			grantee.EmailAddress = aws.String(g.User.ID)
		case remote.GroupUser:
			grantee.Type = types.TypeGroup
			grantee.URI = aws.String(g.User.ID)
		default:
			continue
		}
		out = append(out, types.Grant{Grantee: grantee, Permission: types.Permission(strings.ToUpper(string(g.Role)))})
	}
	return out
}
