package aws

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/log"
)

// S3API is the subset of the S3 client used by S3
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3 publishes files in buckets
type S3 struct {
	client   S3API
	uploader *manager.Uploader
	region   string
}

// NewS3 creates a new S3 publisher
func NewS3(client S3API, region string) *S3 {
	return &S3{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = 10 * 1024 * 1024
		}),
		region: region,
	}
}

// ParseURI splits s3://bucket/prefix in bucket and prefix (without trailing slash)
func ParseURI(uri string) (string, string, error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", fmt.Errorf("ParseURI: expecting s3://bucket/prefix, got %s", uri)
	}
	splits := strings.SplitN(strings.TrimPrefix(uri, "s3://"), "/", 2)
	if splits[0] == "" {
		return "", "", fmt.Errorf("ParseURI: missing bucket in %s", uri)
	}
	prefix := ""
	if len(splits) == 2 {
		prefix = strings.Trim(splits[1], "/")
	}
	return splits[0], prefix, nil
}

// MakeBucket creates the bucket if it does not exist
func (s *S3) MakeBucket(ctx context.Context, bucket string) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: sdk.String(bucket)}); err == nil {
		return nil
	} else if !isNotFound(err) {
		return fmt.Errorf("MakeBucket.HeadBucket[%s]: %w", bucket, err)
	}

	input := &s3.CreateBucketInput{Bucket: sdk.String(bucket)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("MakeBucket.CreateBucket[%s]: %w", bucket, err)
	}
	log.Logger(ctx).Sugar().Infof("bucket s3://%s created", bucket)
	return nil
}

// UploadFile uploads a local file to s3://bucket/key
func (s *S3) UploadFile(ctx context.Context, file, bucket, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("UploadFile: %w", err)
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket: sdk.String(bucket),
		Key:    sdk.String(key),
		Body:   f,
	}
	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		input.ContentType = sdk.String(ct)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("UploadFile[s3://%s/%s]: %w", bucket, key, err)
	}
	return nil
}

type remoteObject struct {
	size         int64
	lastModified time.Time
}

// list returns the objects under the prefix, indexed by key
func (s *S3) list(ctx context.Context, bucket, prefix string) (map[string]remoteObject, error) {
	objects := map[string]remoteObject{}
	input := &s3.ListObjectsV2Input{Bucket: sdk.String(bucket)}
	if prefix != "" {
		input.Prefix = sdk.String(prefix + "/")
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list[s3://%s/%s]: %w", bucket, prefix, err)
		}
		for _, o := range page.Contents {
			objects[sdk.ToString(o.Key)] = remoteObject{size: sdk.ToInt64(o.Size), lastModified: sdk.ToTime(o.LastModified)}
		}
	}
	return objects, nil
}

// Sync uploads the files of localDir (recursively) that are new or modified in s3://bucket/prefix.
// A file is modified if its size differs or if it is more recent than the remote object.
// Returns the keys of the uploaded files, sorted
func (s *S3) Sync(ctx context.Context, localDir, uri string) ([]string, error) {
	bucket, prefix, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Sync.%w", err)
	}
	remote, err := s.list(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("Sync.%w", err)
	}

	var uploaded []string
	err = filepath.WalkDir(localDir, func(file string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(localDir, file)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		info, err := d.Info()
		if err != nil {
			return err
		}
		if o, ok := remote[key]; ok && o.size == info.Size() && !info.ModTime().After(o.lastModified) {
			return nil
		}
		if err := s.UploadFile(ctx, file, bucket, key); err != nil {
			return err
		}
		log.Logger(ctx).Sugar().Debugf("upload: %s to s3://%s/%s", rel, bucket, key)
		uploaded = append(uploaded, key)
		return nil
	})
	if err != nil {
		return uploaded, service.MakeTemporary(fmt.Errorf("Sync[%s]: %w", uri, err))
	}
	sort.Strings(uploaded)
	log.Logger(ctx).Sugar().Infof("%d files uploaded to %s", len(uploaded), uri)
	return uploaded, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsb *types.NoSuchBucket
	return errors.As(err, &nf) || errors.As(err, &nsb)
}
