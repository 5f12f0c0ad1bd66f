package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Storage is a Storage backed by the AWS SDK. Retries are left to the Gateway.
type S3Storage struct {
	client *s3.Client
	cfg    Config
}

// NewS3Storage creates an S3 client for cfg. A non-empty Endpoint switches to
// path style addressing for S3 compatible services.
func NewS3Storage(ctx context.Context, cfg Config) (*S3Storage, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 60 * time.Second,
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 1
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.Contains(endpoint, "://") {
				scheme := "https://"
				if !cfg.Secure {
					scheme = "http://"
				}
				endpoint = scheme + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{client: client, cfg: cfg}, nil
}

func (s *S3Storage) ListChanged(ctx context.Context, folderID string, since time.Time) ([]File, error) {
	bucket, prefix, err := ParseFolderID(folderID)
	if err != nil {
		return nil, err
	}

	var files []File
	err = s.list(ctx, bucket, prefix, func(out *s3.ListObjectsV2Output) {
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix || strings.HasSuffix(key, "/") {
				continue
			}
			modified := aws.ToTime(obj.LastModified)
			if !modified.After(since) {
				continue
			}
			id := FileID(bucket, key)
			files = append(files, File{
				ID:           id,
				Name:         baseName(key),
				Size:         aws.ToInt64(obj.Size),
				CreatedTime:  modified,
				ModifiedTime: modified,
				Link:         s.Link(id),
			})
		}
	})
	if err != nil {
		return nil, s3Error("ListChanged", folderID, err)
	}
	return files, nil
}

func (s *S3Storage) ListFolders(ctx context.Context, folderID string) ([]File, error) {
	bucket, prefix, err := ParseFolderID(folderID)
	if err != nil {
		return nil, err
	}

	var folders []File
	err = s.list(ctx, bucket, prefix, func(out *s3.ListObjectsV2Output) {
		for _, cp := range out.CommonPrefixes {
			p := aws.ToString(cp.Prefix)
			id := FolderID(bucket, p)
			folders = append(folders, File{ID: id, Name: baseName(p), IsFolder: true, Link: s.Link(id)})
		}
	})
	if err != nil {
		return nil, s3Error("ListFolders", folderID, err)
	}
	return folders, nil
}

func (s *S3Storage) Copy(ctx context.Context, fileID, destFolderID, name string) (File, error) {
	if err := validName(name); err != nil {
		return File{}, err
	}
	srcBucket, srcKey, err := ParseFileID(fileID)
	if err != nil {
		return File{}, err
	}
	dstBucket, dstPrefix, err := ParseFolderID(destFolderID)
	if err != nil {
		return File{}, err
	}

	out, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstPrefix + name),
		CopySource: aws.String(srcBucket + "/" + url.PathEscape(srcKey)),
	})
	if err != nil {
		return File{}, s3Error("Copy", fileID, err)
	}

	modified := time.Now().UTC()
	if out.CopyObjectResult != nil && out.CopyObjectResult.LastModified != nil {
		modified = *out.CopyObjectResult.LastModified
	}
	id := FileID(dstBucket, dstPrefix+name)
	return File{ID: id, Name: name, CreatedTime: modified, ModifiedTime: modified, Link: s.Link(id)}, nil
}

func (s *S3Storage) CreateFolder(ctx context.Context, name, parentID string) (File, error) {
	if err := validName(name); err != nil {
		return File{}, err
	}
	bucket, prefix, err := ParseFolderID(parentID)
	if err != nil {
		return File{}, err
	}

	key := prefix + name + "/"
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return File{}, s3Error("CreateFolder", parentID, err)
	}

	id := FolderID(bucket, key)
	now := time.Now().UTC()
	return File{ID: id, Name: name, IsFolder: true, CreatedTime: now, ModifiedTime: now, Link: s.Link(id)}, nil
}

func (s *S3Storage) FindByName(ctx context.Context, name, parentID string) ([]File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	bucket, prefix, err := ParseFolderID(parentID)
	if err != nil {
		return nil, err
	}

	var found []File
	err = s.list(ctx, bucket, prefix+name, func(out *s3.ListObjectsV2Output) {
		for _, obj := range out.Contents {
			if key := aws.ToString(obj.Key); key == prefix+name {
				id := FileID(bucket, key)
				modified := aws.ToTime(obj.LastModified)
				found = append(found, File{
					ID:           id,
					Name:         name,
					Size:         aws.ToInt64(obj.Size),
					CreatedTime:  modified,
					ModifiedTime: modified,
					Link:         s.Link(id),
				})
			}
		}
		for _, cp := range out.CommonPrefixes {
			if p := aws.ToString(cp.Prefix); p == prefix+name+"/" {
				id := FolderID(bucket, p)
				found = append(found, File{ID: id, Name: name, IsFolder: true, Link: s.Link(id)})
			}
		}
	})
	if err != nil {
		return nil, s3Error("FindByName", parentID, err)
	}
	return found, nil
}

func (s *S3Storage) Link(id string) string {
	return "s3://" + id
}

func (s *S3Storage) list(ctx context.Context, bucket, prefix string, page func(*s3.ListObjectsV2Output)) error {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		page(out)
	}
	return nil
}

func s3Error(op, id string, err error) error {
	var nsk *types.NoSuchKey
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsk) || errors.As(err, &nsb) {
		return newError(op, id, http.StatusNotFound, err)
	}

	status := 0
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return newError(op, id, http.StatusNotFound, err)
		case "SlowDown", "RequestTimeout", "Throttling", "ThrottlingException":
			return newError(op, id, status, fmt.Errorf("%w: %w", ErrTransient, err))
		}
	}
	return newError(op, id, status, err)
}
