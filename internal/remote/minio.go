package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage is a Storage backed by a MinIO (or any S3 compatible) endpoint.
type MinioStorage struct {
	client *minio.Client
}

// NewMinioStorage creates a MinIO client for cfg.
func NewMinioStorage(cfg Config) (*MinioStorage, error) {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		Transport:    tr,
		Region:       region,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	return &MinioStorage{client: client}, nil
}

func (s *MinioStorage) ListChanged(ctx context.Context, folderID string, since time.Time) ([]File, error) {
	bucket, prefix, err := ParseFolderID(folderID)
	if err != nil {
		return nil, err
	}

	var files []File
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, minioError("ListChanged", folderID, obj.Err)
		}
		if obj.Key == prefix || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		if !obj.LastModified.After(since) {
			continue
		}
		files = append(files, s.fileInfo(bucket, obj))
	}
	return files, nil
}

func (s *MinioStorage) ListFolders(ctx context.Context, folderID string) ([]File, error) {
	bucket, prefix, err := ParseFolderID(folderID)
	if err != nil {
		return nil, err
	}

	var folders []File
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, minioError("ListFolders", folderID, obj.Err)
		}
		if obj.Key == prefix || !strings.HasSuffix(obj.Key, "/") {
			continue
		}
		folders = append(folders, s.fileInfo(bucket, obj))
	}
	return folders, nil
}

func (s *MinioStorage) Copy(ctx context.Context, fileID, destFolderID, name string) (File, error) {
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

	info, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dstBucket, Object: dstPrefix + name},
		minio.CopySrcOptions{Bucket: srcBucket, Object: srcKey},
	)
	if err != nil {
		return File{}, minioError("Copy", fileID, err)
	}

	id := FileID(dstBucket, info.Key)
	return File{
		ID:           id,
		Name:         name,
		Size:         info.Size,
		CreatedTime:  info.LastModified,
		ModifiedTime: info.LastModified,
		Link:         s.Link(id),
	}, nil
}

func (s *MinioStorage) CreateFolder(ctx context.Context, name, parentID string) (File, error) {
	if err := validName(name); err != nil {
		return File{}, err
	}
	bucket, prefix, err := ParseFolderID(parentID)
	if err != nil {
		return File{}, err
	}

	key := prefix + name + "/"
	if _, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(nil), 0, minio.PutObjectOptions{}); err != nil {
		return File{}, minioError("CreateFolder", parentID, err)
	}

	id := FolderID(bucket, key)
	now := time.Now().UTC()
	return File{ID: id, Name: name, IsFolder: true, CreatedTime: now, ModifiedTime: now, Link: s.Link(id)}, nil
}

func (s *MinioStorage) FindByName(ctx context.Context, name, parentID string) ([]File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	bucket, prefix, err := ParseFolderID(parentID)
	if err != nil {
		return nil, err
	}

	var found []File
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix + name}) {
		if obj.Err != nil {
			return nil, minioError("FindByName", parentID, obj.Err)
		}
		if obj.Key == prefix+name || obj.Key == prefix+name+"/" {
			found = append(found, s.fileInfo(bucket, obj))
		}
	}
	return found, nil
}

func (s *MinioStorage) Link(id string) string {
	u := s.client.EndpointURL()
	return fmt.Sprintf("%s://%s/%s", u.Scheme, u.Host, id)
}

func (s *MinioStorage) fileInfo(bucket string, obj minio.ObjectInfo) File {
	f := File{
		Name:         baseName(obj.Key),
		IsFolder:     strings.HasSuffix(obj.Key, "/"),
		Size:         obj.Size,
		CreatedTime:  obj.LastModified,
		ModifiedTime: obj.LastModified,
	}
	if f.IsFolder {
		f.ID = FolderID(bucket, obj.Key)
	} else {
		f.ID = FileID(bucket, obj.Key)
	}
	f.Link = s.Link(f.ID)
	return f
}

func minioError(op, id string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return newError(op, id, http.StatusNotFound, err)
	case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable":
		return newError(op, id, resp.StatusCode, fmt.Errorf("%w: %w", ErrTransient, err))
	}
	return newError(op, id, resp.StatusCode, err)
}
