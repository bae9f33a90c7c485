package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"Soundscape/config"
	"Soundscape/logger"
)

func mask(s string) string {
	if len(s) > 4 {
		return s[:4] + "..."
	}
	return "****"
}

// NewMinioClient creates a client without touching the network.
func NewMinioClient(cfg *config.Config) (*minio.Client, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, nil
}

// InitMinio connects to MinIO and makes sure the sound bucket exists.
func InitMinio(ctx context.Context, cfg *config.Config) (*minio.Client, error) {
	logger.Info("Connecting to MinIO",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket),
		logger.String("region", cfg.MinioRegion),
		logger.String("accessKey", mask(cfg.MinioAccessKey)))

	client, err := NewMinioClient(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("Created bucket", logger.String("bucket", cfg.MinioBucket))
	} else {
		logger.Info("Bucket exists", logger.String("bucket", cfg.MinioBucket))
	}
	return client, nil
}

// MinioFetcher reads sound files from a bucket. Sound paths are used as
// object keys below prefix.
type MinioFetcher struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinioFetcher(client *minio.Client, bucket, prefix string) *MinioFetcher {
	return &MinioFetcher{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (f *MinioFetcher) key(p string) string {
	if f.prefix == "" {
		return p
	}
	return path.Join(f.prefix, p)
}

func (f *MinioFetcher) Fetch(ctx context.Context, p string) ([]byte, error) {
	c, err := cleanPath(p)
	if err != nil {
		return nil, &FetchError{Path: p, Err: err}
	}
	obj, err := f.client.GetObject(ctx, f.bucket, f.key(c), minio.GetObjectOptions{})
	if err != nil {
		return nil, minioFetchError(p, err)
	}
	defer obj.Close()

	// GetObject is lazy; Stat surfaces NoSuchKey before we read.
	if _, err := obj.Stat(); err != nil {
		return nil, minioFetchError(p, err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, minioFetchError(p, err)
	}
	return data, nil
}

func minioFetchError(p string, err error) *FetchError {
	resp := minio.ToErrorResponse(err)
	status := resp.StatusCode
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		status = http.StatusNotFound
	}
	return &FetchError{Path: p, StatusCode: status, Err: err}
}

// BucketStats summarises the objects under a prefix.
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// ObjectInfo describes one stored sound file.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
	ETag         string
}

// ListSounds lists the objects of the sound bucket sorted by key.
func ListSounds(ctx context.Context, client *minio.Client, bucket, prefix string) ([]ObjectInfo, *BucketStats, error) {
	if client == nil {
		return nil, nil, fmt.Errorf("minio client not initialised")
	}
	stats := &BucketStats{}
	var objects []ObjectInfo
	for object := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: strings.Trim(prefix, "/"), Recursive: true}) {
		if object.Err != nil {
			logger.Warn("List object failed", logger.ErrorField(object.Err))
			continue
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
			ETag:         object.ETag,
		})
		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, stats, nil
}

var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".wave": "audio/wav",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".flac": "audio/flac",
}

// UploadSounds copies every audio file below dir into the bucket, keyed by
// its slash-separated path relative to dir. It returns the number uploaded.
func UploadSounds(ctx context.Context, client *minio.Client, bucket, prefix, dir string) (int, error) {
	fetcher := NewMinioFetcher(client, bucket, prefix)
	n := 0
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ct, ok := contentTypes[strings.ToLower(filepath.Ext(p))]
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		key := fetcher.key(filepath.ToSlash(rel))
		if _, err := client.PutObject(ctx, bucket, key, f, info.Size(), minio.PutObjectOptions{ContentType: ct}); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		logger.Debug("Uploaded sound", logger.String("key", key), logger.Int64("size", info.Size()))
		n++
		return nil
	})
	return n, err
}
