package service

import (
	"compress/flate"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	gstorage "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/mholt/archiver"
)

// Extension of an artifact
type Extension string

// Extensions handled by the storages
const (
	NoExtension  Extension = ""
	ExtensionZIP Extension = "zip"
	// ExtensionZarr is a directory, thus it is stored as a zip file (see storedAsZip())
	ExtensionZarr Extension = "zarr"
)

// Storage persists the artifacts of a request
type Storage interface {
	// LocalDir is the directory where artifacts must be written before being saved
	LocalDir() string
	// Save persists the local artifact and returns its uri.
	// Directories are zipped first.
	Save(ctx context.Context, localPath string) (string, error)
}

// S3Options configures the access to s3:// outputs
type S3Options struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// NewStorage returns the storage for the output directory (local path, gs://bucket/prefix or s3://bucket/prefix)
// Remote storages stage the artifacts in a unique subdirectory of workdir.
func NewStorage(ctx context.Context, outputDir, workdir string, s3opts S3Options) (Storage, error) {
	protocol, bucket, prefix := parseURI(outputDir)
	switch protocol {
	case "":
		if outputDir == "" {
			outputDir = "."
		}
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return nil, fmt.Errorf("NewStorage.MkdirAll: %w", err)
		}
		return &LocalStorage{Dir: outputDir}, nil
	case "gs", "s3":
		if workdir == "" {
			workdir = os.TempDir()
		}
		staging := filepath.Join(workdir, uuid.New().String())
		if err := os.MkdirAll(staging, 0755); err != nil {
			return nil, MakeTemporary(fmt.Errorf("NewStorage.MkdirAll: %w", err))
		}
		if protocol == "gs" {
			client, err := gstorage.NewClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("NewStorage.gcs: %w", err)
			}
			return &GCSStorage{client: client, bucket: bucket, prefix: prefix, staging: staging}, nil
		}
		opts := []func(*awsconfig.LoadOptions) error{}
		if s3opts.AccessKeyID != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s3opts.AccessKeyID, s3opts.SecretAccessKey, "")))
		}
		if s3opts.Region != "" {
			opts = append(opts, awsconfig.WithRegion(s3opts.Region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("NewStorage.LoadDefaultConfig: %w", err)
		}
		uploader := manager.NewUploader(s3.NewFromConfig(cfg), func(u *manager.Uploader) {
			u.PartSize = 10 * 1024 * 1024 // 10MB per part
		})
		return &S3Storage{uploader: uploader, bucket: bucket, prefix: prefix, staging: staging}, nil
	}
	return nil, fmt.Errorf("NewStorage: unsupported output protocol: %s", protocol)
}

// parseURI splits protocol://bucket/prefix. Local paths have no protocol.
func parseURI(uri string) (protocol, bucket, prefix string) {
	i := strings.Index(uri, "://")
	if i < 0 {
		return "", "", uri
	}
	protocol = uri[:i]
	rest := strings.SplitN(uri[i+3:], "/", 2)
	bucket = rest[0]
	if len(rest) == 2 {
		prefix = strings.Trim(rest[1], "/")
	}
	return protocol, bucket, prefix
}

// LocalStorage writes the artifacts directly in the output directory
type LocalStorage struct {
	Dir string
}

// LocalDir implements Storage
func (ls *LocalStorage) LocalDir() string {
	return ls.Dir
}

// Save implements Storage
func (ls *LocalStorage) Save(ctx context.Context, localPath string) (string, error) {
	src, err := prepare(localPath)
	if err != nil {
		return "", fmt.Errorf("Save.%w", err)
	}
	dst := filepath.Join(ls.Dir, filepath.Base(src))
	if filepath.Clean(src) != filepath.Clean(dst) {
		if err := os.Rename(src, dst); err != nil {
			return "", fmt.Errorf("Save.Rename: %w", err)
		}
	}
	return dst, nil
}

// GCSStorage uploads the artifacts to a Google Cloud Storage bucket
type GCSStorage struct {
	client  *gstorage.Client
	bucket  string
	prefix  string
	staging string
}

// LocalDir implements Storage
func (gs *GCSStorage) LocalDir() string {
	return gs.staging
}

// Save implements Storage
func (gs *GCSStorage) Save(ctx context.Context, localPath string) (string, error) {
	src, err := prepare(localPath)
	if err != nil {
		return "", fmt.Errorf("Save.%w", err)
	}
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("Save.Open: %w", err)
	}
	defer f.Close()

	key := path.Join(gs.prefix, filepath.Base(src))
	w := gs.client.Bucket(gs.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", MakeTemporary(fmt.Errorf("Save.Copy to gs://%s/%s: %w", gs.bucket, key, err))
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Save.Close gs://%s/%s: %w", gs.bucket, key, err)
	}
	os.Remove(src)
	return fmt.Sprintf("gs://%s/%s", gs.bucket, key), nil
}

// S3Storage uploads the artifacts to an S3 bucket
type S3Storage struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	staging  string
}

// LocalDir implements Storage
func (ss *S3Storage) LocalDir() string {
	return ss.staging
}

// Save implements Storage
func (ss *S3Storage) Save(ctx context.Context, localPath string) (string, error) {
	src, err := prepare(localPath)
	if err != nil {
		return "", fmt.Errorf("Save.%w", err)
	}
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("Save.Open: %w", err)
	}
	defer f.Close()

	key := path.Join(ss.prefix, filepath.Base(src))
	if _, err := ss.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(ss.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return "", fmt.Errorf("Save.Upload to s3://%s/%s: %w", ss.bucket, key, err)
	}
	os.Remove(src)
	return fmt.Sprintf("s3://%s/%s", ss.bucket, key), nil
}

// prepare zips the artifact if it is a directory and returns the file to store
func prepare(localPath string) (string, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("Stat: %w", err)
	}
	if !info.IsDir() && !storedAsZip(GetExt(localPath)) {
		return localPath, nil
	}
	dst := localPath + "." + string(ExtensionZIP)
	os.Remove(dst)
	zipper := archiver.NewZip()
	zipper.CompressionLevel = flate.BestSpeed
	if err := zipper.Archive([]string{localPath}, dst); err != nil {
		return "", fmt.Errorf("Archive: %w", err)
	}
	if err := os.RemoveAll(localPath); err != nil {
		return "", fmt.Errorf("RemoveAll: %w", err)
	}
	return dst, nil
}

func storedAsZip(ext Extension) bool {
	return ext == ExtensionZarr
}

// GetExt returns the extension of the file
func GetExt(filePath string) Extension {
	ext := path.Ext(filePath)
	if ext == "" {
		return NoExtension
	}
	return Extension(ext[1:])
}
