package uploader

import (
	"context"
	"os"

	cfg "armalloc/internal/config"
	"armalloc/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

// S3Uploader uploads run directories to S3-compatible storage.
type S3Uploader struct {
	cfg    cfg.S3Config
	client *s3.Client
}

// NewS3 constructs an uploader from S3 configuration.
func NewS3(cfg cfg.S3Config) (*S3Uploader, error) {
	if !cfg.Enabled {
		return &S3Uploader{cfg: cfg}, nil
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3Uploader{cfg: cfg, client: client}, nil
}

// Enabled reports whether S3 uploads are configured.
func (u *S3Uploader) Enabled() bool {
	return u.cfg.Enabled
}

// UploadDir uploads a run directory and returns its S3 URL prefix.
func (u *S3Uploader) UploadDir(ctx context.Context, dir string) (string, error) {
	if !u.cfg.Enabled {
		return "", nil
	}
	if u.client == nil {
		return "", errors.New("s3 uploader is not initialized")
	}
	if err := uploadFiles(ctx, dir, objectPrefix(u.cfg.Prefix, dir), u.putFile); err != nil {
		return "", err
	}
	return u.Location(dir), nil
}

// Location returns the URL prefix UploadDir writes dir to.
func (u *S3Uploader) Location(dir string) string {
	if !u.cfg.Enabled {
		return ""
	}
	return "s3://" + u.cfg.Bucket + "/" + objectPrefix(u.cfg.Prefix, dir)
}

func (u *S3Uploader) putFile(ctx context.Context, path, key string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer util.CloseWithErr(file, "s3 upload file")

	info, err := file.Stat()
	if err != nil {
		return err
	}
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
	})
	return err
}
