// Package publish は作成したデータセットのアーカイブをS3互換ストレージへ送る
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"plantdoc-yolo/internal/config"
)

// ErrNoBucket はバケットが設定されていない場合のエラー
var ErrNoBucket = errors.New("S3バケットが設定されていません (S3_BUCKET)")

// PutObjectAPI はアップロードに使うS3クライアントの機能
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader はファイルを設定されたバケットへ送る
type Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *zap.Logger
}

// New は設定からS3クライアントを作成する。エンドポイント指定時はパス形式でアクセスする
func New(ctx context.Context, cfg config.S3Config, logger *zap.Logger) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("AWS設定の読み込みに失敗: %w", err)
	}

	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		// MinIO など
		endpoint := cfg.Endpoint
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true
		})
	}

	return NewWithClient(s3.NewFromConfig(awsCfg, opts...), cfg, logger), nil
}

// NewWithClient は既存のクライアントからUploaderを作成
func NewWithClient(client PutObjectAPI, cfg config.S3Config, logger *zap.Logger) *Uploader {
	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}
}

// Key はファイルのオブジェクトキー (prefix/ファイル名)
func (u *Uploader) Key(file string) string {
	name := filepath.Base(file)
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// Upload はファイルをアップロードし、s3://bucket/key 形式の場所を返す
func (u *Uploader) Upload(ctx context.Context, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("アップロードするファイルを開けません: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	key := u.Key(file)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(file)),
	})
	if err != nil {
		return "", fmt.Errorf("アップロードに失敗 s3://%s/%s: %w", u.bucket, key, err)
	}

	location := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	u.logger.Info("アップロード完了", zap.String("location", location), zap.Int64("bytes", info.Size()))
	return location, nil
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".tar":
		return "application/x-tar"
	case ".yaml", ".yml":
		return "application/yaml"
	}
	return "application/octet-stream"
}
