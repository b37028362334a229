// Package archive 将已结束选举的最终结果写入S3兼容的对象存储
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lvdashuaibi/votecore/config"
	"github.com/lvdashuaibi/votecore/internal/model"
)

// S3Archiver 结果归档
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archiver 按配置创建客户端。配置了 endpoint 时使用 path-style 以兼容 MinIO
func NewS3Archiver(ctx context.Context, cfg config.ArchiveConfig) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("归档桶名不能为空")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("加载AWS配置失败: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return NewS3ArchiverWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func NewS3ArchiverWithClient(client *s3.Client, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix}
}

// Key 结果对象的键
func (a *S3Archiver) Key(electionID string) string {
	return path.Join(a.prefix, electionID+".json")
}

// ArchiveResults 上传结果JSON，重复归档覆盖同一对象
func (a *S3Archiver) ArchiveResults(ctx context.Context, results *model.ElectionResults) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化选举结果失败: %w", err)
	}

	key := a.Key(results.ElectionID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      map[string]string{"election-id": results.ElectionID},
	})
	if err != nil {
		return "", fmt.Errorf("上传选举 %s 结果失败: %w", results.ElectionID, err)
	}
	return key, nil
}
