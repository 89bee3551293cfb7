package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kenneth/chunkvault/internal/config"
)

// S3Client is a Client backed by any S3-compatible object store. Each chunk
// and immutable data object is one S3 object keyed by its hex address.
type S3Client struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// NewS3Client creates an S3-backed client using AWS SDK v2.
func NewS3Client(cfg *config.S3Config) (*S3Client, error) {
	endpoint, region, err := ValidateProviderConfig(cfg.Endpoint, cfg.Provider, cfg.Region)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	pathStyle := cfg.UsePathStyle || RequiresPathStyleAddressing(cfg.Provider)

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" && cfg.Provider != "aws" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "chunkvault"
	}

	return &S3Client{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: prefix,
	}, nil
}

func (c *S3Client) chunkKey(addr Address) string {
	return c.keyPrefix + "/chunks/" + addr.Hex()
}

func (c *S3Client) idataKey(addr Address) string {
	return c.keyPrefix + "/idata/" + addr.Hex()
}

// PutChunk stores a blob under its content address.
func (c *S3Client) PutChunk(ctx context.Context, data []byte) (Address, error) {
	addr := AddressOf(data)

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.chunkKey(addr)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return Address{}, fmt.Errorf("%w: failed to put chunk %s: %v", ErrNetwork, addr, err)
	}
	return addr, nil
}

// GetChunk fetches a blob by content address and verifies it.
func (c *S3Client) GetChunk(ctx context.Context, addr Address) ([]byte, error) {
	data, err := c.getObject(ctx, c.chunkKey(addr), addr)
	if err != nil {
		return nil, err
	}

	if AddressOf(data) != addr {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, addr)
	}
	return data, nil
}

// PutIData stores an immutable data object under its name.
func (c *S3Client) PutIData(ctx context.Context, data *ImmutableData) error {
	name := data.Name()

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.idataKey(name)),
		Body:   bytes.NewReader(data.Value()),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to put immutable data %s: %v", ErrNetwork, name, err)
	}
	return nil
}

// GetIData fetches an immutable data object by name and verifies it.
func (c *S3Client) GetIData(ctx context.Context, addr Address) (*ImmutableData, error) {
	value, err := c.getObject(ctx, c.idataKey(addr), addr)
	if err != nil {
		return nil, err
	}

	data := NewImmutableData(value)
	if data.Name() != addr {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, addr)
	}
	return data, nil
}

func (c *S3Client) getObject(ctx context.Context, key string, addr Address) ([]byte, error) {
	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
		}
		return nil, fmt.Errorf("%w: failed to get object %s: %v", ErrNetwork, key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read object body %s: %v", ErrNetwork, key, err)
	}
	return data, nil
}

// isNotFound classifies SDK errors that mean the key does not exist.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}
