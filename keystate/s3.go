package keystate

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Store persists secret state as a single encrypted object in an S3 (or
// S3-compatible) bucket, for pool members that share durable state across
// a fleet rather than a local disk. The object key is fixed -- there is
// only ever one live version, not a content-addressed history.
type S3Store struct {
	client     *s3.S3
	bucketName string
	objectKey  string
	key        []byte
	log        *slog.Logger
}

// NewS3Store creates an S3Store. key must be 16, 24, or 32 bytes and is
// used directly as an AES-GCM key for encryption at rest.
func NewS3Store(bucketName, prefix, region, endpoint, accessKey, secretKey string, key []byte, log *slog.Logger) (*S3Store, error) {
	cfg := aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("create AWS session: %w", err)
	}

	objectKey := "keystate"
	if prefix := strings.TrimSuffix(prefix, "/"); prefix != "" {
		objectKey = path.Join(prefix, objectKey)
	}

	return &S3Store{
		client:     s3.New(sess),
		bucketName: bucketName,
		objectKey:  objectKey,
		key:        key,
		log:        log,
	}, nil
}

func (s *S3Store) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func (s *S3Store) Export(ctx context.Context) ([]byte, error) {
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "404") {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("get object from S3: %w", err)
	}
	defer result.Body.Close()

	raw, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}

	aead, err := s.aead()
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("state object truncated")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt state object: %w", err)
	}

	s.log.Debug("exported secret state from S3", slog.String("bucket", s.bucketName), slog.String("key", s.objectKey))
	return plaintext, nil
}

func (s *S3Store) Install(ctx context.Context, state []byte) error {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey),
	})
	if err == nil {
		return ErrAlreadyInstalled
	}
	if !strings.Contains(err.Error(), "NoSuchKey") && !strings.Contains(err.Error(), "NotFound") && !strings.Contains(err.Error(), "404") {
		return fmt.Errorf("head object in S3: %w", err)
	}

	aead, err := s.aead()
	if err != nil {
		return err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, state, nil)
	blob := append(nonce, ciphertext...)

	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey),
		Body:   bytes.NewReader(blob),
	})
	if err != nil {
		return fmt.Errorf("put object to S3: %w", err)
	}

	s.log.Debug("installed secret state to S3", slog.String("bucket", s.bucketName), slog.String("key", s.objectKey))
	return nil
}
