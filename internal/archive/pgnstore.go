package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrPGNNotFound = errors.New("pgn object not found")

// PGNStore keeps exported PGN text outside the database.
type PGNStore interface {
	Put(ctx context.Context, key string, pgn string) error
	Get(ctx context.Context, key string) (string, error)
}

// PGNObjectKey lays games out by player and end date.
func PGNObjectKey(playerHash, sessionUUID string, endedAt time.Time) string {
	player := strings.TrimSpace(playerHash)
	if len(player) > 16 {
		player = player[:16]
	}
	return fmt.Sprintf("games/%s/%s/%s.pgn", player, endedAt.UTC().Format("2006/01/02"), strings.TrimSpace(sessionUUID))
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type S3PGNStore struct {
	client     *minio.Client
	bucketName string
	region     string
	initOnce   sync.Once
	initErr    error
}

func NewS3PGNStore(cfg S3Config) (*S3PGNStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3PGNStore{client: client, bucketName: bucket, region: region}, nil
}

func (s *S3PGNStore) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *S3PGNStore) Put(ctx context.Context, key string, pgn string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("object key is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	body := []byte(pgn)
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/x-chess-pgn",
	})
	if err != nil {
		return fmt.Errorf("put pgn object: %w", err)
	}
	return nil
}

func (s *S3PGNStore) Get(ctx context.Context, key string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}
	obj, err := s.client.GetObject(ctx, s.bucketName, strings.TrimSpace(key), minio.GetObjectOptions{})
	if err != nil {
		return "", err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return "", ErrPGNNotFound
		}
		return "", err
	}
	return string(data), nil
}

// MemoryPGNStore is the PGNStore used when S3 is not configured.
type MemoryPGNStore struct {
	mu      sync.RWMutex
	objects map[string]string
}

func NewMemoryPGNStore() *MemoryPGNStore {
	return &MemoryPGNStore{objects: make(map[string]string)}
}

func (m *MemoryPGNStore) Put(_ context.Context, key string, pgn string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("object key is required")
	}
	m.mu.Lock()
	m.objects[key] = pgn
	m.mu.Unlock()
	return nil
}

func (m *MemoryPGNStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pgn, ok := m.objects[strings.TrimSpace(key)]
	if !ok {
		return "", ErrPGNNotFound
	}
	return pgn, nil
}
