// Package s3store keeps cache generations in an S3-compatible bucket.
//
// Layout under the configured root:
//
//	<generation>/.generation          marker, written by the first Open
//	<generation>/<sha256(key)>.json   one JSON-encoded edge.Entry
package s3store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dmitrijs2005/nutritrack/internal/edge"
)

const (
	markerName = ".generation"
	// DeleteObjects accepts at most this many keys per call.
	deleteBatch = 1000
)

// API is the part of *s3.Client the store uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config locates the bucket and its credentials.
type Config struct {
	User         string
	Password     string
	Bucket       string
	Region       string
	BaseEndpoint string
	// Root is an optional key prefix, e.g. "edge/".
	Root string
}

// Storage is an edge.CacheStorage over one bucket. It remembers the
// generations it has opened so lookups do not rewrite their markers.
type Storage struct {
	api    API
	bucket string
	root   string

	mu     sync.Mutex
	opened map[string]struct{}
}

// New returns a storage keeping generations under root in bucket.
func New(api API, bucket, root string) *Storage {
	if root != "" && !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return &Storage{api: api, bucket: bucket, root: root, opened: make(map[string]struct{})}
}

// NewFromConfig builds a client with static credentials against
// cfg.BaseEndpoint using path-style addressing, as MinIO expects.
func NewFromConfig(ctx context.Context, cfg Config) (*Storage, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.User,
			cfg.Password,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = true
	})
	return New(client, cfg.Bucket, cfg.Root), nil
}

func (s *Storage) prefix(name string) string {
	return s.root + name + "/"
}

// Open returns the generation, writing its marker the first time this
// Storage sees the name.
func (s *Storage) Open(ctx context.Context, name string) (edge.Cache, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid generation name %q", name)
	}

	s.mu.Lock()
	_, ok := s.opened[name]
	s.mu.Unlock()
	if ok {
		return &cache{s: s, name: name}, nil
	}

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix(name) + markerName),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open generation %s: %w", name, err)
	}

	s.mu.Lock()
	s.opened[name] = struct{}{}
	s.mu.Unlock()
	return &cache{s: s, name: name}, nil
}

func (s *Storage) Has(ctx context.Context, name string) (bool, error) {
	out, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.prefix(name)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("failed to check generation %s: %w", name, err)
	}
	return len(out.Contents) > 0, nil
}

// Keys lists generations as the common prefixes under root.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.root),
		Delimiter: aws.String("/"),
	})

	names := make([]string, 0)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list generations: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), s.root), "/")
			if name != "" {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes every object of the generation.
func (s *Storage) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	delete(s.opened, name)
	s.mu.Unlock()

	keys, err := s.listKeys(ctx, s.prefix(name))
	if err != nil {
		return false, fmt.Errorf("failed to delete generation %s: %w", name, err)
	}

	for start := 0; start < len(keys); start += deleteBatch {
		end := min(start+deleteBatch, len(keys))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := s.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return false, fmt.Errorf("failed to delete generation %s: %w", name, err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return false, fmt.Errorf("failed to delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	return len(keys) > 0, nil
}

func (s *Storage) listKeys(ctx context.Context, prefix string) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	keys := make([]string, 0)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

type cache struct {
	s    *Storage
	name string
}

func objectName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + ".json"
}

func (c *cache) objectKey(key string) string {
	return c.s.prefix(c.name) + objectName(key)
}

func (c *cache) Match(ctx context.Context, key string) (*edge.Entry, error) {
	return c.get(ctx, c.objectKey(key))
}

func (c *cache) get(ctx context.Context, objKey string) (*edge.Entry, error) {
	out, err := c.s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, edge.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get %s: %w", objKey, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", objKey, err)
	}
	var e edge.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", objKey, err)
	}
	return &e, nil
}

func (c *cache) Put(ctx context.Context, e *edge.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = c.s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.s.bucket),
		Key:         aws.String(c.objectKey(e.Key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", e.Key, err)
	}
	return nil
}

func (c *cache) Delete(ctx context.Context, key string) (bool, error) {
	objKey := c.objectKey(key)
	existing, err := c.s.listKeys(ctx, objKey)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", key, err)
	}
	if len(existing) == 0 {
		return false, nil
	}
	_, err = c.s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return true, nil
}

// Keys reads every entry of the generation: object names are hashes, the
// request keys live in the bodies.
func (c *cache) Keys(ctx context.Context) ([]string, error) {
	objs, err := c.s.listKeys(ctx, c.s.prefix(c.name))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.name, err)
	}

	keys := make([]string, 0, len(objs))
	for _, o := range objs {
		if strings.HasSuffix(o, "/"+markerName) {
			continue
		}
		e, err := c.get(ctx, o)
		if errors.Is(err, edge.ErrCacheMiss) {
			continue
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, e.Key)
	}
	sort.Strings(keys)
	return keys, nil
}
