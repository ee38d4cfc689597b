// Package modelstore resolves model URIs into local model directories.
//
// Plain paths and file:// URIs name a local directory or file and pass
// through unchanged. gs:// and s3:// URIs are downloaded object by object into
// a cache directory laid out as <cache>/<bucket>/<prefix>; the returned path
// can be handed to graph.New.
package modelstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Protocol is the scheme prefix of a model URI.
type Protocol string

const (
	File Protocol = "file://"
	GCS  Protocol = "gs://"
	S3   Protocol = "s3://"
)

// SupportedProtocols lists the remote schemes a Store can download from.
var SupportedProtocols = []Protocol{GCS, S3}

// ErrUnsupportedProtocol is returned for a URI with an unknown scheme.
var ErrUnsupportedProtocol = errors.New("unsupported model URI protocol")

// Provider downloads every object under a bucket prefix into modelDir.
type Provider interface {
	Download(ctx context.Context, modelDir string, bucket string, prefix string) error
}

// Store resolves model URIs, creating remote providers on first use.
type Store struct {
	cacheDir  string
	providers map[Protocol]Provider
	config    clientConfig
}

// New creates a Store that downloads into cacheDir.
func New(cacheDir string, opts ...Option) *Store {
	s := &Store{
		cacheDir:  cacheDir,
		providers: map[Protocol]Provider{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CacheDir returns the directory remote models are downloaded into.
func (s *Store) CacheDir() string {
	return s.cacheDir
}

// Resolve returns a local path for uri, downloading remote models first.
func (s *Store) Resolve(ctx context.Context, uri string) (string, error) {
	log := klog.FromContext(ctx)

	protocol, rest := ParseURI(uri)
	switch protocol {
	case "", File:
		path := filepath.Clean(rest)
		if _, err := os.Stat(path); err != nil {
			return "", errors.Wrapf(err, "resolving %q", uri)
		}
		return path, nil
	case GCS, S3:
	default:
		return "", errors.Wrapf(ErrUnsupportedProtocol, "%q", uri)
	}

	bucket, prefix := splitBucket(rest)
	if bucket == "" {
		return "", errors.Errorf("model URI %q has no bucket", uri)
	}
	modelDir, err := s.modelDir(bucket, prefix)
	if err != nil {
		return "", err
	}

	provider, err := s.provider(ctx, protocol)
	if err != nil {
		return "", errors.Wrapf(err, "creating %s provider", protocol)
	}

	log.Info("resolving remote model", "uri", uri, "modelDir", modelDir)
	if err := provider.Download(ctx, modelDir, bucket, prefix); err != nil {
		return "", errors.Wrapf(err, "downloading %q", uri)
	}
	return modelDir, nil
}

// ParseURI splits uri into its protocol and the remainder. A URI without a
// known scheme is a plain path and yields an empty protocol.
func ParseURI(uri string) (Protocol, string) {
	for _, p := range []Protocol{File, GCS, S3} {
		if strings.HasPrefix(uri, string(p)) {
			return p, strings.TrimPrefix(uri, string(p))
		}
	}
	if i := strings.Index(uri, "://"); i > 0 {
		return Protocol(uri[:i+3]), uri[i+3:]
	}
	return "", uri
}

func splitBucket(rest string) (bucket, prefix string) {
	tokens := strings.SplitN(rest, "/", 2)
	bucket = tokens[0]
	if len(tokens) == 2 {
		prefix = strings.TrimSuffix(tokens[1], "/")
	}
	return bucket, prefix
}

func (s *Store) modelDir(bucket, prefix string) (string, error) {
	if s.cacheDir == "" {
		return "", errors.New("no cache directory configured for remote models")
	}
	dir := filepath.Join(s.cacheDir, bucket, filepath.FromSlash(prefix))
	if err := within(s.cacheDir, dir); err != nil {
		return "", err
	}
	return dir, nil
}

func (s *Store) provider(ctx context.Context, protocol Protocol) (Provider, error) {
	if p, ok := s.providers[protocol]; ok {
		return p, nil
	}

	var (
		p   Provider
		err error
	)
	switch protocol {
	case GCS:
		p, err = newGCSProvider(ctx, s.config)
	case S3:
		p, err = newS3Provider(s.config)
	default:
		return nil, errors.Wrapf(ErrUnsupportedProtocol, "%s", protocol)
	}
	if err != nil {
		return nil, err
	}
	s.providers[protocol] = p
	return p, nil
}

// within fails if path is not inside root.
func within(root, path string) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return errors.Wrapf(err, "relating %s to %s", path, root)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.Errorf("path %s escapes %s", path, root)
	}
	return nil
}

// objectPath maps an object key under prefix to a file inside modelDir. A key
// equal to the prefix names a single-object model and keeps its base name.
func objectPath(modelDir, prefix, key string) (string, error) {
	rel := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
	if rel == "" {
		rel = filepath.Base(filepath.FromSlash(key))
	}
	path := filepath.Join(modelDir, filepath.FromSlash(rel))
	if err := within(modelDir, path); err != nil {
		return "", err
	}
	return path, nil
}

// upToDate reports whether path already holds a file of the given size.
func upToDate(path string, size int64) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() == size
}

// underPrefix reports whether key is prefix itself or an object below it.
func underPrefix(key, prefix string) bool {
	if strings.HasSuffix(key, "/") {
		return false
	}
	return prefix == "" || key == prefix || strings.HasPrefix(key, prefix+"/")
}
