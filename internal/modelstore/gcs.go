package modelstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	gstorage "cloud.google.com/go/storage"
	"github.com/googleapis/google-cloud-go-testing/storage/stiface"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"k8s.io/klog/v2"
)

// GCSProvider downloads models from Google Cloud Storage.
type GCSProvider struct {
	Client stiface.Client
}

var _ Provider = (*GCSProvider)(nil)

func newGCSProvider(ctx context.Context, cfg clientConfig) (*GCSProvider, error) {
	opts := []option.ClientOption{option.WithoutAuthentication()}
	if cfg.gcsCredentials != "" {
		opts = []option.ClientOption{option.WithCredentialsFile(cfg.gcsCredentials)}
	}
	client, err := gstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating GCS storage client")
	}
	return &GCSProvider{Client: stiface.AdaptClient(client)}, nil
}

// Download copies every object under gs://bucket/prefix into modelDir.
func (p *GCSProvider) Download(ctx context.Context, modelDir string, bucket string, prefix string) error {
	log := klog.FromContext(ctx)

	it := p.Client.Bucket(bucket).Objects(ctx, &gstorage.Query{Prefix: prefix})
	count := 0
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "listing gs://%s/%s", bucket, prefix)
		}
		if !underPrefix(attrs.Name, prefix) {
			continue
		}
		path, err := objectPath(modelDir, prefix, attrs.Name)
		if err != nil {
			return err
		}
		count++
		if upToDate(path, attrs.Size) {
			log.V(2).Info("object already cached", "object", attrs.Name, "path", path)
			continue
		}
		if err := p.downloadObject(ctx, bucket, attrs.Name, path); err != nil {
			return err
		}
	}
	if count == 0 {
		return errors.Wrapf(gstorage.ErrObjectNotExist, "no objects under gs://%s/%s", bucket, prefix)
	}
	return nil
}

func (p *GCSProvider) downloadObject(ctx context.Context, bucket, name, path string) error {
	log := klog.FromContext(ctx)
	gcsURL := "gs://" + bucket + "/" + name

	log.Info("downloading object from GCS", "source", gcsURL, "destination", path)
	startedAt := time.Now()

	r, err := p.Client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return errors.Wrapf(err, "opening object %q", gcsURL)
	}
	defer r.Close()

	n, err := writeToFile(ctx, r, path)
	if err != nil {
		return errors.Wrapf(err, "downloading %q", gcsURL)
	}

	log.Info("downloaded object from GCS", "source", gcsURL, "bytes", n, "duration", time.Since(startedAt))
	return nil
}

// writeToFile streams src into a temp file next to destinationPath and renames
// it into place once complete.
func writeToFile(ctx context.Context, src io.Reader, destinationPath string) (int64, error) {
	log := klog.FromContext(ctx)

	dir := filepath.Dir(destinationPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrapf(err, "creating directory %s", dir)
	}
	tempFile, err := os.CreateTemp(dir, "download")
	if err != nil {
		return 0, errors.Wrap(err, "creating temp file")
	}

	keepTempFile := false
	defer func() {
		if keepTempFile {
			return
		}
		_ = tempFile.Close()
		if err := os.Remove(tempFile.Name()); err != nil {
			log.Error(err, "removing temp file", "path", tempFile.Name())
		}
	}()

	n, err := io.Copy(tempFile, src)
	if err != nil {
		return n, errors.Wrap(err, "copying from upstream source")
	}
	if err := tempFile.Close(); err != nil {
		return n, errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(tempFile.Name(), destinationPath); err != nil {
		return n, errors.Wrapf(err, "renaming temp file to %s", destinationPath)
	}
	keepTempFile = true
	return n, nil
}
