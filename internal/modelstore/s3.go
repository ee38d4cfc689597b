package modelstore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// S3Downloader is the subset of s3manager.Downloader used for batch downloads.
type S3Downloader interface {
	DownloadWithIterator(aws.Context, s3manager.BatchDownloadIterator, ...func(*s3manager.Downloader)) error
}

// S3Provider downloads models from Amazon S3 or an S3-compatible endpoint.
type S3Provider struct {
	Client     s3iface.S3API
	Downloader S3Downloader
}

var _ Provider = (*S3Provider)(nil)

func newS3Provider(cfg clientConfig) (*S3Provider, error) {
	awsConfig := aws.Config{
		S3ForcePathStyle: aws.Bool(cfg.s3PathStyle),
	}
	if cfg.s3Region != "" {
		awsConfig.Region = aws.String(cfg.s3Region)
	}
	if cfg.s3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.s3Endpoint)
	}
	if cfg.s3Anonymous {
		awsConfig.Credentials = credentials.AnonymousCredentials
	}
	sess, err := session.NewSession(&awsConfig)
	if err != nil {
		return nil, errors.Wrap(err, "creating AWS session")
	}
	client := s3.New(sess)
	return &S3Provider{
		Client:     client,
		Downloader: s3manager.NewDownloaderWithClient(client),
	}, nil
}

// Download copies every object under s3://bucket/prefix into modelDir.
func (p *S3Provider) Download(ctx context.Context, modelDir string, bucket string, prefix string) error {
	log := klog.FromContext(ctx)

	var keys []*s3.Object
	err := p.Client.ListObjectsPagesWithContext(ctx, &s3.ListObjectsInput{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsOutput, _ bool) bool {
		keys = append(keys, page.Contents...)
		return true
	})
	if err != nil {
		return errors.Wrapf(err, "listing s3://%s/%s", bucket, prefix)
	}

	var (
		objects []s3manager.BatchDownloadObject
		found   int
	)
	for _, object := range keys {
		key := aws.StringValue(object.Key)
		if !underPrefix(key, prefix) {
			continue
		}
		found++
		path, err := objectPath(modelDir, prefix, key)
		if err != nil {
			closeAll(objects)
			return err
		}
		if upToDate(path, aws.Int64Value(object.Size)) {
			log.V(2).Info("object already cached", "object", key, "path", path)
			continue
		}
		file, err := create(path)
		if err != nil {
			closeAll(objects)
			return err
		}
		log.Info("downloading object from S3", "source", "s3://"+bucket+"/"+key, "destination", path)
		objects = append(objects, s3manager.BatchDownloadObject{
			Object: &s3.GetObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(key),
			},
			Writer: file,
			After:  file.Close,
		})
	}
	if found == 0 {
		return errors.Errorf("no objects under s3://%s/%s", bucket, prefix)
	}
	if len(objects) == 0 {
		return nil
	}

	iter := &s3manager.DownloadObjectsIterator{Objects: objects}
	if err := p.Downloader.DownloadWithIterator(ctx, iter); err != nil {
		closeAll(objects)
		return errors.Wrapf(err, "downloading s3://%s/%s", bucket, prefix)
	}
	return nil
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating directory for %s", path)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	return file, nil
}

// closeAll closes and removes the files of a batch that did not complete, so a
// partial download is not mistaken for a cached one.
func closeAll(objects []s3manager.BatchDownloadObject) {
	for _, o := range objects {
		if f, ok := o.Writer.(*os.File); ok {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}
}
