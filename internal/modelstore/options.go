package modelstore

import (
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/googleapis/google-cloud-go-testing/storage/stiface"
)

// Option configures a Store.
type Option func(*Store)

type clientConfig struct {
	gcsCredentials string
	s3Region       string
	s3Endpoint     string
	s3Anonymous    bool
	s3PathStyle    bool
}

// WithGCSCredentials authenticates GCS requests with a service account key
// file. Without it the GCS client is unauthenticated.
func WithGCSCredentials(path string) Option {
	return func(s *Store) {
		s.config.gcsCredentials = path
	}
}

// WithS3Region sets the AWS region of the S3 client.
func WithS3Region(region string) Option {
	return func(s *Store) {
		s.config.s3Region = region
	}
}

// WithS3Endpoint points the S3 client at an S3-compatible endpoint and
// switches to path-style bucket addressing.
func WithS3Endpoint(endpoint string) Option {
	return func(s *Store) {
		s.config.s3Endpoint = endpoint
		s.config.s3PathStyle = true
	}
}

// WithS3Anonymous sends unsigned S3 requests.
func WithS3Anonymous() Option {
	return func(s *Store) {
		s.config.s3Anonymous = true
	}
}

// WithGCSClient uses client for gs:// URIs.
func WithGCSClient(client stiface.Client) Option {
	return func(s *Store) {
		s.providers[GCS] = &GCSProvider{Client: client}
	}
}

// WithS3Client uses client and downloader for s3:// URIs.
func WithS3Client(client s3iface.S3API, downloader S3Downloader) Option {
	return func(s *Store) {
		s.providers[S3] = &S3Provider{Client: client, Downloader: downloader}
	}
}

// WithProvider replaces the built-in provider for GCS or S3.
func WithProvider(protocol Protocol, p Provider) Option {
	return func(s *Store) {
		s.providers[protocol] = p
	}
}
