package modelstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	gstorage "cloud.google.com/go/storage"
	"github.com/onsi/gomega"
)

func readFile(g *gomega.WithT, path string) string {
	data, err := os.ReadFile(path)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	return string(data)
}

func TestParseURI(t *testing.T) {
	g := gomega.NewGomegaWithT(t)

	cases := []struct {
		uri      string
		protocol Protocol
		rest     string
	}{
		{"gs://bucket/models/simple", GCS, "bucket/models/simple"},
		{"s3://bucket/simple", S3, "bucket/simple"},
		{"file:///tmp/model", File, "/tmp/model"},
		{"/tmp/model", "", "/tmp/model"},
		{"models/simple", "", "models/simple"},
		{"hdfs://cluster/model", "hdfs://", "cluster/model"},
	}
	for _, tc := range cases {
		protocol, rest := ParseURI(tc.uri)
		g.Expect(protocol).To(gomega.Equal(tc.protocol), tc.uri)
		g.Expect(rest).To(gomega.Equal(tc.rest), tc.uri)
	}
}

func TestResolveLocal(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	dir := t.TempDir()
	store := New(t.TempDir())

	path, err := store.Resolve(context.Background(), dir)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(path).To(gomega.Equal(dir))

	path, err = store.Resolve(context.Background(), "file://"+dir)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(path).To(gomega.Equal(dir))

	_, err = store.Resolve(context.Background(), filepath.Join(dir, "missing"))
	g.Expect(err).To(gomega.HaveOccurred())
	g.Expect(errors.Is(err, os.ErrNotExist)).To(gomega.BeTrue())
}

func TestResolveUnsupported(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	store := New(t.TempDir())

	_, err := store.Resolve(context.Background(), "hdfs://cluster/model")
	g.Expect(errors.Is(err, ErrUnsupportedProtocol)).To(gomega.BeTrue())

	_, err = store.Resolve(context.Background(), "gs:///model")
	g.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("has no bucket")))
}

func TestResolveGCS(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	cache := t.TempDir()
	client := &fakeGCSClient{buckets: map[string]map[string][]byte{
		"models": {
			"simple/model.onnx":      []byte("onnx bytes"),
			"simple/model.yaml":      []byte("strict: true\n"),
			"simple/extra/notes.txt": []byte("notes"),
			"simple/":                nil,
			"simplegraph/model.onnx": []byte("other"),
			"unrelated/model.onnx":   []byte("unrelated"),
		},
	}}
	store := New(cache, WithGCSClient(client))

	dir, err := store.Resolve(context.Background(), "gs://models/simple")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(dir).To(gomega.Equal(filepath.Join(cache, "models", "simple")))
	g.Expect(readFile(g, filepath.Join(dir, "model.onnx"))).To(gomega.Equal("onnx bytes"))
	g.Expect(readFile(g, filepath.Join(dir, "model.yaml"))).To(gomega.Equal("strict: true\n"))
	g.Expect(readFile(g, filepath.Join(dir, "extra", "notes.txt"))).To(gomega.Equal("notes"))
	g.Expect(filepath.Join(cache, "models", "simplegraph")).NotTo(gomega.BeADirectory())
	g.Expect(client.reads).To(gomega.Equal(3))

	// A second resolve finds every object cached.
	_, err = store.Resolve(context.Background(), "gs://models/simple/")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(client.reads).To(gomega.Equal(3))

	entries, err := os.ReadDir(dir)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(entries).To(gomega.HaveLen(3))
}

func TestResolveGCSSingleObject(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	cache := t.TempDir()
	client := &fakeGCSClient{buckets: map[string]map[string][]byte{
		"models": {"export/linear.onnx": []byte("onnx bytes")},
	}}
	store := New(cache, WithGCSClient(client))

	dir, err := store.Resolve(context.Background(), "gs://models/export/linear.onnx")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(readFile(g, filepath.Join(dir, "linear.onnx"))).To(gomega.Equal("onnx bytes"))
}

func TestResolveGCSErrors(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	client := &fakeGCSClient{buckets: map[string]map[string][]byte{
		"models": {"simple/model.onnx": []byte("onnx bytes")},
	}}
	store := New(t.TempDir(), WithGCSClient(client))

	_, err := store.Resolve(context.Background(), "gs://models/no-object")
	g.Expect(errors.Is(err, gstorage.ErrObjectNotExist)).To(gomega.BeTrue())

	_, err = store.Resolve(context.Background(), "gs://bucket-not-exist/simple")
	g.Expect(errors.Is(err, gstorage.ErrBucketNotExist)).To(gomega.BeTrue())

	_, err = New("", WithGCSClient(client)).Resolve(context.Background(), "gs://models/simple")
	g.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("no cache directory")))

	_, err = store.Resolve(context.Background(), "gs://models/../../escape")
	g.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("escapes")))
}

func TestResolveS3(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	cache := t.TempDir()
	fake := &fakeS3{
		bucket: "modelRepo",
		objects: map[string][]byte{
			"model1/model.onnx":    []byte("onnx bytes"),
			"model1/model.yaml":    []byte("model: model.onnx\n"),
			"model1/1/weights.bin": []byte("weights"),
			"model10/model.onnx":   []byte("other"),
		},
	}
	store := New(cache, WithS3Client(fake, fake))

	dir, err := store.Resolve(context.Background(), "s3://modelRepo/model1")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(dir).To(gomega.Equal(filepath.Join(cache, "modelRepo", "model1")))
	g.Expect(readFile(g, filepath.Join(dir, "model.onnx"))).To(gomega.Equal("onnx bytes"))
	g.Expect(readFile(g, filepath.Join(dir, "model.yaml"))).To(gomega.Equal("model: model.onnx\n"))
	g.Expect(readFile(g, filepath.Join(dir, "1", "weights.bin"))).To(gomega.Equal("weights"))
	g.Expect(fake.fetched).To(gomega.ConsistOf("model1/model.onnx", "model1/model.yaml", "model1/1/weights.bin"))

	fake.fetched = nil
	_, err = store.Resolve(context.Background(), "s3://modelRepo/model1")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(fake.fetched).To(gomega.BeEmpty())
}

func TestResolveS3Errors(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	cache := t.TempDir()
	fake := &fakeS3{
		bucket:  "modelRepo",
		objects: map[string][]byte{"model1/model.onnx": []byte("onnx bytes")},
		fail:    errors.New("BatchedDownloadIncomplete"),
	}
	store := New(cache, WithS3Client(fake, fake))

	_, err := store.Resolve(context.Background(), "s3://modelRepo/model1")
	g.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("BatchedDownloadIncomplete")))
	g.Expect(filepath.Join(cache, "modelRepo", "model1", "model.onnx")).NotTo(gomega.BeAnExistingFile())

	_, err = store.Resolve(context.Background(), "s3://modelRepo/missing")
	g.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("no objects under")))

	_, err = store.Resolve(context.Background(), "s3://otherRepo/model1")
	g.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("NoSuchBucket")))
}

type recordingProvider struct {
	calls []string
}

func (p *recordingProvider) Download(_ context.Context, modelDir string, bucket string, prefix string) error {
	p.calls = append(p.calls, bucket+"|"+prefix)
	return os.MkdirAll(modelDir, 0o755)
}

func TestWithProvider(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	p := &recordingProvider{}
	store := New(t.TempDir(), WithProvider(S3, p))

	dir, err := store.Resolve(context.Background(), "s3://bucket/a/b")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(dir).To(gomega.BeADirectory())
	g.Expect(p.calls).To(gomega.Equal([]string{"bucket|a/b"}))
	g.Expect(store.CacheDir()).NotTo(gomega.BeEmpty())
}
