package modelstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	gstorage "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/googleapis/google-cloud-go-testing/storage/stiface"
	"google.golang.org/api/iterator"
)

// fakeGCSClient serves objects from memory, keyed by bucket then object name.
type fakeGCSClient struct {
	stiface.Client
	buckets map[string]map[string][]byte
	reads   int
}

func (c *fakeGCSClient) Bucket(name string) stiface.BucketHandle {
	return fakeBucketHandle{c: c, name: name}
}

type fakeBucketHandle struct {
	stiface.BucketHandle
	c    *fakeGCSClient
	name string
}

func (b fakeBucketHandle) Objects(_ context.Context, query *gstorage.Query) stiface.ObjectIterator {
	objects, ok := b.c.buckets[b.name]
	if !ok {
		return &fakeObjectIterator{err: gstorage.ErrBucketNotExist}
	}
	var items []*gstorage.ObjectAttrs
	for _, name := range sortedKeys(objects) {
		if strings.HasPrefix(name, query.Prefix) {
			items = append(items, &gstorage.ObjectAttrs{
				Bucket: b.name,
				Name:   name,
				Size:   int64(len(objects[name])),
			})
		}
	}
	return &fakeObjectIterator{items: items}
}

func (b fakeBucketHandle) Object(name string) stiface.ObjectHandle {
	return fakeObjectHandle{c: b.c, bucket: b.name, name: name}
}

type fakeObjectIterator struct {
	stiface.ObjectIterator
	items []*gstorage.ObjectAttrs
	err   error
}

func (i *fakeObjectIterator) Next() (*gstorage.ObjectAttrs, error) {
	if i.err != nil {
		return nil, i.err
	}
	if len(i.items) == 0 {
		return nil, iterator.Done
	}
	item := i.items[0]
	i.items = i.items[1:]
	return item, nil
}

type fakeObjectHandle struct {
	stiface.ObjectHandle
	c      *fakeGCSClient
	bucket string
	name   string
}

func (o fakeObjectHandle) NewReader(context.Context) (stiface.Reader, error) {
	data, ok := o.c.buckets[o.bucket][o.name]
	if !ok {
		return nil, gstorage.ErrObjectNotExist
	}
	o.c.reads++
	return fakeReader{r: bytes.NewReader(data)}, nil
}

type fakeReader struct {
	stiface.Reader
	r *bytes.Reader
}

func (r fakeReader) Read(buf []byte) (int, error) {
	return r.r.Read(buf)
}

func (r fakeReader) Close() error {
	return nil
}

// fakeS3 lists and serves the objects of a single bucket, two keys per page.
type fakeS3 struct {
	s3iface.S3API
	bucket  string
	objects map[string][]byte
	fail    error
	fetched []string
}

func (m *fakeS3) ListObjectsPagesWithContext(_ aws.Context, in *s3.ListObjectsInput,
	fn func(*s3.ListObjectsOutput, bool) bool, _ ...request.Option,
) error {
	if aws.StringValue(in.Bucket) != m.bucket {
		return fmt.Errorf("NoSuchBucket: %s", aws.StringValue(in.Bucket))
	}
	var contents []*s3.Object
	for _, key := range sortedKeys(m.objects) {
		if strings.HasPrefix(key, aws.StringValue(in.Prefix)) {
			contents = append(contents, &s3.Object{
				Key:  aws.String(key),
				Size: aws.Int64(int64(len(m.objects[key]))),
			})
		}
	}
	for len(contents) > 0 {
		n := min(2, len(contents))
		page := &s3.ListObjectsOutput{Contents: contents[:n]}
		contents = contents[n:]
		if !fn(page, len(contents) == 0) {
			break
		}
	}
	return nil
}

func (m *fakeS3) DownloadWithIterator(_ aws.Context, iter s3manager.BatchDownloadIterator, _ ...func(*s3manager.Downloader)) error {
	if m.fail != nil {
		return m.fail
	}
	for iter.Next() {
		object := iter.DownloadObject()
		key := aws.StringValue(object.Object.Key)
		data, ok := m.objects[key]
		if !ok {
			return fmt.Errorf("NoSuchKey: %s", key)
		}
		if _, err := object.Writer.WriteAt(data, 0); err != nil {
			return err
		}
		if object.After != nil {
			if err := object.After(); err != nil {
				return err
			}
		}
		m.fetched = append(m.fetched, key)
	}
	return iter.Err()
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
