// Package builds3 publishes build output to S3-compatible object storage.
package builds3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/k11v/gtfshtml/internal/build"
)

var _ build.Publisher = (*Publisher)(nil)

// Publisher mirrors a build's output directory under a key prefix.
// Uploaded objects are public and expire after Expiration.
type Publisher struct {
	client     *s3.Client
	bucket     string
	expiration time.Duration

	// uploadPartSize should be greater than or equal 5MB.
	// See github.com/aws/aws-sdk-go-v2/feature/s3/manager.
	uploadPartSize int64
}

func NewPublisher(client *s3.Client, bucket string, expiration time.Duration) *Publisher {
	if expiration <= 0 {
		expiration = 30 * 24 * time.Hour
	}
	return &Publisher{
		client:         client,
		bucket:         bucket,
		expiration:     expiration,
		uploadPartSize: 10 * 1024 * 1024, // 10MB
	}
}

type localFile struct {
	Name string // slash-separated, relative to the directory
	Path string
	Size int64
}

// Publish implements build.Publisher.
func (p *Publisher) Publish(ctx context.Context, params *build.PublishParams) (*build.PublishResult, error) {
	var files []*localFile
	var total int64
	for f, err := range walkFiles(params.Dir) {
		if err != nil {
			return nil, fmt.Errorf("builds3.Publisher: %w", err)
		}
		files = append(files, f)
		total += f.Size
	}

	progress := &progress{total: total, fn: params.Progress}
	uploader := manager.NewUploader(p.client, func(u *manager.Uploader) {
		u.PartSize = p.uploadPartSize
	})
	expires := time.Now().Add(p.expiration)

	keep := make(map[string]bool, len(files))
	for _, f := range files {
		key := path.Join(params.Prefix, f.Name)
		keep[key] = true
		if err := p.upload(ctx, uploader, key, f, expires, progress); err != nil {
			return nil, fmt.Errorf("builds3.Publisher: %w", err)
		}
	}

	deleted, err := p.deleteRemoved(ctx, params.Prefix+"/", keep)
	if err != nil {
		return nil, fmt.Errorf("builds3.Publisher: %w", err)
	}

	return &build.PublishResult{Uploaded: len(files), Deleted: deleted}, nil
}

func (p *Publisher) upload(ctx context.Context, uploader *manager.Uploader, key string, f *localFile, expires time.Time, progress *progress) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	contentType := mime.TypeByExtension(path.Ext(f.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      &p.bucket,
		Key:         &key,
		Body:        &progressReader{r: file, progress: progress},
		ACL:         types.ObjectCannedACLPublicRead,
		ContentType: &contentType,
		Expires:     &expires,
	})
	if err != nil {
		if apiErr := smithy.APIError(nil); errors.As(err, &apiErr) {
			return fmt.Errorf("upload %s: %s: %w", key, apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// deleteRemoved deletes the keys under prefix that aren't in keep.
func (p *Publisher) deleteRemoved(ctx context.Context, prefix string, keep map[string]bool) (int, error) {
	var stale []types.ObjectIdentifier
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: &p.bucket,
		Prefix: &prefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		for _, obj := range page.Contents {
			if obj.Key != nil && !keep[*obj.Key] {
				stale = append(stale, types.ObjectIdentifier{Key: obj.Key})
			}
		}
	}

	// DeleteObjects accepts at most 1000 keys.
	for start := 0; start < len(stale); start += 1000 {
		end := min(start+1000, len(stale))
		out, err := p.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: &p.bucket,
			Delete: &types.Delete{Objects: stale[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return 0, err
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return 0, fmt.Errorf("delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	return len(stale), nil
}

// walkFiles yields the regular files under dir in lexical order.
func walkFiles(dir string) iter.Seq2[*localFile, error] {
	return func(yield func(*localFile, error) bool) {
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			if !yield(&localFile{Name: filepath.ToSlash(rel), Path: p, Size: info.Size()}, nil) {
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			yield(nil, err)
		}
	}
}

type progress struct {
	mu    sync.Mutex
	done  int64
	total int64
	fn    func(done, total int64)
}

func (p *progress) add(n int64) {
	if p.fn == nil || n <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	// retried parts are read again
	p.done = min(p.done+n, p.total)
	p.fn(p.done, p.total)
}

type progressReader struct {
	r        io.Reader
	progress *progress
}

func (r *progressReader) Read(b []byte) (int, error) {
	n, err := r.r.Read(b)
	r.progress.add(int64(n))
	return n, err
}
