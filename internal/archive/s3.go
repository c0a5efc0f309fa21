package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rtm0/goesjson/internal/goes"
)

// Region of the NOAA open data buckets.
const Region = "us-east-1"

// Bucket returns the NOAA open data bucket of a GOES satellite.
func Bucket(satellite int) string { return fmt.Sprintf("noaa-goes%d", satellite) }

type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Archive reads granules from the public NOAA GOES buckets and keeps
// downloads in a Cache.
type S3Archive struct {
	logger   *slog.Logger
	client   s3API
	cache    *Cache
	listings *listings
}

// NewS3Archive creates an archive client with anonymous credentials.
// Downloads and listings are cached under cacheDir.
func NewS3Archive(ctx context.Context, logger *slog.Logger, cacheDir string) (*S3Archive, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(Region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot load AWS config: %w", err)
	}
	return newS3Archive(logger, s3.NewFromConfig(cfg), cacheDir), nil
}

func newS3Archive(logger *slog.Logger, client s3API, cacheDir string) *S3Archive {
	return &S3Archive{
		logger:   logger,
		client:   client,
		cache:    NewCache(cacheDir),
		listings: newListings(cacheDir),
	}
}

// list returns the objects under prefix, using the listing cache.
func (a *S3Archive) list(ctx context.Context, bucket, prefix string) ([]Object, error) {
	if objs, ok := a.listings.get(bucket, prefix); ok {
		return objs, nil
	}

	start := time.Now()
	var objs []Object
	p := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("cannot list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, o := range page.Contents {
			objs = append(objs, Object{Bucket: bucket, Key: aws.ToString(o.Key), Size: aws.ToInt64(o.Size)})
		}
	}
	a.logger.Debug("Listed prefix", "bucket", bucket, "prefix", prefix, "objects", len(objs), "in", time.Since(start))

	if err := a.listings.put(bucket, prefix, objs); err != nil {
		a.logger.Warn("Could not store listing", "prefix", prefix, "err", err)
	}
	return objs, nil
}

func (a *S3Archive) listHours(ctx context.Context, req Request, hours []time.Time) ([]Object, error) {
	bucket := Bucket(req.Satellite)
	var all []Object
	for _, h := range hours {
		objs, err := a.list(ctx, bucket, HourPrefix(req.Dir(), h))
		if err != nil {
			return nil, err
		}
		all = append(all, objs...)
	}
	return granules(all, req.Dir(), req.Satellite), nil
}

func (a *S3Archive) Nearest(ctx context.Context, req Request) (Object, error) {
	objs, err := a.listHours(ctx, req, hoursAround(req.Time, req.window()))
	if err != nil {
		return Object{}, err
	}
	obj, err := nearest(objs, req.Time, req.window())
	if err != nil {
		return Object{}, fmt.Errorf("%s: %w", req, err)
	}
	return obj, nil
}

func (a *S3Archive) ListDay(ctx context.Context, req Request) ([]Object, error) {
	return a.listHours(ctx, req, dayHours(req.Time))
}

// Fetch downloads obj into the cache unless it is already there.
func (a *S3Archive) Fetch(ctx context.Context, obj Object) (string, error) {
	if obj.Bucket == "" {
		return "", ErrNotFound
	}
	fn, err := goes.ParseFileName(obj.Key)
	if err != nil {
		return "", err
	}

	start := time.Now()
	path, cached, err := a.cache.Get(a.cache.Path(fn.Product, fn.Start, obj.Base()), func(w io.Writer) error {
		out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(obj.Bucket),
			Key:    aws.String(obj.Key),
		})
		if err != nil {
			return fmt.Errorf("cannot get s3://%s/%s: %w", obj.Bucket, obj.Key, err)
		}
		defer out.Body.Close()
		_, err = io.Copy(w, out.Body)
		return err
	})
	if err != nil {
		return "", err
	}
	if !cached {
		a.logger.Info("Downloaded granule", "key", obj.Key, "bytes", obj.Size, "in", time.Since(start).Round(time.Millisecond))
	}
	return path, nil
}
