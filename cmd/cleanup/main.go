// Command cleanup reconciles the storage backend against the media
// database: objects that no media record references are orphans (leftovers
// from aborted ingests or interrupted deletes) and get removed. Orphans are
// an accepted leak on the hot path; this sweep is how an operator reclaims
// them.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"media-ingest-server/internal"
	"media-ingest-server/internal/storage"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "List orphaned objects without deleting them")
	flag.Parse()

	cfg, err := internal.GetConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := internal.InitDB(cfg.Database.Path, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open media database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	app := &internal.App{DB: db}

	referenced, err := referencedKeys(ctx, app, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to collect referenced keys: %v", err)
	}
	fmt.Printf("Database references %d objects\n", len(referenced))

	var orphans []string
	switch cfg.Storage.Type {
	case "local":
		orphans, err = localOrphans(cfg.Storage.Local.BaseDir, referenced)
	case "s3":
		orphans, err = s3Orphans(ctx, cfg.Storage.S3, referenced)
	default:
		log.Fatalf("Unknown storage backend %q", cfg.Storage.Type)
	}
	if err != nil {
		log.Fatalf("Failed to list backend objects: %v", err)
	}

	if len(orphans) == 0 {
		fmt.Println("No orphaned objects found.")
		return
	}

	fmt.Printf("Found %d orphaned objects\n", len(orphans))
	if *dryRun {
		for _, key := range orphans {
			fmt.Printf("would delete: %s\n", key)
		}
		return
	}

	switch cfg.Storage.Type {
	case "local":
		deleteLocal(cfg.Storage.Local.BaseDir, orphans)
	case "s3":
		deleteS3(ctx, cfg.Storage.S3, orphans)
	}
}

// referencedKeys walks every media record and resolves each of its URLs
// back to a backend key.
func referencedKeys(ctx context.Context, app *internal.App, cfg internal.StorageConfig) (map[string]bool, error) {
	var publicURL string
	switch cfg.Type {
	case "local":
		publicURL = cfg.Local.PublicUrl
	case "s3":
		publicURL = cfg.S3.PublicUrl
	}
	// Key resolution only needs the public base, not a live backend.
	resolver := storage.NewMemoryStorage(publicURL)

	referenced := make(map[string]bool)
	for page := 1; ; page++ {
		result, err := app.ListMedia(ctx, internal.MediaFilter{Page: page, PageSize: 500})
		if err != nil {
			return nil, err
		}
		for i := range result.Items {
			for _, url := range internal.ObjectURLs(&result.Items[i]) {
				if key, ok := resolver.KeyFromURL(url); ok {
					referenced[key] = true
				}
			}
		}
		if page >= result.PageCount {
			break
		}
	}
	return referenced, nil
}

func localOrphans(baseDir string, referenced map[string]bool) ([]string, error) {
	var orphans []string
	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !referenced[key] {
			orphans = append(orphans, key)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return orphans, err
}

func deleteLocal(baseDir string, keys []string) {
	deleted := 0
	for _, key := range keys {
		if err := os.Remove(filepath.Join(baseDir, filepath.FromSlash(key))); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to delete %s: %v", key, err)
			continue
		}
		deleted++
	}
	fmt.Printf("Deleted %d orphaned files\n", deleted)
}

func newS3Client(ctx context.Context, cfg internal.S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyId, cfg.SecretAccessKey, "")),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

func s3Orphans(ctx context.Context, cfg internal.S3Config, referenced map[string]bool) ([]string, error) {
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var orphans []string
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.Bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !referenced[key] {
				orphans = append(orphans, key)
			}
		}
	}
	return orphans, nil
}

func deleteS3(ctx context.Context, cfg internal.S3Config, keys []string) {
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}

	deleted := 0
	// DeleteObjects accepts at most 1000 keys per call.
	for start := 0; start < len(keys); start += 1000 {
		end := min(start+1000, len(keys))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(cfg.Bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			log.Printf("Failed to delete batch: %v", err)
			continue
		}
		for _, e := range out.Errors {
			log.Printf("Failed to delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
		}
		deleted += end - start - len(out.Errors)
	}
	fmt.Printf("Deleted %d orphaned objects\n", deleted)
}
