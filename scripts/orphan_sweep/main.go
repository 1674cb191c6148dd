// Command orphan_sweep finds attachment blobs in the object store that have
// no metadata row. These are left behind when an upload's compensating delete
// exhausts its retries; the API counts them but cannot remove them itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/smd-platform/syllabus-api/pkg/config"
	"github.com/smd-platform/syllabus-api/pkg/database"
	"github.com/smd-platform/syllabus-api/pkg/objectstore"
)

func main() {
	var (
		prefix   string
		doDelete bool
		timeout  time.Duration
	)

	flag.StringVar(&prefix, "prefix", "syllabi/", "Object key prefix to scan")
	flag.BoolVar(&doDelete, "delete", false, "Delete orphaned blobs instead of just reporting them")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "Overall deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	store, err := objectstore.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("object store init failed: %v", err)
	}

	var paths []string
	if err := db.SelectContext(ctx, &paths, `SELECT object_path FROM file_assets`); err != nil {
		log.Fatalf("load metadata rows: %v", err)
	}
	known := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		known[p] = struct{}{}
	}

	keys, err := store.ListKeys(ctx, prefix)
	if err != nil {
		log.Fatalf("list bucket keys: %v", err)
	}

	var orphans []string
	for _, key := range keys {
		if _, ok := known[key]; !ok {
			orphans = append(orphans, key)
		}
	}

	fmt.Printf("Bucket %s: %d objects, %d metadata rows, %d orphans\n",
		store.Bucket(), len(keys), len(known), len(orphans))
	for _, key := range orphans {
		if doDelete {
			if err := store.Delete(ctx, key); err != nil {
				fmt.Printf("[FAIL] %s: %v\n", key, err)
				continue
			}
			fmt.Printf("[DELETED] %s\n", key)
		} else {
			fmt.Printf("[ORPHAN] %s\n", key)
		}
	}

	if len(orphans) > 0 && !doDelete {
		os.Exit(1)
	}
}
