// Package serialization exports and imports store snapshots as JSON.
//
// A snapshot captures every bucket and object in a store, including object
// bodies, in a single versioned JSON document. Snapshots are portable across
// storage directories and across filesystem implementations.
package serialization

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cartonstore/carton/internal/store"
)

// SnapshotVersion is the current snapshot document version.
const SnapshotVersion = 1

// Snapshot is the top-level export document.
type Snapshot struct {
	Version    int            `json:"version"`
	ExportedAt string         `json:"exportedAt"`
	Buckets    []BucketRecord `json:"buckets"`
}

// BucketRecord holds one bucket and its objects in key order.
type BucketRecord struct {
	Name      string         `json:"name"`
	CreatedAt string         `json:"createdAt"`
	Objects   []ObjectRecord `json:"objects"`
}

// ObjectRecord holds one object's metadata and body. Body is base64-encoded
// by the JSON codec.
type ObjectRecord struct {
	Key                string             `json:"key"`
	MD5                string             `json:"md5"`
	ContentType        string             `json:"contentType"`
	ContentEncoding    string             `json:"contentEncoding,omitempty"`
	ContentDisposition string             `json:"contentDisposition,omitempty"`
	CustomMetadata     []store.MetaHeader `json:"customMetaData,omitempty"`
	LastModified       string             `json:"lastModified"`
	Body               []byte             `json:"body"`
}

// ExportOptions configures what to export.
type ExportOptions struct {
	// Buckets restricts the export to the named buckets. Empty means all.
	Buckets []string
}

// ImportOptions configures how to import.
type ImportOptions struct {
	// Replace overwrites objects that already exist at the same key.
	// When false, existing objects are skipped and counted.
	Replace bool
}

// ImportResult reports what an import did.
type ImportResult struct {
	Buckets  int
	Objects  int
	Skipped  int
	Warnings []string
}

// Export writes a snapshot of the store to w.
func Export(s *store.Store, opts *ExportOptions, w io.Writer) error {
	if opts == nil {
		opts = &ExportOptions{}
	}

	buckets, err := selectBuckets(s, opts.Buckets)
	if err != nil {
		return err
	}

	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Buckets:    make([]BucketRecord, 0, len(buckets)),
	}

	for _, b := range buckets {
		rec := BucketRecord{
			Name:      b.Name,
			CreatedAt: b.CreationDate.UTC().Format(time.RFC3339),
			Objects:   []ObjectRecord{},
		}

		marker := ""
		for {
			page, err := s.ListObjects(b.Name, store.ListOptions{Marker: marker})
			if err != nil {
				return fmt.Errorf("listing bucket %q: %w", b.Name, err)
			}
			for _, obj := range page.Objects {
				or, err := exportObject(s, b.Name, obj)
				if err != nil {
					return err
				}
				rec.Objects = append(rec.Objects, or)
			}
			if !page.IsTruncated || len(page.Objects) == 0 {
				break
			}
			marker = page.Objects[len(page.Objects)-1].Key
		}

		snap.Buckets = append(snap.Buckets, rec)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func exportObject(s *store.Store, bucket string, obj store.Object) (ObjectRecord, error) {
	_, body, err := s.GetObject(bucket, obj.Key, nil)
	if err != nil {
		return ObjectRecord{}, fmt.Errorf("reading %s/%s: %w", bucket, obj.Key, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return ObjectRecord{}, fmt.Errorf("reading %s/%s: %w", bucket, obj.Key, err)
	}

	return ObjectRecord{
		Key:                obj.Key,
		MD5:                obj.MD5,
		ContentType:        obj.ContentType,
		ContentEncoding:    obj.ContentEncoding,
		ContentDisposition: obj.ContentDisposition,
		CustomMetadata:     obj.CustomMetadata,
		LastModified:       obj.ModifiedDate.UTC().Format(time.RFC3339),
		Body:               data,
	}, nil
}

func selectBuckets(s *store.Store, names []string) ([]store.Bucket, error) {
	all, err := s.GetBuckets()
	if err != nil {
		return nil, fmt.Errorf("listing buckets: %w", err)
	}
	if len(names) == 0 {
		return all, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out []store.Bucket
	for _, b := range all {
		if wanted[b.Name] {
			out = append(out, b)
			delete(wanted, b.Name)
		}
	}
	for n := range wanted {
		return nil, fmt.Errorf("bucket %q not found", n)
	}
	return out, nil
}

// Import reads a snapshot from r and loads it into the store. Buckets are
// created if missing. Object MD5s are verified after write; a mismatch is
// reported as a warning, not an error.
func Import(s *store.Store, opts *ImportOptions, r io.Reader) (*ImportResult, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}

	var snap Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d (expected %d)", snap.Version, SnapshotVersion)
	}

	result := &ImportResult{}

	for _, b := range snap.Buckets {
		_, err := s.GetBucket(b.Name)
		switch {
		case errors.Is(err, store.ErrBucketNotFound):
			if err := s.PutBucket(b.Name); err != nil {
				return nil, err
			}
			result.Buckets++
		case err != nil:
			return nil, err
		}

		for _, obj := range b.Objects {
			if !opts.Replace {
				exists, err := s.GetObjectExists(b.Name, obj.Key)
				if err != nil {
					return nil, err
				}
				if exists {
					result.Skipped++
					continue
				}
			}

			meta := store.Meta{
				ContentType:        obj.ContentType,
				ContentEncoding:    obj.ContentEncoding,
				ContentDisposition: obj.ContentDisposition,
				CustomMetadata:     obj.CustomMetadata,
			}
			written, err := s.PutObject(b.Name, obj.Key, bytes.NewReader(obj.Body), meta)
			if err != nil {
				return nil, fmt.Errorf("writing %s/%s: %w", b.Name, obj.Key, err)
			}
			if obj.MD5 != "" && written.MD5 != obj.MD5 {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("%s/%s: digest %s does not match snapshot %s", b.Name, obj.Key, written.MD5, obj.MD5))
			}
			result.Objects++
		}
	}

	return result, nil
}
