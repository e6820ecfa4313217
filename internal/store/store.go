// Package store implements Carton's file-backed object store: a bucket/key
// namespace on top of the filesystem adapter, with object bodies stored as
// plain files and metadata in JSON sidecars.
//
// The on-disk layout under the root directory is:
//
//	<root>/<bucket>/                    — bucket directory
//	<root>/<bucket>/<key>               — object body
//	<root>/<bucket>/<key>.metadata.json — object metadata sidecar
//
// Keys containing "/" create nested directories. The sidecar carries
// everything the body file cannot: content type, optional content headers,
// the original key, the MD5 digest, and user metadata. Size and modification
// time always derive from the body file itself, so they can never disagree
// with the stored bytes.
package store

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/cartonstore/carton/internal/fs"
)

// metadataSuffix is appended to the body path to form the sidecar path.
const metadataSuffix = ".metadata.json"

// Sentinel errors translated into S3 error envelopes by the handler layer.
var (
	ErrBucketNotFound = errors.New("bucket not found")
	ErrBucketExists   = errors.New("bucket already exists")
	ErrBucketNotEmpty = errors.New("bucket not empty")
	ErrObjectNotFound = errors.New("object not found")
)

// Bucket is a read-only view of a bucket directory.
type Bucket struct {
	Name         string
	CreationDate time.Time
}

// MetaHeader is a single preserved x-amz-meta-* header. Order is preserved
// from upload to response.
type MetaHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Meta holds the caller-supplied metadata persisted with an object.
type Meta struct {
	ContentType        string
	ContentEncoding    string
	ContentDisposition string
	CustomMetadata     []MetaHeader
}

// Object describes a stored object. MD5 is the lowercase hex digest of the
// body bytes and doubles as the ETag value. When a ranged read was applied,
// Range holds the effective (clamped) window.
type Object struct {
	Key                string
	Size               int64
	MD5                string
	ModifiedDate       time.Time
	ContentType        string
	ContentEncoding    string
	ContentDisposition string
	CustomMetadata     []MetaHeader
	Range              *fs.ByteRange
}

// sidecar is the JSON document stored next to each object body.
type sidecar struct {
	Key                string       `json:"key"`
	MD5                string       `json:"md5"`
	ContentType        string       `json:"contentType"`
	ContentEncoding    string       `json:"contentEncoding,omitempty"`
	ContentDisposition string       `json:"contentDisposition,omitempty"`
	CustomMetadata     []MetaHeader `json:"customMetaData,omitempty"`
}

// Store is the file-backed object store. All methods are safe for concurrent
// use; same-key write/read consistency relies on the filesystem adapter's
// atomic rename, with the sidecar written last as the linearization point.
type Store struct {
	root string
	fs   fs.FileSystem
}

// New creates a Store rooted at the given directory, creating it if needed.
// Passing a nil filesystem selects the operating-system implementation.
func New(root string, filesystem fs.FileSystem) (*Store, error) {
	if filesystem == nil {
		filesystem = fs.NewOS()
	}
	if err := filesystem.Mkdir(root); err != nil {
		return nil, fmt.Errorf("creating storage root %q: %w", root, err)
	}
	return &Store{root: root, fs: filesystem}, nil
}

func (s *Store) bucketPath(bucket string) string {
	return path.Join(s.root, bucket)
}

func (s *Store) objectPath(bucket, key string) string {
	return path.Join(s.bucketPath(bucket), key)
}

// GetBucket returns the named bucket, or ErrBucketNotFound. The creation date
// is the bucket directory's modification time.
func (s *Store) GetBucket(name string) (*Bucket, error) {
	info, err := s.fs.Stat(s.bucketPath(name))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, ErrBucketNotFound
		}
		return nil, fmt.Errorf("stat bucket %q: %w", name, err)
	}
	if !info.IsDir() {
		return nil, ErrBucketNotFound
	}
	return &Bucket{Name: name, CreationDate: info.ModTime()}, nil
}

// GetBuckets lists all buckets in name order.
func (s *Store) GetBuckets() ([]Bucket, error) {
	entries, err := s.fs.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading storage root: %w", err)
	}

	var buckets []Bucket
	for _, entry := range entries {
		// Bucket names never start with a dot; skip temp debris and the like.
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		buckets = append(buckets, Bucket{Name: entry.Name(), CreationDate: info.ModTime()})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Name < buckets[j].Name })
	return buckets, nil
}

// PutBucket creates the bucket directory. Existence is the caller's
// precondition to check.
func (s *Store) PutBucket(name string) error {
	if err := s.fs.Mkdir(s.bucketPath(name)); err != nil {
		return fmt.Errorf("creating bucket %q: %w", name, err)
	}
	return nil
}

// DeleteBucket removes the bucket directory. Returns ErrBucketNotFound if it
// does not exist and ErrBucketNotEmpty if it still holds objects; any other
// removal failure is passed through wrapped.
func (s *Store) DeleteBucket(name string) error {
	if _, err := s.GetBucket(name); err != nil {
		return err
	}
	if err := s.fs.Rmdir(s.bucketPath(name)); err != nil {
		if errors.Is(err, fs.ErrNotEmpty) {
			return ErrBucketNotEmpty
		}
		return fmt.Errorf("removing bucket %q: %w", name, err)
	}
	return nil
}

// HeadObject loads an object's metadata without opening the body.
func (s *Store) HeadObject(bucket, key string) (*Object, error) {
	return s.loadObject(bucket, key)
}

// GetObjectExists reports whether the object body exists (stat only).
func (s *Store) GetObjectExists(bucket, key string) (bool, error) {
	info, err := s.fs.Stat(s.objectPath(bucket, key))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %q/%q: %w", bucket, key, err)
	}
	return !info.IsDir(), nil
}

// GetObject loads the object's metadata and opens its body for streaming.
// When rng is non-nil it is clamped to the object size; an unsatisfiable
// range falls back to the full body and Object.Range stays nil. The returned
// stream is consumable exactly once and must be closed by the caller.
func (s *Store) GetObject(bucket, key string, rng *fs.ByteRange) (*Object, io.ReadCloser, error) {
	obj, err := s.loadObject(bucket, key)
	if err != nil {
		return nil, nil, err
	}

	effective := clampRange(rng, obj.Size)
	body, err := s.fs.OpenRead(s.objectPath(bucket, key), effective)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil, ErrObjectNotFound
		}
		return nil, nil, fmt.Errorf("opening object %q/%q: %w", bucket, key, err)
	}
	obj.Range = effective
	return obj, body, nil
}

// PutObject streams the body into the store, computing the MD5 digest and
// byte count on the way through. The body is renamed into place first; the
// sidecar is written (atomically) only after the body is durable, so a
// partial upload never yields a visible sidecar.
func (s *Store) PutObject(bucket, key string, body io.Reader, meta Meta) (*Object, error) {
	bodyPath := s.objectPath(bucket, key)

	hasher := md5.New()
	size, err := s.fs.WriteAtomic(bodyPath, io.TeeReader(body, hasher))
	if err != nil {
		return nil, fmt.Errorf("writing object body %q/%q: %w", bucket, key, err)
	}
	digest := hex.EncodeToString(hasher.Sum(nil))

	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}

	doc, err := json.Marshal(sidecar{
		Key:                key,
		MD5:                digest,
		ContentType:        meta.ContentType,
		ContentEncoding:    meta.ContentEncoding,
		ContentDisposition: meta.ContentDisposition,
		CustomMetadata:     meta.CustomMetadata,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding metadata for %q/%q: %w", bucket, key, err)
	}
	if _, err := s.fs.WriteAtomic(bodyPath+metadataSuffix, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("writing metadata for %q/%q: %w", bucket, key, err)
	}

	info, err := s.fs.Stat(bodyPath)
	if err != nil {
		return nil, fmt.Errorf("stat object %q/%q after write: %w", bucket, key, err)
	}

	return &Object{
		Key:                key,
		Size:               size,
		MD5:                digest,
		ModifiedDate:       info.ModTime(),
		ContentType:        meta.ContentType,
		ContentEncoding:    meta.ContentEncoding,
		ContentDisposition: meta.ContentDisposition,
		CustomMetadata:     meta.CustomMetadata,
	}, nil
}

// CopySpec describes a copy operation between two object locations.
type CopySpec struct {
	SrcBucket string
	SrcKey    string
	DstBucket string
	DstKey    string

	// ReplaceMetadata selects NewMeta over the source sidecar's metadata.
	ReplaceMetadata bool
	NewMeta         Meta
}

// CopyObject streams the source body into a fresh PutObject at the
// destination. The MD5 and modification date are always recomputed; metadata
// comes from the source sidecar unless ReplaceMetadata is set.
func (s *Store) CopyObject(spec CopySpec) (*Object, error) {
	src, body, err := s.GetObject(spec.SrcBucket, spec.SrcKey, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	meta := Meta{
		ContentType:        src.ContentType,
		ContentEncoding:    src.ContentEncoding,
		ContentDisposition: src.ContentDisposition,
		CustomMetadata:     src.CustomMetadata,
	}
	if spec.ReplaceMetadata {
		meta = spec.NewMeta
	}

	return s.PutObject(spec.DstBucket, spec.DstKey, body, meta)
}

// DeleteObject removes the body and its sidecar, then prunes empty parent
// directories up to the bucket root. Returns ErrObjectNotFound if the body
// does not exist.
func (s *Store) DeleteObject(bucket, key string) error {
	bodyPath := s.objectPath(bucket, key)

	if err := s.fs.Remove(bodyPath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("removing object %q/%q: %w", bucket, key, err)
	}
	if err := s.fs.Remove(bodyPath + metadataSuffix); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("removing metadata for %q/%q: %w", bucket, key, err)
	}

	// Prune now-empty directories created by "/" segments in the key.
	bucketDir := s.bucketPath(bucket)
	for dir := path.Dir(bodyPath); dir != bucketDir && strings.HasPrefix(dir, bucketDir); dir = path.Dir(dir) {
		if err := s.fs.Rmdir(dir); err != nil {
			break
		}
	}
	return nil
}

// loadObject reads the sidecar and stats the body.
func (s *Store) loadObject(bucket, key string) (*Object, error) {
	bodyPath := s.objectPath(bucket, key)

	raw, err := s.fs.OpenRead(bodyPath+metadataSuffix, nil)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("opening metadata for %q/%q: %w", bucket, key, err)
	}
	defer raw.Close()

	var doc sidecar
	if err := json.NewDecoder(raw).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding metadata for %q/%q: %w", bucket, key, err)
	}

	info, err := s.fs.Stat(bodyPath)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat object %q/%q: %w", bucket, key, err)
	}

	return &Object{
		Key:                key,
		Size:               info.Size(),
		MD5:                doc.MD5,
		ModifiedDate:       info.ModTime(),
		ContentType:        doc.ContentType,
		ContentEncoding:    doc.ContentEncoding,
		ContentDisposition: doc.ContentDisposition,
		CustomMetadata:     doc.CustomMetadata,
	}, nil
}

// clampRange fits a requested range inside [0, size). Returns nil when the
// request is unsatisfiable, which callers treat as "serve the full body".
func clampRange(rng *fs.ByteRange, size int64) *fs.ByteRange {
	if rng == nil || size == 0 {
		return nil
	}
	start, end := rng.Start, rng.End
	if end < 0 || end > size-1 {
		end = size - 1
	}
	if start < 0 || start > end || start >= size {
		return nil
	}
	return &fs.ByteRange{Start: start, End: end}
}
