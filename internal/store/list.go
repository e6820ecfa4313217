package store

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"path"
	"sort"
	"strings"

	"github.com/cartonstore/carton/internal/fs"
)

// DefaultMaxKeys is the S3 default page size for bucket listings.
const DefaultMaxKeys = 1000

// ListOptions carries the S3 list-objects query parameters.
type ListOptions struct {
	Prefix    string
	Marker    string
	Delimiter string
	MaxKeys   int
}

// ListResult holds one page of a bucket listing. Objects and CommonPrefixes
// together count against MaxKeys.
type ListResult struct {
	Objects        []Object
	CommonPrefixes []string
	IsTruncated    bool
}

// ListObjects walks the bucket tree in lexicographic key order and applies
// the S3 list semantics: entries at or before the marker are skipped, entries
// outside the prefix are skipped, and when a delimiter is set, keys
// containing the delimiter at or after the prefix are rolled up into
// deduplicated common prefixes. Accumulation stops at MaxKeys entries plus
// prefixes; IsTruncated reports whether more remained.
func (s *Store) ListObjects(bucket string, opts ListOptions) (*ListResult, error) {
	if _, err := s.GetBucket(bucket); err != nil {
		return nil, err
	}
	if opts.MaxKeys <= 0 {
		opts.MaxKeys = DefaultMaxKeys
	}

	keys, err := s.collectKeys(s.bucketPath(bucket), "")
	if err != nil {
		return nil, err
	}
	// Directory traversal order is not raw-byte key order ("a.txt" sorts
	// before "a/b" even though the walk visits a/ first), so sort the full
	// key set before paging.
	sort.Strings(keys)

	result := &ListResult{}
	seenPrefixes := make(map[string]bool)
	count := 0

	for _, key := range keys {
		if opts.Marker != "" && key <= opts.Marker {
			continue
		}
		if !strings.HasPrefix(key, opts.Prefix) {
			continue
		}

		if opts.Delimiter != "" {
			rest := key[len(opts.Prefix):]
			if idx := strings.Index(rest, opts.Delimiter); idx >= 0 {
				cp := key[:len(opts.Prefix)+idx+len(opts.Delimiter)]
				if seenPrefixes[cp] {
					continue
				}
				if count == opts.MaxKeys {
					result.IsTruncated = true
					break
				}
				seenPrefixes[cp] = true
				result.CommonPrefixes = append(result.CommonPrefixes, cp)
				count++
				continue
			}
		}

		if count == opts.MaxKeys {
			result.IsTruncated = true
			break
		}

		obj, err := s.loadObject(bucket, key)
		if err != nil {
			// A body whose sidecar has not landed yet is an in-flight
			// upload; it is not listable.
			if errors.Is(err, ErrObjectNotFound) {
				continue
			}
			return nil, err
		}
		result.Objects = append(result.Objects, *obj)
		count++
	}

	return result, nil
}

// collectKeys recursively gathers object keys under dir. rel is the key
// prefix accumulated so far ("" at the bucket root). Sidecars and in-flight
// temp files are not keys.
func (s *Store) collectKeys(dir, rel string) ([]string, error) {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading directory %q: %w", dir, err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if fs.IsTempName(name) {
			continue
		}

		if entry.IsDir() {
			sub, err := s.collectKeys(path.Join(dir, name), rel+name+"/")
			if err != nil {
				return nil, err
			}
			keys = append(keys, sub...)
			continue
		}

		if strings.HasSuffix(name, metadataSuffix) {
			continue
		}
		keys = append(keys, rel+name)
	}
	return keys, nil
}
