package serialization

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/cartonstore/carton/internal/fs"
	"github.com/cartonstore/carton/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New("/data", fs.NewMem())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return s
}

func mustPut(t *testing.T, s *store.Store, bucket, key, body string, meta store.Meta) {
	t.Helper()
	if err := s.PutBucket(bucket); err != nil {
		t.Fatalf("PutBucket(%q): %v", bucket, err)
	}
	if _, err := s.PutObject(bucket, key, strings.NewReader(body), meta); err != nil {
		t.Fatalf("PutObject(%s/%s): %v", bucket, key, err)
	}
}

func readBody(t *testing.T, s *store.Store, bucket, key string) string {
	t.Helper()
	_, body, err := s.GetObject(bucket, key, nil)
	if err != nil {
		t.Fatalf("GetObject(%s/%s): %v", bucket, key, err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("reading %s/%s: %v", bucket, key, err)
	}
	return string(data)
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestStore(t)
	mustPut(t, src, "photos", "cat.jpg", "meow", store.Meta{
		ContentType:    "image/jpeg",
		CustomMetadata: []store.MetaHeader{{Name: "x-amz-meta-camera", Value: "nikon"}},
	})
	mustPut(t, src, "photos", "dogs/rex.jpg", "woof", store.Meta{ContentType: "image/jpeg"})
	mustPut(t, src, "docs", "readme.txt", "hello", store.Meta{ContentType: "text/plain"})

	var buf bytes.Buffer
	if err := Export(src, nil, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst := newTestStore(t)
	result, err := Import(dst, nil, &buf)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Buckets != 2 || result.Objects != 3 || result.Skipped != 0 {
		t.Errorf("result = %+v, want 2 buckets, 3 objects", result)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}

	if got := readBody(t, dst, "photos", "cat.jpg"); got != "meow" {
		t.Errorf("cat.jpg = %q", got)
	}
	if got := readBody(t, dst, "photos", "dogs/rex.jpg"); got != "woof" {
		t.Errorf("dogs/rex.jpg = %q", got)
	}

	obj, err := dst.HeadObject("photos", "cat.jpg")
	if err != nil {
		t.Fatalf("HeadObject: %v", err)
	}
	if obj.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q", obj.ContentType)
	}
	if len(obj.CustomMetadata) != 1 || obj.CustomMetadata[0].Value != "nikon" {
		t.Errorf("CustomMetadata = %+v", obj.CustomMetadata)
	}
}

func TestExportBucketSubset(t *testing.T) {
	src := newTestStore(t)
	mustPut(t, src, "keep", "a", "1", store.Meta{})
	mustPut(t, src, "drop", "b", "2", store.Meta{})

	var buf bytes.Buffer
	if err := Export(src, &ExportOptions{Buckets: []string{"keep"}}, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(buf.Bytes(), &snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if len(snap.Buckets) != 1 || snap.Buckets[0].Name != "keep" {
		t.Errorf("buckets = %+v, want only keep", snap.Buckets)
	}
}

func TestExportUnknownBucket(t *testing.T) {
	src := newTestStore(t)
	var buf bytes.Buffer
	if err := Export(src, &ExportOptions{Buckets: []string{"ghost"}}, &buf); err == nil {
		t.Fatal("Export of unknown bucket should fail")
	}
}

func TestImportSkipsExistingWithoutReplace(t *testing.T) {
	src := newTestStore(t)
	mustPut(t, src, "photos", "cat.jpg", "new bytes", store.Meta{})

	var buf bytes.Buffer
	if err := Export(src, nil, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst := newTestStore(t)
	mustPut(t, dst, "photos", "cat.jpg", "old bytes", store.Meta{})

	result, err := Import(dst, nil, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Skipped != 1 || result.Objects != 0 {
		t.Errorf("result = %+v, want 1 skipped", result)
	}
	if got := readBody(t, dst, "photos", "cat.jpg"); got != "old bytes" {
		t.Errorf("existing object overwritten: %q", got)
	}

	result, err = Import(dst, &ImportOptions{Replace: true}, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Import with replace: %v", err)
	}
	if result.Objects != 1 {
		t.Errorf("replace result = %+v, want 1 object", result)
	}
	if got := readBody(t, dst, "photos", "cat.jpg"); got != "new bytes" {
		t.Errorf("object not replaced: %q", got)
	}
}

func TestImportRejectsUnknownVersion(t *testing.T) {
	dst := newTestStore(t)
	doc := `{"version": 99, "buckets": []}`
	if _, err := Import(dst, nil, strings.NewReader(doc)); err == nil {
		t.Fatal("Import of unknown version should fail")
	}
}

func TestImportWarnsOnDigestMismatch(t *testing.T) {
	dst := newTestStore(t)
	doc := Snapshot{
		Version: SnapshotVersion,
		Buckets: []BucketRecord{{
			Name: "photos",
			Objects: []ObjectRecord{{
				Key:  "cat.jpg",
				MD5:  "0000000000000000000000000000dead",
				Body: []byte("meow"),
			}},
		}},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	result, err := Import(dst, nil, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one digest warning", result.Warnings)
	}
	if got := readBody(t, dst, "photos", "cat.jpg"); got != "meow" {
		t.Errorf("body = %q, object should still land", got)
	}
}
