// Package xmlutil provides the S3-shaped XML response envelopes and helpers
// for rendering them. Envelope construction is pure; only the Render helpers
// touch the ResponseWriter.
package xmlutil

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	s3err "github.com/cartonstore/carton/internal/errors"
	"github.com/cartonstore/carton/internal/store"
)

// xmlHeader is the standard XML declaration prepended to all responses.
const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// ErrorResponse is the XML structure for S3 error responses.
// Note: Error XML has NO xmlns namespace (unlike success responses).
type ErrorResponse struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource,omitempty"`
	RequestID string   `xml:"RequestId"`
}

// Owner represents an S3 bucket or object owner.
type Owner struct {
	ID          string `xml:"ID"`
	DisplayName string `xml:"DisplayName"`
}

// Bucket represents a single bucket in a ListBuckets response.
type Bucket struct {
	Name         string `xml:"Name"`
	CreationDate string `xml:"CreationDate"`
}

// ListAllMyBucketsResult is the XML structure for ListBuckets responses.
type ListAllMyBucketsResult struct {
	XMLName xml.Name `xml:"http://s3.amazonaws.com/doc/2006-03-01/ ListAllMyBucketsResult"`
	Owner   Owner    `xml:"Owner"`
	Buckets []Bucket `xml:"Buckets>Bucket"`
}

// Object represents a single object in a list objects response.
type Object struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

// CommonPrefix represents a rolled-up key group in a list objects response.
type CommonPrefix struct {
	Prefix string `xml:"Prefix"`
}

// ListBucketResult is the XML structure for ListObjects responses.
type ListBucketResult struct {
	XMLName        xml.Name       `xml:"http://s3.amazonaws.com/doc/2006-03-01/ ListBucketResult"`
	Name           string         `xml:"Name"`
	Prefix         string         `xml:"Prefix"`
	Marker         string         `xml:"Marker"`
	MaxKeys        int            `xml:"MaxKeys"`
	Delimiter      string         `xml:"Delimiter,omitempty"`
	IsTruncated    bool           `xml:"IsTruncated"`
	Contents       []Object       `xml:"Contents"`
	CommonPrefixes []CommonPrefix `xml:"CommonPrefixes"`
}

// CopyObjectResult is the XML structure for CopyObject responses.
type CopyObjectResult struct {
	XMLName      xml.Name `xml:"http://s3.amazonaws.com/doc/2006-03-01/ CopyObjectResult"`
	LastModified string   `xml:"LastModified"`
	ETag         string   `xml:"ETag"`
}

// DeleteRequest is the XML structure for the batch delete request body.
type DeleteRequest struct {
	XMLName xml.Name           `xml:"Delete"`
	Quiet   bool               `xml:"Quiet"`
	Objects []DeleteRequestObj `xml:"Object"`
}

// DeleteRequestObj represents a single object to delete in a batch delete.
type DeleteRequestObj struct {
	Key string `xml:"Key"`
}

// DeleteResult is the XML response for a fully successful batch delete.
type DeleteResult struct {
	XMLName xml.Name      `xml:"http://s3.amazonaws.com/doc/2006-03-01/ DeleteResult"`
	Deleted []DeletedItem `xml:"Deleted"`
}

// DeletedItem represents a successfully deleted object.
type DeletedItem struct {
	Key string `xml:"Key"`
}

// AccessControlPolicy is the XML structure for the canned ACL response.
type AccessControlPolicy struct {
	XMLName           xml.Name `xml:"http://s3.amazonaws.com/doc/2006-03-01/ AccessControlPolicy"`
	Owner             Owner    `xml:"Owner"`
	AccessControlList ACL      `xml:"AccessControlList"`
}

// ACL holds the list of grants in an access control policy.
type ACL struct {
	Grants []Grant `xml:"Grant"`
}

// Grant represents a single ACL grant.
type Grant struct {
	Grantee    Grantee `xml:"Grantee"`
	Permission string  `xml:"Permission"`
}

// Grantee represents the entity receiving an ACL grant. It uses a custom
// MarshalXML to produce the xmlns:xsi and xsi:type attributes that S3
// clients expect.
type Grantee struct {
	XMLName     xml.Name `xml:"Grantee"`
	Type        string   `xml:"-"` // Rendered via custom MarshalXML
	ID          string   `xml:"ID,omitempty"`
	DisplayName string   `xml:"DisplayName,omitempty"`
}

// MarshalXML customizes XML marshaling for Grantee to include the xmlns:xsi
// and xsi:type attributes.
func (g Grantee) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "Grantee"}
	start.Attr = []xml.Attr{
		{Name: xml.Name{Local: "xmlns:xsi"}, Value: "http://www.w3.org/2001/XMLSchema-instance"},
		{Name: xml.Name{Local: "xsi:type"}, Value: g.Type},
	}

	// Alias type to avoid infinite recursion.
	type granteeContent struct {
		ID          string `xml:"ID,omitempty"`
		DisplayName string `xml:"DisplayName,omitempty"`
	}

	return e.EncodeElement(granteeContent{ID: g.ID, DisplayName: g.DisplayName}, start)
}

// BuildBuckets constructs a ListAllMyBucketsResult from store buckets.
func BuildBuckets(owner string, buckets []store.Bucket) *ListAllMyBucketsResult {
	result := &ListAllMyBucketsResult{
		Owner: Owner{ID: owner, DisplayName: owner},
	}
	for _, b := range buckets {
		result.Buckets = append(result.Buckets, Bucket{
			Name:         b.Name,
			CreationDate: FormatTimeS3(b.CreationDate),
		})
	}
	return result
}

// BuildBucketQuery constructs a ListBucketResult from the listing options and
// the store's result page.
func BuildBucketQuery(bucket string, opts store.ListOptions, page *store.ListResult) *ListBucketResult {
	result := &ListBucketResult{
		Name:        bucket,
		Prefix:      opts.Prefix,
		Marker:      opts.Marker,
		MaxKeys:     opts.MaxKeys,
		Delimiter:   opts.Delimiter,
		IsTruncated: page.IsTruncated,
	}
	for _, obj := range page.Objects {
		result.Contents = append(result.Contents, Object{
			Key:          obj.Key,
			LastModified: FormatTimeS3(obj.ModifiedDate),
			ETag:         `"` + obj.MD5 + `"`,
			Size:         obj.Size,
			StorageClass: "STANDARD",
		})
	}
	for _, cp := range page.CommonPrefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, CommonPrefix{Prefix: cp})
	}
	return result
}

// BuildCopyObject constructs a CopyObjectResult from the destination object.
func BuildCopyObject(md5 string, modified time.Time) *CopyObjectResult {
	return &CopyObjectResult{
		LastModified: FormatTimeS3(modified),
		ETag:         `"` + md5 + `"`,
	}
}

// BuildObjectsDeleted constructs the DeleteResult for a fully successful
// batch delete, one Deleted entry per key in request order.
func BuildObjectsDeleted(keys []string) *DeleteResult {
	result := &DeleteResult{}
	for _, key := range keys {
		result.Deleted = append(result.Deleted, DeletedItem{Key: key})
	}
	return result
}

// BuildAcl constructs the canned AccessControlPolicy returned for every ACL
// request: the configured owner holds FULL_CONTROL and nothing else.
func BuildAcl(owner string) *AccessControlPolicy {
	return &AccessControlPolicy{
		Owner: Owner{ID: owner, DisplayName: owner},
		AccessControlList: ACL{
			Grants: []Grant{
				{
					Grantee: Grantee{
						Type:        "CanonicalUser",
						ID:          owner,
						DisplayName: owner,
					},
					Permission: "FULL_CONTROL",
				},
			},
		},
	}
}

// RenderError writes an S3 error XML response to the given ResponseWriter,
// using the request path as the Resource.
func RenderError(w http.ResponseWriter, r *http.Request, s3Err *s3err.S3Error) {
	resp := ErrorResponse{
		Code:      s3Err.Code,
		Message:   s3Err.Message,
		Resource:  r.URL.Path,
		RequestID: w.Header().Get("x-amz-request-id"),
	}
	WriteXML(w, s3Err.HTTPStatus, resp)
}

// RenderKeyError is RenderError with the Resource naming a specific object
// key instead of the request path. Batch delete uses it to report which key
// was missing.
func RenderKeyError(w http.ResponseWriter, r *http.Request, s3Err *s3err.S3Error, key string) {
	resp := ErrorResponse{
		Code:      s3Err.Code,
		Message:   s3Err.Message,
		Resource:  key,
		RequestID: w.Header().Get("x-amz-request-id"),
	}
	WriteXML(w, s3Err.HTTPStatus, resp)
}

// WriteXML marshals v as XML and writes it to w with the given HTTP status code.
func WriteXML(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)

	io.WriteString(w, xmlHeader)
	enc := xml.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(w, "<!-- XML encoding error: %v -->", err)
	}
}

// FormatTimeS3 formats a time.Time as an S3-compatible ISO 8601 string
// with millisecond precision (e.g., "2006-01-02T15:04:05.000Z").
func FormatTimeS3(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// FormatTimeHTTP formats a time.Time as an HTTP date per RFC 7231
// (e.g., "Mon, 02 Jan 2006 15:04:05 GMT").
func FormatTimeHTTP(t time.Time) string {
	return t.UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
}
