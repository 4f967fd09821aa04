// Package blob provides bucket/object storage access with URI parsing.
// The canonical storage URI form is blob://<bucket>/<path>; legacy forms
// <bucket>/<path> and /<bucket>/<path> are accepted on parse.
package blob

import (
	"fmt"
	"strings"

	"github.com/ragline/ragline/internal/errors"
)

const uriScheme = "blob://"

// ParseURI splits a storage URI into bucket and object path.
func ParseURI(uri string) (bucket, objectPath string, err error) {
	s := uri
	switch {
	case strings.HasPrefix(s, uriScheme):
		s = s[len(uriScheme):]
	case strings.HasPrefix(s, "/"):
		s = s[1:]
	}

	bucket, objectPath, found := strings.Cut(s, "/")
	if !found || bucket == "" || objectPath == "" {
		return "", "", errors.Validation(errors.ErrCodeInvalidURI,
			fmt.Sprintf("invalid storage URI %q: want blob://<bucket>/<path>", uri))
	}
	return bucket, objectPath, nil
}

// FormatURI builds the canonical URI for a bucket and object path.
func FormatURI(bucket, objectPath string) string {
	return uriScheme + bucket + "/" + strings.TrimPrefix(objectPath, "/")
}

// ManagedPath builds the versioned object path for a managed document.
func ManagedPath(tenantID, kbID, docID string, version int, filename string) string {
	return fmt.Sprintf("tenant-%s/kb-%s/doc-%s/v%d/%s", tenantID, kbID, docID, version, filename)
}
