// Package artifact names artifact directories and plans their retention.
// This is part of the Functional Core - all functions are pure with no I/O.
package artifact

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Constants
// =============================================================================

// TemplateObjectName is the object name of the compiled template inside an
// artifact directory.
const TemplateObjectName = "compiled-cloudformation-template.json"

// timestampLayout keeps nanoseconds so runs started in the same millisecond
// still get distinct directories.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// maxBucketNameLength is the S3 bucket name limit.
const maxBucketNameLength = 63

// =============================================================================
// Artifact Directory Naming
// =============================================================================

// Directory is a parsed artifact directory name.
type Directory struct {
	// Prefix is the full storage prefix without a trailing slash.
	Prefix string
	// CreatedAt is the instant encoded in the name.
	CreatedAt time.Time
}

// GenerateArtifactDirectoryName derives the storage prefix for one run.
// Pattern: {deploymentID}/{unixMillis}-{RFC3339 UTC with nanoseconds}
//
// The result depends only on its arguments; callers must capture the instant
// once per run and reuse the returned name.
//
// Example:
//
//	GenerateArtifactDirectoryName("stackdeploy/api/dev", t)
//	// "stackdeploy/api/dev/1700000000123-2023-11-14T22:13:20.123000000Z"
func GenerateArtifactDirectoryName(deploymentID string, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s/%d-%s", strings.TrimSuffix(deploymentID, "/"), now.UnixMilli(), now.Format(timestampLayout))
}

// ParseArtifactDirectory parses a prefix produced by
// GenerateArtifactDirectoryName for deploymentID. A trailing slash is
// accepted. Returns false for anything else.
func ParseArtifactDirectory(deploymentID, prefix string) (Directory, bool) {
	prefix = strings.TrimSuffix(prefix, "/")
	parent := strings.TrimSuffix(deploymentID, "/") + "/"
	name, ok := strings.CutPrefix(prefix, parent)
	if !ok || strings.Contains(name, "/") {
		return Directory{}, false
	}

	millisPart, stamp, ok := strings.Cut(name, "-")
	if !ok {
		return Directory{}, false
	}
	millis, err := strconv.ParseInt(millisPart, 10, 64)
	if err != nil {
		return Directory{}, false
	}
	created, err := time.Parse(timestampLayout, stamp)
	if err != nil {
		return Directory{}, false
	}
	if created.UnixMilli() != millis {
		return Directory{}, false
	}
	return Directory{Prefix: prefix, CreatedAt: created}, true
}

// ObjectKey returns the storage key of a named object in a directory.
// Pattern: {directory}/{name}
func ObjectKey(directory, name string) string {
	return strings.TrimSuffix(directory, "/") + "/" + strings.TrimPrefix(name, "/")
}

// ObjectURL returns the virtual-hosted URL of an object, the form the stack
// service accepts as a template URL.
// Pattern: https://{bucket}.s3.{region}.amazonaws.com/{key}
func ObjectURL(bucket, region, key string) string {
	if region == "" || region == "us-east-1" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
}

// =============================================================================
// Bucket Naming
// =============================================================================

var bucketInvalidChars = regexp.MustCompile(`[^a-z0-9-]+`)

// BucketName derives the deployment bucket name for a service/stage in an
// account and region.
// Pattern: stackdeploy-{service}-{stage}-{account}-{region}, lowercased,
// invalid characters replaced with hyphens, cut to 63 characters.
//
// Example:
//
//	BucketName("api", "dev", "123456789012", "us-east-1")
//	// "stackdeploy-api-dev-123456789012-us-east-1"
func BucketName(service, stage, account, region string) string {
	name := strings.ToLower(strings.Join([]string{"stackdeploy", service, stage, account, region}, "-"))
	name = bucketInvalidChars.ReplaceAllString(name, "-")
	if len(name) > maxBucketNameLength {
		name = name[:maxBucketNameLength]
	}
	return strings.Trim(name, "-")
}
