package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var (
	pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
	fingerprintPattern   = regexp.MustCompile(`^[a-f0-9]{16,128}$`)
	unsafeRunes          = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// BuildSnapshotPath returns the object key of the index snapshot built with
// model for the schema identified by fingerprint:
// {prefix}/{model}/{fingerprint}.parquet.
func BuildSnapshotPath(prefix, model, fingerprint string) (string, error) {
	component := SanitizeComponent(model)
	if err := validatePathComponent(component, "model"); err != nil {
		return "", err
	}
	if !fingerprintPattern.MatchString(fingerprint) {
		return "", fmt.Errorf("invalid fingerprint: %q", fingerprint)
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix != "" {
		for _, part := range strings.Split(prefix, "/") {
			if err := validatePathComponent(part, "prefix"); err != nil {
				return "", err
			}
		}
	}
	return path.Join(prefix, component, fingerprint+".parquet"), nil
}

// SnapshotDir returns the key prefix holding every snapshot built with model.
func SnapshotDir(prefix, model string) (string, error) {
	component := SanitizeComponent(model)
	if err := validatePathComponent(component, "model"); err != nil {
		return "", err
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	return path.Join(prefix, component) + "/", nil
}

// FingerprintFromKey extracts the schema fingerprint from a snapshot key.
func FingerprintFromKey(key string) (string, bool) {
	base := path.Base(key)
	if !strings.HasSuffix(base, ".parquet") {
		return "", false
	}
	fingerprint := strings.TrimSuffix(base, ".parquet")
	return fingerprint, fingerprintPattern.MatchString(fingerprint)
}

// SanitizeComponent maps model identifiers such as "org/model:v1" to a
// single path segment.
func SanitizeComponent(value string) string {
	cleaned := unsafeRunes.ReplaceAllString(strings.TrimSpace(value), "_")
	return strings.TrimLeft(cleaned, "._-")
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
