package storage

import "testing"

const testFingerprint = "3f2a9c0d41b7e6aa"

func TestBuildSnapshotPath(t *testing.T) {
	key, err := BuildSnapshotPath("indexes", "text-embedding-3-small", testFingerprint)
	if err != nil {
		t.Fatalf("BuildSnapshotPath() error = %v", err)
	}
	want := "indexes/text-embedding-3-small/3f2a9c0d41b7e6aa.parquet"
	if key != want {
		t.Fatalf("BuildSnapshotPath() = %q, want %q", key, want)
	}
}

func TestBuildSnapshotPathSanitizesModel(t *testing.T) {
	key, err := BuildSnapshotPath("/team/indexes/", "org/embed:v2", testFingerprint)
	if err != nil {
		t.Fatalf("BuildSnapshotPath() error = %v", err)
	}
	want := "team/indexes/org_embed_v2/3f2a9c0d41b7e6aa.parquet"
	if key != want {
		t.Fatalf("BuildSnapshotPath() = %q, want %q", key, want)
	}
}

func TestBuildSnapshotPathWithoutPrefix(t *testing.T) {
	key, err := BuildSnapshotPath("", "hash-512", testFingerprint)
	if err != nil {
		t.Fatalf("BuildSnapshotPath() error = %v", err)
	}
	if key != "hash-512/3f2a9c0d41b7e6aa.parquet" {
		t.Fatalf("BuildSnapshotPath() = %q", key)
	}
}

func TestBuildSnapshotPathRejectsInvalidComponents(t *testing.T) {
	if _, err := BuildSnapshotPath("indexes", "", testFingerprint); err == nil {
		t.Fatal("expected error for empty model")
	}
	if _, err := BuildSnapshotPath("indexes", "model", "../../etc"); err == nil {
		t.Fatal("expected error for invalid fingerprint")
	}
	if _, err := BuildSnapshotPath("../oops", "model", testFingerprint); err == nil {
		t.Fatal("expected error for traversal in prefix")
	}
}

func TestSnapshotDir(t *testing.T) {
	dir, err := SnapshotDir("/indexes/", "org/embed:v2")
	if err != nil {
		t.Fatalf("SnapshotDir() error = %v", err)
	}
	if dir != "indexes/org_embed_v2/" {
		t.Fatalf("SnapshotDir() = %q", dir)
	}
	if dir, _ := SnapshotDir("", "hash-512"); dir != "hash-512/" {
		t.Fatalf("SnapshotDir() without prefix = %q", dir)
	}
}

func TestFingerprintFromKey(t *testing.T) {
	fingerprint, ok := FingerprintFromKey("indexes/hash-512/" + testFingerprint + ".parquet")
	if !ok || fingerprint != testFingerprint {
		t.Fatalf("FingerprintFromKey() = %q, %v", fingerprint, ok)
	}
	for _, key := range []string{"indexes/hash-512/readme.txt", "indexes/hash-512/NOTHEX.parquet"} {
		if _, ok := FingerprintFromKey(key); ok {
			t.Fatalf("FingerprintFromKey(%q) accepted a non-snapshot key", key)
		}
	}
}
