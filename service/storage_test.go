package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	outdir, err := os.MkdirTemp("", "output")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(outdir)

	storage, err := NewStorage(ctx, filepath.Join(outdir, "results"), "", S3Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := storage.(*LocalStorage); !ok {
		t.Fatalf("expected a LocalStorage, got %T", storage)
	}

	file := filepath.Join(storage.LocalDir(), "esa-worldcover-data.tif")
	if err := os.WriteFile(file, []byte("test"), 0644); err != nil {
		t.Fatal(err)
	}
	uri, err := storage.Save(ctx, file)
	if err != nil {
		t.Fatal(err)
	}
	if uri != file {
		t.Errorf("expected %s, got %s", file, uri)
	}

	store := filepath.Join(storage.LocalDir(), "gridmet-data.zarr")
	os.MkdirAll(filepath.Join(store, "air_temperature"), 0755)
	os.WriteFile(filepath.Join(store, ".zmetadata"), []byte("{}"), 0644)
	os.WriteFile(filepath.Join(store, "air_temperature", "0.0.0"), []byte("test"), 0644)
	uri, err = storage.Save(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if uri != store+".zip" {
		t.Errorf("expected %s.zip, got %s", store, uri)
	}
	if _, err := os.Stat(uri); err != nil {
		t.Error(err)
	}
	if _, err := os.Stat(store); !os.IsNotExist(err) {
		t.Errorf("the zarr directory must be removed once zipped")
	}
}

func TestParseURI(t *testing.T) {
	for _, tc := range []struct{ uri, protocol, bucket, prefix string }{
		{"gs://bucket/some/prefix/", "gs", "bucket", "some/prefix"},
		{"s3://bucket", "s3", "bucket", ""},
		{"/tmp/output", "", "", "/tmp/output"},
	} {
		protocol, bucket, prefix := parseURI(tc.uri)
		if protocol != tc.protocol || bucket != tc.bucket || prefix != tc.prefix {
			t.Errorf("parseURI(%s) = %s, %s, %s", tc.uri, protocol, bucket, prefix)
		}
	}
	if GetExt("a/b/gridmet.zarr") != ExtensionZarr || GetExt("a/b/archive") != NoExtension {
		t.Fail()
	}
}
