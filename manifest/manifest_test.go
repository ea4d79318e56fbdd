package manifest

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// writeManifest writes lines to path, one per line.
func writeManifest(t *testing.T, path string, lines []string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("failed to write manifest %s: %v", path, err)
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    Locator
		wantErr bool
	}{
		{raw: "tos://my-bucket/path/to/img.jpg", want: Locator{Bucket: "my-bucket", Key: "path/to/img.jpg"}},
		{raw: "s3://b/k", want: Locator{Bucket: "b", Key: "k"}},
		{raw: "tos://b/dir/", want: Locator{Bucket: "b", Key: "dir/"}},
		{raw: "no-scheme/bucket/key", wantErr: true},
		{raw: "tos://bucket-only", wantErr: true},
		{raw: "tos:///key", wantErr: true},
		{raw: "tos://bucket/", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseURL(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedManifest) {
					t.Fatalf("expected ErrMalformedManifest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURL(%q) failed: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseURL(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParse_PreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), LocalFilename)
	writeManifest(t, path, []string{
		`{"Data":{"ImageURL":"tos://b1/a.jpg","FilePath":"b1/a.jpg"},"Annotation":{"Result":[{"Data":[{"Label":1}]}]}}`,
		`{"Data":{"ImageURL":"tos://b2/x/y.png"},"Annotation":null}`,
		`{"Annotation":"cat","Data":{"ImageURL":"tos://b1/c.jpg"}}`,
	})

	got, err := Parse(path, ImageURLField)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []Record{
		{Locator: Locator{"b1", "a.jpg"}, Annotation: json.RawMessage(`{"Result":[{"Data":[{"Label":1}]}]}`), FilePath: "b1/a.jpg", Index: 0},
		{Locator: Locator{"b2", "x/y.png"}, Annotation: json.RawMessage(`null`), Index: 1},
		{Locator: Locator{"b1", "c.jpg"}, Annotation: json.RawMessage(`"cat"`), Index: 2},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreUnexported(Record{})); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}

	n, err := Count(path)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("Count = %d, want 3", n)
	}
}

func TestParse_TextURLField(t *testing.T) {
	path := filepath.Join(t.TempDir(), LocalFilename)
	writeManifest(t, path, []string{`{"Data":{"TextURL":"tos://texts/doc.txt"},"Annotation":{}}`})

	got, err := Parse(path, TextURLField)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(got) != 1 || got[0].Bucket != "texts" || got[0].Key != "doc.txt" {
		t.Fatalf("unexpected records: %+v", got)
	}

	if _, err := Parse(path, ImageURLField); !errors.Is(err, ErrMalformedManifest) {
		t.Fatalf("expected ErrMalformedManifest for wrong url field, got %v", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := map[string]string{
		"not json":           `{"Data":`,
		"missing url":        `{"Data":{},"Annotation":1}`,
		"missing data":       `{"Annotation":1}`,
		"missing annotation": `{"Data":{"ImageURL":"tos://b/k"}}`,
		"url not string":     `{"Data":{"ImageURL":3},"Annotation":1}`,
		"bad url":            `{"Data":{"ImageURL":"tos://b"},"Annotation":1}`,
		"blank line":         ``,
	}
	for name, bad := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), LocalFilename)
			writeManifest(t, path, []string{
				`{"Data":{"ImageURL":"tos://b/ok.jpg"},"Annotation":1}`,
				bad,
			})
			_, err := Parse(path, ImageURLField)
			if !errors.Is(err, ErrMalformedManifest) {
				t.Fatalf("expected ErrMalformedManifest, got %v", err)
			}
			var merr *MalformedError
			if !errors.As(err, &merr) {
				t.Fatalf("expected *MalformedError, got %T", err)
			}
			if merr.Line != 2 {
				t.Fatalf("expected line 2, got %d", merr.Line)
			}
		})
	}
}

func TestParse_NoTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), LocalFilename)
	content := `{"Data":{"ImageURL":"tos://b/1"},"Annotation":1}` + "\n" + `{"Data":{"ImageURL":"tos://b/2"},"Annotation":2}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Parse(path, ImageURLField)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(got) != 2 || got[1].Key != "2" {
		t.Fatalf("unexpected records: %+v", got)
	}
}
