// Package manifest reads and writes line-delimited dataset manifests.
//
// A manifest holds one JSON object per line. Each object carries a "Data"
// object with a URL field pointing at the payload in the object store (the
// field name depends on the dataset kind, e.g. "ImageURL" or "TextURL") and an
// optional "FilePath" for payloads already copied to local disk, plus an
// "Annotation" holding the label payload:
//
//	{"Data": {"ImageURL": "tos://bucket/a/b.jpg", "FilePath": "a/b.jpg"}, "Annotation": {...}}
//
// Records keep the exact bytes of the line they were parsed from, so a record
// written back out is byte-identical to the source line.
package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// LocalFilename is the name of the materialized manifest inside a dataset's
// local directory.
const LocalFilename = "local_metadata.manifest"

// URL field names used by the built-in dataset kinds.
const (
	ImageURLField = "ImageURL"
	TextURLField  = "TextURL"
)

const (
	dataField       = "Data"
	annotationField = "Annotation"
	filePathField   = "FilePath"
)

// ErrMalformedManifest is returned (wrapped in a *MalformedError) for a line
// that is not valid JSON or lacks the URL or annotation fields.
var ErrMalformedManifest = errors.New("malformed manifest")

// MalformedError describes the offending manifest line. Line is 1-based.
type MalformedError struct {
	Line   int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed manifest: line %d: %s", e.Line, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformedManifest }

// Locator identifies a payload in the object store.
type Locator struct {
	Bucket string
	Key    string
}

// ParseURL splits "scheme://bucket/key..." into a Locator. The bucket is the
// first path segment and the key is everything after it.
func ParseURL(raw string) (Locator, error) {
	_, rest, ok := strings.Cut(raw, "//")
	if !ok {
		return Locator{}, fmt.Errorf("%w: url %q has no scheme separator", ErrMalformedManifest, raw)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return Locator{}, fmt.Errorf("%w: url %q must have the form scheme://bucket/key", ErrMalformedManifest, raw)
	}
	return Locator{Bucket: bucket, Key: key}, nil
}

// URL formats the locator back into scheme://bucket/key.
func (l Locator) URL(scheme string) string {
	return scheme + "://" + l.Bucket + "/" + l.Key
}

func (l Locator) String() string {
	return l.Bucket + "/" + l.Key
}

// Record is one manifest line.
type Record struct {
	Locator
	// Annotation is the label payload, passed through verbatim.
	Annotation json.RawMessage
	// FilePath is the local payload path relative to the dataset directory.
	// Empty when the payload has not been materialized.
	FilePath string
	// Index is the 0-based position of the record in its manifest.
	Index int

	urlField string
	raw      []byte
}

// Raw returns the bytes the record was parsed from, without the trailing
// newline. Records built in memory are encoded canonically.
func (r Record) Raw() ([]byte, error) {
	if r.raw != nil {
		return r.raw, nil
	}
	field := r.urlField
	if field == "" {
		field = ImageURLField
	}
	data := map[string]string{field: r.Locator.URL("tos")}
	if r.FilePath != "" {
		data[filePathField] = r.FilePath
	}
	annotation := r.Annotation
	if annotation == nil {
		annotation = json.RawMessage("null")
	}
	return json.Marshal(map[string]any{
		dataField:       data,
		annotationField: annotation,
	})
}

// WithFilePath returns a copy of r whose Data.FilePath is set to path. Other
// fields of the line are kept; key order is not.
func (r Record) WithFilePath(path string) (Record, error) {
	raw, err := r.Raw()
	if err != nil {
		return Record{}, err
	}
	var line map[string]json.RawMessage
	if err := json.Unmarshal(raw, &line); err != nil {
		return Record{}, fmt.Errorf("failed to decode record %d: %w", r.Index, err)
	}
	var data map[string]any
	if err := json.Unmarshal(line[dataField], &data); err != nil {
		return Record{}, fmt.Errorf("failed to decode record %d data: %w", r.Index, err)
	}
	data[filePathField] = path
	enc, err := json.Marshal(data)
	if err != nil {
		return Record{}, err
	}
	line[dataField] = enc
	out, err := json.Marshal(line)
	if err != nil {
		return Record{}, err
	}
	r.FilePath = path
	r.raw = out
	return r, nil
}

// NewRecord builds an in-memory record for the given URL field.
func NewRecord(urlField string, loc Locator, annotation json.RawMessage) Record {
	return Record{Locator: loc, Annotation: annotation, urlField: urlField}
}

// Parse reads the manifest at path. urlField names the key inside "Data" that
// holds the payload URL.
func Parse(path, urlField string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %s: %w", path, err)
	}
	defer f.Close()

	records, err := Read(f, urlField)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// Read parses manifest lines from r until EOF.
func Read(r io.Reader, urlField string) ([]Record, error) {
	var records []Record
	err := Each(r, urlField, func(rec Record) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Each parses r line by line and calls fn with every record in file order.
// It stops at the first malformed line or the first error returned by fn.
func Each(r io.Reader, urlField string, fn func(Record) error) error {
	return scanLines(r, func(n int, line []byte) error {
		rec, err := parseLine(line, urlField)
		if err != nil {
			return &MalformedError{Line: n + 1, Reason: err.Error()}
		}
		rec.Index = n
		return fn(rec)
	})
}

// EachFile is Each over the manifest at path.
func EachFile(path, urlField string, fn func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open manifest %s: %w", path, err)
	}
	defer f.Close()

	if err := Each(f, urlField, fn); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Count returns the number of records in the manifest at path without
// decoding them.
func Count(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open manifest %s: %w", path, err)
	}
	defer f.Close()

	count := 0
	err = scanLines(f, func(int, []byte) error {
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return count, nil
}

// scanLines calls fn for every line of r, without the line terminator. A
// missing newline after the last line is accepted.
func scanLines(r io.Reader, fn func(n int, line []byte) error) error {
	br := bufio.NewReader(r)
	for n := 0; ; n++ {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimRight(line, "\r\n")
			if err := fn(n, line); err != nil {
				return err
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read line %d: %w", n+1, err)
		}
	}
}

func parseLine(line []byte, urlField string) (Record, error) {
	var doc struct {
		Data       map[string]json.RawMessage `json:"Data"`
		Annotation json.RawMessage            `json:"Annotation"`
	}
	if err := json.Unmarshal(line, &doc); err != nil {
		return Record{}, fmt.Errorf("invalid json: %v", err)
	}
	rawURL, ok := doc.Data[urlField]
	if !ok {
		return Record{}, fmt.Errorf("missing Data.%s", urlField)
	}
	var url string
	if err := json.Unmarshal(rawURL, &url); err != nil {
		return Record{}, fmt.Errorf("Data.%s is not a string", urlField)
	}
	if doc.Annotation == nil {
		return Record{}, fmt.Errorf("missing %s", annotationField)
	}
	loc, err := ParseURL(url)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		Locator:    loc,
		Annotation: doc.Annotation,
		urlField:   urlField,
		raw:        bytes.Clone(line),
	}
	if fp, ok := doc.Data[filePathField]; ok {
		if err := json.Unmarshal(fp, &rec.FilePath); err != nil {
			return Record{}, fmt.Errorf("Data.%s is not a string", filePathField)
		}
	}
	return rec, nil
}
