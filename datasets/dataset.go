package datasets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Noofbiz/tosdata/manifest"
	"github.com/Noofbiz/tosdata/objstore"
)

// errStop ends a manifest scan early.
var errStop = errors.New("stop")

// Kind selects the manifest URL field and the default decoder.
type Kind int

const (
	KindImage Kind = iota
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindText:
		return "text"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// URLField is the "Data" key holding the payload URL for this kind.
func (k Kind) URLField() string {
	if k == KindText {
		return manifest.TextURLField
	}
	return manifest.ImageURLField
}

// DefaultDecode is the decoder used when none is supplied.
func (k Kind) DefaultDecode() DecodeFunc {
	if k == KindText {
		return DecodeText
	}
	return DecodeImage
}

func (k Kind) defaultDir() string {
	if k == KindText {
		return "TextDataset"
	}
	return "ImageDataset"
}

// ParseKind accepts "image" or "text".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "image":
		return KindImage, nil
	case "text":
		return KindText, nil
	}
	return 0, fmt.Errorf("unknown dataset kind %q", s)
}

// MaterializeRequest tells a Materializer what to download.
type MaterializeRequest struct {
	ManifestURL string
	LocalPath   string
	URLField    string
	// Limit caps the number of records; negative means no limit.
	Limit int
}

// Materializer downloads a manifest and its payloads into
// <LocalPath>/local_metadata.manifest and returns the record count.
type Materializer interface {
	Materialize(ctx context.Context, req MaterializeRequest) (int, error)
}

type Options struct {
	LocalPath    string
	ManifestURL  string
	Materializer Materializer
	Logger       *zerolog.Logger
}

// Dataset tracks where a dataset is materialized on local disk and how many
// records it holds. Created stays false until Download, Open or Split
// produced a local manifest.
type Dataset struct {
	Kind        Kind
	LocalPath   string
	ManifestURL string
	DataCount   int
	Created     bool

	materializer Materializer
	log          zerolog.Logger
}

// NewImageDataset returns an image dataset; records carry Data.ImageURL.
func NewImageDataset(opts Options) *Dataset {
	return newDataset(KindImage, opts)
}

// NewTextDataset returns a text dataset; records carry Data.TextURL.
func NewTextDataset(opts Options) *Dataset {
	return newDataset(KindText, opts)
}

func newDataset(kind Kind, opts Options) *Dataset {
	d := &Dataset{
		Kind:         kind,
		LocalPath:    opts.LocalPath,
		ManifestURL:  opts.ManifestURL,
		materializer: opts.Materializer,
		log:          zerolog.Nop(),
	}
	if d.LocalPath == "" {
		d.LocalPath = kind.defaultDir()
	}
	if opts.Logger != nil {
		d.log = *opts.Logger
	}
	return d
}

// derive returns a materialized dataset of the same kind at dir.
func (d *Dataset) derive(dir string, count int) *Dataset {
	return &Dataset{
		Kind:         d.Kind,
		LocalPath:    dir,
		ManifestURL:  d.ManifestURL,
		DataCount:    count,
		Created:      true,
		materializer: d.materializer,
		log:          d.log,
	}
}

// ManifestPath is the local manifest of the dataset.
func (d *Dataset) ManifestPath() string {
	return filepath.Join(d.LocalPath, manifest.LocalFilename)
}

// Download materializes the dataset below localPath (the current LocalPath
// when empty), keeping at most limit records when limit >= 0.
func (d *Dataset) Download(ctx context.Context, localPath string, limit int) error {
	if d.materializer == nil {
		return ErrNoMaterializer
	}
	if localPath != "" {
		d.LocalPath = localPath
	}
	if err := os.MkdirAll(d.LocalPath, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", d.LocalPath, err)
	}

	count, err := d.materializer.Materialize(ctx, MaterializeRequest{
		ManifestURL: d.ManifestURL,
		LocalPath:   d.LocalPath,
		URLField:    d.Kind.URLField(),
		Limit:       limit,
	})
	if err != nil {
		return fmt.Errorf("download %s dataset to %s: %w", d.Kind, d.LocalPath, err)
	}
	d.DataCount = count
	d.Created = true
	d.log.Info().Str("path", d.LocalPath).Int("records", count).Msg("dataset downloaded")
	return nil
}

// Open adopts a directory that already holds a materialized manifest.
func (d *Dataset) Open(localPath string) error {
	if localPath != "" {
		d.LocalPath = localPath
	}
	count, err := manifest.Count(d.ManifestPath())
	if err != nil {
		return err
	}
	d.DataCount = count
	d.Created = true
	return nil
}

// Records parses the local manifest.
func (d *Dataset) Records() ([]manifest.Record, error) {
	if !d.Created {
		return nil, ErrNotMaterialized
	}
	return manifest.Parse(d.ManifestPath(), d.Kind.URLField())
}

// BuildRemote parses the local manifest and returns a RemoteDataset over its
// records. The kind's default decoder applies unless opts override it.
func (d *Dataset) BuildRemote(factory objstore.Factory, opts ...RemoteOption) (*RemoteDataset, error) {
	records, err := d.Records()
	if err != nil {
		return nil, err
	}
	all := append([]RemoteOption{WithDecode(d.Kind.DefaultDecode()), WithLogger(d.log)}, opts...)
	return FromRecords(records, factory, all...)
}

// LoadLocal decodes the locally materialized payloads of records
// [offset, offset+limit) with the kind's default decoder. A negative limit
// reads to the end.
func (d *Dataset) LoadLocal(offset, limit int) ([]Sample, []json.RawMessage, error) {
	if !d.Created {
		return nil, nil, ErrNotMaterialized
	}
	decode := d.Kind.DefaultDecode()
	var (
		samples     []Sample
		annotations []json.RawMessage
	)
	err := manifest.EachFile(d.ManifestPath(), d.Kind.URLField(), func(rec manifest.Record) error {
		if rec.Index < offset {
			return nil
		}
		if limit >= 0 && rec.Index >= offset+limit {
			return errStop
		}
		if rec.FilePath == "" {
			return fmt.Errorf("record %d has no local file", rec.Index)
		}
		raw, err := os.ReadFile(localPath(d.LocalPath, rec.FilePath))
		if err != nil {
			return err
		}
		sample, err := decode(raw)
		if err != nil {
			return fmt.Errorf("record %d: %w", rec.Index, err)
		}
		samples = append(samples, sample)
		annotations = append(annotations, rec.Annotation)
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, nil, err
	}
	return samples, annotations, nil
}
