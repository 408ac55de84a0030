package checkpoint

import (
	"archive/zip"
	"bytes"
	"encoding/gob"
	"io"
	"io/ioutil"
	"time"

	"github.com/digsplat/dig/asset"
	"github.com/digsplat/dig/log"
	"github.com/digsplat/dig/model"
	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

var ErrIncomplete = errors.New("checkpoint: archive is missing entries")

type zipReader struct {
	logger log.Logger
}

// Read a checkpoint from a local file or URL.
func Load(path string) (*Checkpoint, error) {
	res, err := asset.Open(path)
	if err != nil {
		return nil, err
	}
	defer res.Close()
	return Read(res)
}

// Read a checkpoint from a resource.
func Read(res *asset.Resource) (*Checkpoint, error) {
	r := &zipReader{logger: log.New("checkpoint reader")}
	return r.Read(res)
}

// Read checkpoint from zip file.
func (r *zipReader) Read(res *asset.Resource) (*Checkpoint, error) {
	r.logger.Noticef(`loading checkpoint from "%s"`, res.Path())
	start := time.Now()

	// zip package requires a reader implementing ReaderAt. To work around
	// this requirement we read the entire zip file into memory.
	data, err := res.Bytes()
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint: could not open archive")
	}
	zr.RegisterDecompressor(zip.Deflate, func(in io.Reader) io.ReadCloser {
		return flate.NewReader(in)
	})

	c := &Checkpoint{Config: model.DefaultConfig()}
	seen := make(map[string]bool)
	for _, f := range zr.File {
		var decode func(io.Reader) error
		switch f.Name {
		case configFile:
			decode = func(in io.Reader) error {
				raw, err := ioutil.ReadAll(in)
				if err != nil {
					return err
				}
				return yaml.Unmarshal(raw, c.Config)
			}
		case metaFile:
			decode = func(in io.Reader) error {
				var m meta
				if err := gob.NewDecoder(in).Decode(&m); err != nil {
					return err
				}
				c.Step = m.Step
				return nil
			}
		case gaussiansFile:
			decode = func(in io.Reader) error { return gob.NewDecoder(in).Decode(&c.Gaussians) }
		case projectionFile:
			decode = func(in io.Reader) error { return gob.NewDecoder(in).Decode(&c.Projection) }
		default:
			r.logger.Warningf("unknown file %s in checkpoint; skipping", f.Name)
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "checkpoint: could not open %s", f.Name)
		}
		err = decode(rc)
		rc.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "checkpoint: failed to load %s", f.Name)
		}
		seen[f.Name] = true
	}

	for _, name := range []string{configFile, metaFile, gaussiansFile, projectionFile} {
		if !seen[name] {
			return nil, errors.Wrapf(ErrIncomplete, "missing %s", name)
		}
	}

	r.logger.Noticef("loaded checkpoint in %d ms", time.Since(start).Nanoseconds()/1000000)
	return c, nil
}
