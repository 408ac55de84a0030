package checkpoint

import (
	"archive/zip"
	"encoding/gob"
	"io"
	"os"
	"time"

	"github.com/digsplat/dig/log"
	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type zipWriter struct {
	logger   log.Logger
	filename string
}

// Write a checkpoint to a zip file.
func Write(c *Checkpoint, filename string) error {
	w := &zipWriter{
		logger:   log.New("checkpoint writer"),
		filename: filename,
	}
	return w.Write(c)
}

// Write checkpoint to zip file.
func (w *zipWriter) Write(c *Checkpoint) error {
	w.logger.Noticef(`writing checkpoint to "%s"`, w.filename)
	start := time.Now()

	f, err := os.Create(w.filename)
	if err != nil {
		return errors.Wrap(err, "checkpoint: could not create file")
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})

	cfg, err := yaml.Marshal(c.Config)
	if err != nil {
		return errors.Wrap(err, "checkpoint: could not serialize config")
	}
	if err = writeEntry(zw, configFile, func(ew io.Writer) error {
		_, err := ew.Write(cfg)
		return err
	}); err != nil {
		return err
	}

	for _, entry := range []struct {
		name string
		data interface{}
	}{
		{metaFile, meta{Step: c.Step}},
		{gaussiansFile, c.Gaussians},
		{projectionFile, c.Projection},
	} {
		data := entry.data
		if err = writeEntry(zw, entry.name, func(ew io.Writer) error {
			return gob.NewEncoder(ew).Encode(data)
		}); err != nil {
			return err
		}
	}

	if err = zw.Close(); err != nil {
		return errors.Wrap(err, "checkpoint: could not finalize archive")
	}

	w.logger.Noticef("wrote checkpoint in %d ms", time.Since(start).Nanoseconds()/1000000)
	return nil
}

func writeEntry(zw *zip.Writer, name string, fn func(io.Writer) error) error {
	ew, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return errors.Wrapf(err, "checkpoint: could not create %s", name)
	}
	if err = fn(ew); err != nil {
		return errors.Wrapf(err, "checkpoint: could not write %s", name)
	}
	return nil
}
