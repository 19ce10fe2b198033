package parser

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/traintracker-data/internal/common/logger"
	"github.com/traintracker-data/pkg/gtfs-static/models"
)

type Parser struct {
	logger logger.Logger
	nested string
}

type Option func(*Parser)

// WithNestedArchive selects an inner zip (e.g. "2/google_transit.zip") for
// bundles that ship one GTFS archive per mode.
func WithNestedArchive(name string) Option {
	return func(p *Parser) {
		p.nested = name
	}
}

func New(logger logger.Logger, opts ...Option) *Parser {
	p := &Parser{logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseCallbacks receive rows in dependency order: agencies, stops, routes,
// trips, then stop times. A nil callback skips that file.
type ParseCallbacks struct {
	OnAgency       func(agency *models.Agency) error
	OnStop         func(stop *models.Stop) error
	OnRoute        func(route *models.Route) error
	OnTrip         func(trip *models.Trip) error
	OnStopTime     func(stopTime *models.StopTime) error
	OnFileComplete func(fileName string, records int) error
}

func (p *Parser) ParseZip(ctx context.Context, zipPath string, callbacks ParseCallbacks) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("opening zip file: %w", err)
	}
	defer reader.Close()

	p.logger.Info("Parsing GTFS zip file", "path", zipPath, "files", len(reader.File))

	if p.nested != "" {
		for _, file := range reader.File {
			if file.Name == p.nested {
				p.logger.Info("Parsing nested GTFS archive", "file", file.Name)
				return p.parseNested(ctx, file, callbacks)
			}
		}
		return fmt.Errorf("nested archive %q not found in %s", p.nested, zipPath)
	}

	return p.ParseReader(ctx, &reader.Reader, callbacks)
}

func (p *Parser) parseNested(ctx context.Context, zipFile *zip.File, callbacks ParseCallbacks) error {
	rc, err := zipFile.Open()
	if err != nil {
		return fmt.Errorf("opening nested zip: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("reading nested zip: %w", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("creating zip reader: %w", err)
	}

	return p.ParseReader(ctx, reader, callbacks)
}

// ParseReader walks an already opened GTFS archive.
func (p *Parser) ParseReader(ctx context.Context, reader *zip.Reader, callbacks ParseCallbacks) error {
	fileMap := make(map[string]*zip.File)
	for _, file := range reader.File {
		fileMap[file.Name] = file
	}

	steps := []struct {
		name  string
		parse func(io.Reader) (int, error)
	}{
		{"agency.txt", func(r io.Reader) (int, error) { return each(ctx, r, callbacks.OnAgency) }},
		{"stops.txt", func(r io.Reader) (int, error) { return each(ctx, r, callbacks.OnStop) }},
		{"routes.txt", func(r io.Reader) (int, error) { return each(ctx, r, callbacks.OnRoute) }},
		{"trips.txt", func(r io.Reader) (int, error) { return each(ctx, r, callbacks.OnTrip) }},
		{"stop_times.txt", func(r io.Reader) (int, error) { return each(ctx, r, callbacks.OnStopTime) }},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		file, ok := fileMap[step.name]
		if !ok {
			p.logger.Debug("File not found in archive", "file", step.name)
			continue
		}

		count, err := p.parseFile(file, step.parse)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", step.name, err)
		}
		p.logger.Info("File parsed", "name", step.name, "records", count)

		if callbacks.OnFileComplete != nil {
			if err := callbacks.OnFileComplete(step.name, count); err != nil {
				return fmt.Errorf("file complete callback: %w", err)
			}
		}
	}

	p.logger.Info("GTFS parsing completed successfully")
	return nil
}

func (p *Parser) parseFile(file *zip.File, parse func(io.Reader) (int, error)) (int, error) {
	p.logger.Debug("Parsing file", "name", file.Name, "size", file.UncompressedSize64)

	rc, err := file.Open()
	if err != nil {
		return 0, fmt.Errorf("opening file: %w", err)
	}
	defer rc.Close()

	return parse(skipBOM(rc))
}

// each decodes r one row at a time into T and hands each row to fn,
// stopping as soon as ctx is done.
func each[T any](ctx context.Context, r io.Reader, fn func(*T) error) (int, error) {
	if fn == nil {
		return 0, nil
	}

	um, err := gocsv.NewUnmarshaller(newCSVReader(r), new(T))
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading header: %w", err)
	}

	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		row, err := um.Read()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("decoding record %d: %w", count+1, err)
		}
		if err := fn(row.(*T)); err != nil {
			return count, err
		}
		count++
	}
}

func newCSVReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true
	return reader
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(3); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(3)
	}
	return br
}
