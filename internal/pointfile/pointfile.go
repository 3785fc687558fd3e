// Package pointfile reads and writes the point files that the hprtree command indexes.
//
// Two formats are understood: CSV, with x, y and an optional label per row, and
// GeoJSON feature collections whose features have Point geometries.
package pointfile

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmharper/hprtree-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Format identifies the encoding of a point file
type Format string

const (
	CSV     Format = "csv"
	GeoJSON Format = "geojson"
)

// ParseFormat accepts a format name, or an empty string to pick the format
// from the extension of path.
func ParseFormat(name, path string) (Format, error) {
	if name == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".geojson":
			return GeoJSON, nil
		default:
			return CSV, nil
		}
	}
	switch f := Format(strings.ToLower(name)); f {
	case CSV, GeoJSON:
		return f, nil
	}
	return "", fmtErr("unknown format %q", name)
}

// Record is a single point read from a file.
// It implements hprtree.Coords, so records can be inserted into a Builder directly.
type Record struct {
	Point hprtree.Point
	Label string

	// Feature is the source feature, for records read from GeoJSON
	Feature *geojson.Feature
}

func (r *Record) X() float32 { return r.Point.X() }
func (r *Record) Y() float32 { return r.Point.Y() }

// Read decodes all records from r
func Read(r io.Reader, format Format) ([]*Record, error) {
	switch format {
	case CSV:
		return ReadCSV(r)
	case GeoJSON:
		return ReadGeoJSON(r)
	}
	return nil, fmtErr("unknown format %q", format)
}

// ReadCSV reads rows of x,y[,label]. A first row whose x column is not a number is
// taken to be a header and skipped. Rows without a label are labelled with their row number.
func ReadCSV(r io.Reader) ([]*Record, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	records := []*Record{}
	for row := 0; ; row++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, wrapErr("failed to read csv", err)
		}
		if len(fields) < 2 {
			return nil, fmtErr("row %d: expected at least 2 columns, got %d", row+1, len(fields))
		}
		x, errX := strconv.ParseFloat(fields[0], 32)
		if errX != nil && row == 0 {
			continue
		}
		y, errY := strconv.ParseFloat(fields[1], 32)
		if errX != nil || errY != nil {
			return nil, fmtErr("row %d: invalid coordinate (%q, %q)", row+1, fields[0], fields[1])
		}
		label := strconv.Itoa(row)
		if len(fields) > 2 {
			label = fields[2]
		}
		records = append(records, &Record{
			Point: hprtree.Point{float32(x), float32(y)},
			Label: label,
		})
	}
	return records, nil
}

// ReadGeoJSON reads a FeatureCollection. Every feature must have a Point geometry.
// The label of a feature is its "name" property, else its id, else its position in the collection.
func ReadGeoJSON(r io.Reader) ([]*Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, wrapErr("failed to read geojson", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, wrapErr("failed to decode geojson", err)
	}

	records := make([]*Record, 0, len(fc.Features))
	for i, f := range fc.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			if f.Geometry == nil {
				return nil, fmtErr("feature %d: missing geometry", i)
			}
			return nil, fmtErr("feature %d: unsupported geometry %s", i, f.Geometry.GeoJSONType())
		}
		label := f.Properties.MustString("name", "")
		if label == "" && f.ID != nil {
			label = fmt.Sprint(f.ID)
		}
		if label == "" {
			label = strconv.Itoa(i)
		}
		records = append(records, &Record{
			Point:   FromOrb(p),
			Label:   label,
			Feature: f,
		})
	}
	return records, nil
}

// Write encodes records to w in the given format
func Write(w io.Writer, format Format, records []*Record) error {
	switch format {
	case CSV:
		return WriteCSV(w, records)
	case GeoJSON:
		return WriteGeoJSON(w, records)
	}
	return fmtErr("unknown format %q", format)
}

// WriteCSV writes one x,y,label row per record
func WriteCSV(w io.Writer, records []*Record) error {
	cw := csv.NewWriter(w)
	for _, r := range records {
		row := []string{
			strconv.FormatFloat(float64(r.Point.X()), 'g', -1, 32),
			strconv.FormatFloat(float64(r.Point.Y()), 'g', -1, 32),
			r.Label,
		}
		if err := cw.Write(row); err != nil {
			return wrapErr("failed to write csv", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return wrapErr("failed to write csv", err)
	}
	return nil
}

// WriteGeoJSON writes the records as a FeatureCollection. Records read from
// GeoJSON keep their original feature, others become a Point feature with a "name" property.
func WriteGeoJSON(w io.Writer, records []*Record) error {
	fc := geojson.NewFeatureCollection()
	for _, r := range records {
		f := r.Feature
		if f == nil {
			f = geojson.NewFeature(ToOrb(r.Point))
			f.Properties["name"] = r.Label
		}
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return wrapErr("failed to encode geojson", err)
	}
	if _, err = w.Write(append(data, '\n')); err != nil {
		return wrapErr("failed to write geojson", err)
	}
	return nil
}

// FromOrb converts an orb point to single precision
func FromOrb(p orb.Point) hprtree.Point {
	return hprtree.Point{float32(p.X()), float32(p.Y())}
}

func ToOrb(p hprtree.Point) orb.Point {
	return orb.Point{float64(p.X()), float64(p.Y())}
}

// BoundToBBox converts an orb bound to an hprtree query box
func BoundToBBox(b orb.Bound) hprtree.BBox {
	return hprtree.BBox{
		MinX: float32(b.Min.X()),
		MinY: float32(b.Min.Y()),
		MaxX: float32(b.Max.X()),
		MaxY: float32(b.Max.Y()),
	}
}

// ParseBBox parses "minx,miny,maxx,maxy"
func ParseBBox(s string) (hprtree.BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return hprtree.BBox{}, fmtErr("bbox %q: expected minx,miny,maxx,maxy", s)
	}
	var v [4]float32
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return hprtree.BBox{}, wrapErr("bbox %q", err, s)
		}
		v[i] = float32(f)
	}
	b := hprtree.BBox{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}
	if b.MinX > b.MaxX || b.MinY > b.MaxY {
		return hprtree.BBox{}, fmtErr("bbox %q: min is greater than max", s)
	}
	return b, nil
}

// Extent returns the orb bound around all records, or an empty bound if there are none
func Extent(records []*Record) orb.Bound {
	if len(records) == 0 {
		return orb.Bound{}
	}
	b := ToOrb(records[0].Point).Bound()
	for _, r := range records[1:] {
		b = b.Extend(ToOrb(r.Point))
	}
	return b
}

var errEmpty = textErr("no points")

// Index builds an index over records
func Index(records []*Record) (*hprtree.Tree[*Record], error) {
	if len(records) == 0 {
		return nil, errEmpty
	}
	b := hprtree.NewBuilder[*Record](len(records))
	for _, r := range records {
		b.Insert(r)
	}
	return b.Build(), nil
}
