package etl

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/BartekS5/streamkit/internal/incremental"
	"github.com/BartekS5/streamkit/internal/stream"
	"github.com/BartekS5/streamkit/pkg/compress"
	"github.com/BartekS5/streamkit/pkg/logger"
	"github.com/BartekS5/streamkit/pkg/utils"
	"github.com/tidwall/gjson"
	"github.com/tidwall/match"
)

const maxLineSize = 16 << 20

// ObjectExtractor treats a directory tree as an object store bucket. Object
// keys are slash-separated paths relative to Root and object timestamps are
// modification times truncated to whole seconds, the resolution most object
// stores report. Objects already behind the frontier of Source are skipped.
type ObjectExtractor struct {
	Root string
	// Pattern filters keys with glob syntax ("*" and "?"); empty keeps all.
	Pattern string
	// Source is the frontier key, for example "file:/data/events".
	Source string
	// Parse is "jsonl" or "csv".
	Parse string
	// Path selects the record inside each JSON line; an array yields one
	// record per element.
	Path    string
	Tracker *incremental.ObjectTracker
	Format  stream.Format
	Name    string
}

func (o *ObjectExtractor) Extract(ctx context.Context) (*stream.Stream, error) {
	objs, err := o.list()
	if err != nil {
		return nil, err
	}
	incremental.SortObjects(objs)
	logger.Infof("Listed %d objects under %s", len(objs), o.Root)
	return stream.New(o.Name, o.Format, o.records(ctx, objs)), nil
}

func (o *ObjectExtractor) list() ([]incremental.Object, error) {
	var objs []incremental.Object
	err := filepath.WalkDir(o.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(o.Root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if o.Pattern != "" && !match.Match(key, o.Pattern) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objs = append(objs, incremental.Object{
			Key:      key,
			Modified: info.ModTime().Truncate(time.Second).UTC(),
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", o.Root, err)
	}
	return objs, nil
}

// records marks an object as ingested only after its last record was handed
// off, which is when the consumer asks for the record after it.
func (o *ObjectExtractor) records(ctx context.Context, objs []incremental.Object) iter.Seq2[stream.Record, error] {
	return func(yield func(stream.Record, error) bool) {
		skipped := 0
		for _, obj := range objs {
			ok, err := o.Tracker.ShouldIngest(ctx, o.Source, obj.Modified, obj.Key)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				skipped++
				continue
			}

			stopped := false
			for rec, err := range o.readObject(obj) {
				if err != nil {
					yield(nil, err)
					return
				}
				if !yield(rec, nil) {
					stopped = true
					break
				}
			}
			if stopped {
				return
			}

			if err := o.Tracker.MarkIngested(ctx, o.Source, obj.Modified, obj.Key); err != nil {
				yield(nil, err)
				return
			}
			logger.Debugf("Ingested object %s (%d bytes)", obj.Key, obj.Size)
		}
		if skipped > 0 {
			logger.Infof("Skipped %d objects already behind the frontier of %s", skipped, o.Source)
		}
	}
}

func (o *ObjectExtractor) readObject(obj incremental.Object) iter.Seq2[stream.Record, error] {
	return func(yield func(stream.Record, error) bool) {
		f, err := os.Open(filepath.Join(o.Root, filepath.FromSlash(obj.Key)))
		if err != nil {
			yield(nil, err)
			return
		}
		defer f.Close()

		r, err := compress.NewDecompressReader(f, compress.FromExtension(obj.Key))
		if err != nil {
			yield(nil, err)
			return
		}
		defer r.Close()

		var seq iter.Seq2[stream.Record, error]
		if o.Parse == "csv" {
			seq = csvRecords(r)
		} else {
			seq = jsonLineRecords(r, o.Path)
		}
		for rec, err := range seq {
			if err != nil {
				yield(nil, fmt.Errorf("object %s: %w", obj.Key, err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func jsonLineRecords(r io.Reader, path string) iter.Seq2[stream.Record, error] {
	return func(yield func(stream.Record, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64<<10), maxLineSize)
		line := 0
		for sc.Scan() {
			line++
			raw := sc.Bytes()
			if len(raw) == 0 {
				continue
			}
			if !gjson.ValidBytes(raw) {
				yield(nil, fmt.Errorf("line %d: invalid json", line))
				return
			}
			res := gjson.ParseBytes(raw)
			if path != "" {
				res = res.Get(path)
			}

			switch {
			case res.IsArray():
				for _, item := range res.Array() {
					if !item.IsObject() {
						continue
					}
					if !yield(gjsonRecord(item), nil) {
						return
					}
				}
			case res.IsObject():
				if !yield(gjsonRecord(res), nil) {
					return
				}
			}
		}
		if err := sc.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func gjsonRecord(res gjson.Result) stream.Record {
	rec := make(stream.Record)
	res.ForEach(func(k, v gjson.Result) bool {
		rec[k.String()] = gjsonValue(v)
		return true
	})
	return rec
}

func gjsonValue(v gjson.Result) any {
	switch v.Type {
	case gjson.Null:
		return nil
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Number:
		return utils.NormalizeValue(json.Number(v.Raw))
	case gjson.String:
		return v.String()
	}
	if v.IsArray() {
		items := v.Array()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = gjsonValue(item)
		}
		return out
	}
	return map[string]any(gjsonRecord(v))
}

func csvRecords(r io.Reader) iter.Seq2[stream.Record, error] {
	return func(yield func(stream.Record, error) bool) {
		rd := csv.NewReader(r)
		header, err := rd.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			yield(nil, err)
			return
		}
		for {
			row, err := rd.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			rec := make(stream.Record, len(header))
			for i, col := range header {
				if i < len(row) {
					rec[col] = row[i]
				}
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}
