package models

import (
	"strings"
	"testing"
)

const ordersJob = `
name: orders
source:
  type: sql
  table: dbo.orders
  watermark:
    column: updated_at
    init: 0
format:
  kind: csv
  delimiter: ";"
transform:
  fields:
    - source: Order ID
      target: order_id
      type: int
    - source: total
      type: float
  required: [order_id]
sink:
  type: file
  dir: ./out
  compression: zstd
throttle: 250
`

func TestLoadJob(t *testing.T) {
	j, err := LoadJob([]byte(ordersJob))
	if err != nil {
		t.Fatalf("LoadJob: %v", err)
	}
	if j.Source.Watermark.Column != "updated_at" || j.Source.Watermark.Init != 0 {
		t.Errorf("watermark = %+v", j.Source.Watermark)
	}
	if j.Source.PageSize != 1000 {
		t.Errorf("default page size = %d", j.Source.PageSize)
	}
	if j.Transform.Fields[1].Target != "total" {
		t.Errorf("target did not default to source: %+v", j.Transform.Fields[1])
	}
	if j.Format.Delimiter != ";" || j.Sink.Compression != "zstd" || j.Throttle != 250 {
		t.Errorf("unexpected job %+v", j)
	}
}

func TestLoadJobErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no name", "source: {type: sql, table: t, orderBy: id}\nsink: {dir: out}", "name is required"},
		{"bad source", "name: x\nsource: {type: ftp}\nsink: {dir: out}", "unknown source type"},
		{"sql without order", "name: x\nsource: {type: sql, table: t}\nsink: {dir: out}", "orderBy"},
		{"objects parse", "name: x\nsource: {type: objects, root: /data, parse: xml}\nsink: {dir: out}", "cannot parse"},
		{"file sink dir", "name: x\nsource: {type: mongo, database: d, collection: c}", "needs a dir"},
		{"mongo sink", "name: x\nsource: {type: mongo, database: d, collection: c}\nsink: {type: mongo}", "mongo sink"},
		{"delimiter", "name: x\nsource: {type: mongo, database: d, collection: c}\nformat: {delimiter: ab}\nsink: {dir: out}", "single character"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadJob([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}
