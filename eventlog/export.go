package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const exportBatch = 1_000

type parquetEvent struct {
	Seq        int64  `parquet:"name=seq, type=INT64"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Height     int64  `parquet:"name=height, type=INT64"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt  string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes every archived event at or above fromHeight to w as a
// snappy-compressed Parquet file in emission order. Attributes are encoded as
// a JSON object. It returns the number of rows written.
func (s *Store) ExportParquet(ctx context.Context, w io.Writer, fromHeight uint64) (int, error) {
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(w), new(parquetEvent), 1)
	if err != nil {
		return 0, fmt.Errorf("eventlog: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	var lastSeq uint64
	for {
		var batch []Record
		err := s.db.WithContext(ctx).
			Where("height >= ? AND seq > ?", fromHeight, lastSeq).
			Order("seq ASC").
			Limit(exportBatch).
			Find(&batch).Error
		if err != nil {
			_ = pw.WriteStop()
			return written, fmt.Errorf("eventlog: query: %w", err)
		}
		for _, record := range batch {
			attrs, err := json.Marshal(record.Attributes)
			if err != nil {
				_ = pw.WriteStop()
				return written, fmt.Errorf("eventlog: encode attributes: %w", err)
			}
			row := &parquetEvent{
				Seq:        int64(record.Seq),
				Type:       record.Type,
				Height:     int64(record.Height),
				Attributes: string(attrs),
				CreatedAt:  record.CreatedAt.UTC().Format(time.RFC3339Nano),
			}
			if err := pw.Write(row); err != nil {
				_ = pw.WriteStop()
				return written, fmt.Errorf("eventlog: parquet write: %w", err)
			}
			written++
			lastSeq = record.Seq
		}
		if len(batch) < exportBatch {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		return written, fmt.Errorf("eventlog: parquet flush: %w", err)
	}
	return written, nil
}
