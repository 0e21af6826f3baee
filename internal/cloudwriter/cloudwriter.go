// Package cloudwriter uploads allocation exports to object storage. The parquet
// output writes one object per topic and run (<folder>/<topic>/run_id=<id>/
// data.parquet) through a CloudWriter; S3 is the only provider.
package cloudwriter

// CloudWriter buffers one object. The object becomes visible on Close.
type CloudWriter interface {
	Write(data []byte) (int, error)
	Close() error
}

// CloudWriterFactory opens a writer per exported object. bucket must be set.
type CloudWriterFactory interface {
	NewWriter(bucket, objectPath string) (CloudWriter, error)
}

var (
	_ CloudWriterFactory = (*S3WriterFactory)(nil)
	_ CloudWriter        = (*S3Writer)(nil)
)
