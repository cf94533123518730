// Package parquet encodes slice amplitude arrays as Parquet, one row per
// slice row, for the raw-array form kept in the durable store.
//
// The package provides:
//   - EncodeSlice/DecodeSlice for in-memory slice arrays
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
package parquet
