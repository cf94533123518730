// Package persist writes cube metadata and slice payloads to the durable
// object store in the background and reads them back on cache misses.
//
// Layout:
//
//	cubes/{id}/metadata.json
//	cubes/{id}/slices/{axis}_{index}.json
//	cubes/{id}/slices/{axis}_{index}.parquet
package persist

import (
	"fmt"
	"strings"
)

// RootPrefix is the prefix of every cube key.
const RootPrefix = "cubes/"

const (
	metadataName = "metadata.json"
	slicesDir    = "slices/"
)

// CubePrefix returns the prefix holding every object of a cube.
func CubePrefix(cubeID string) string {
	return RootPrefix + cubeID + "/"
}

// MetadataKey returns the key of a cube's metadata document.
func MetadataKey(cubeID string) string {
	return CubePrefix(cubeID) + metadataName
}

// SliceJSONKey returns the key of a slice's JSON document.
func SliceJSONKey(cubeID, axis string, index int) string {
	return fmt.Sprintf("%s%s%s_%d.json", CubePrefix(cubeID), slicesDir, axis, index)
}

// SliceRawKey returns the key of a slice's raw Parquet array.
func SliceRawKey(cubeID, axis string, index int) string {
	return fmt.Sprintf("%s%s%s_%d.parquet", CubePrefix(cubeID), slicesDir, axis, index)
}

// CubeIDFromMetadataKey extracts the cube id from a metadata key.
func CubeIDFromMetadataKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, RootPrefix)
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/"+metadataName)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
