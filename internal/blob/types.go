// Package blob re-exports the blob storage contract and opens the configured
// backend. Packages outside the blob tree depend on this package, never on
// the infra implementations.
package blob

import (
	"microerp/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverNone disables blob storage.
	DriverNone = core.DriverNone
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrExists is returned when writing to an existing key.
	ErrExists = core.ErrExists
	// ErrNotFound is returned when a key is missing.
	ErrNotFound = core.ErrNotFound
)
