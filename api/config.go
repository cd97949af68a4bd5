// Package api provides the HTTP API over the recall service: search,
// timeline browsing, recording control, reprocessing and frame assets.
package api

import "github.com/papercomputeco/recall/pkg/screen"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8082")
	ListenAddr string

	// PageSize is used when a request carries no page_size.
	PageSize int

	// Assets serves frame files under /v1/assets. Optional.
	Assets *screen.AssetStore

	// Captured reports the number of entries the capture loop committed
	// in this process. Optional.
	Captured func() int64
}
