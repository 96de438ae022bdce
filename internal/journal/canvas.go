package journal

import (
	"encoding/json"
	"fmt"

	"github.com/tailscale/hujson"
)

// CanvasFileVersion is the format version written to new _canvas.json
// files.
const CanvasFileVersion = 1

// CanvasFile is the on-disk shape of an event's _canvas.json. Placements
// are keyed by item slug; the index resolves slugs to item IDs when the
// file is indexed.
type CanvasFile struct {
	Version   int               `json:"version"`
	Items     []CanvasPlacement `json:"items"`
	Viewport  *CanvasViewport   `json:"viewport,omitempty"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
}

// CanvasPlacement is one item's position on the canvas.
type CanvasPlacement struct {
	ItemSlug  string  `json:"itemSlug"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Scale     float64 `json:"scale"`
	Rotation  float64 `json:"rotation"`
	ZIndex    int     `json:"zIndex"`
	TextScale float64 `json:"textScale,omitempty"`
}

// CanvasViewport records the last pan/zoom state of the canvas view.
type CanvasViewport struct {
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
	Zoom    float64 `json:"zoom"`
}

// ParseCanvas decodes a _canvas.json document. The file is human-editable
// so comments and trailing commas are tolerated (HuJSON) before strict
// JSON decoding.
func ParseCanvas(data []byte) (CanvasFile, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return CanvasFile{}, fmt.Errorf("invalid canvas JSON: %w", err)
	}

	var cf CanvasFile
	if err := json.Unmarshal(standardized, &cf); err != nil {
		return CanvasFile{}, fmt.Errorf("decode canvas: %w", err)
	}

	return cf, nil
}

// EncodeCanvas serializes a canvas file with stable two-space
// indentation, so repeated saves of unchanged layouts produce identical
// bytes.
func EncodeCanvas(cf CanvasFile) ([]byte, error) {
	if cf.Version == 0 {
		cf.Version = CanvasFileVersion
	}

	out, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode canvas: %w", err)
	}

	return append(out, '\n'), nil
}
