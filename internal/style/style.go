// Package style holds the static symbology table for composed layers.
// Rendering itself happens in the host map application; the pipeline only
// carries these properties through to the export manifest.
package style

// Symbol describes default symbology for one layer, keyed by style key.
// Neutral palette suited to an architectural base map.
type Symbol struct {
	Kind         string `json:"kind"` // fill, line or marker
	Color        string `json:"color,omitempty"`
	OutlineColor string `json:"outline_color,omitempty"`
	OutlineWidth string `json:"outline_width,omitempty"`
	Width        string `json:"width,omitempty"`
	Size         string `json:"size,omitempty"`
	Dash         string `json:"dash,omitempty"`
	NoOutline    bool   `json:"no_outline,omitempty"`
}

var symbols = map[string]Symbol{
	// Commune boundary: thin black outline, no fill.
	"commune_boundary": {Kind: "fill", Color: "0,0,0,0", OutlineColor: "#000000", OutlineWidth: "0.5"},
	// Cadastral parcels: very thin dark grey outline, no fill.
	"parcels": {Kind: "fill", Color: "0,0,0,0", OutlineColor: "#666666", OutlineWidth: "0.2"},
	// Water surfaces: light blue, no outline.
	"water_surface": {Kind: "fill", Color: "#aad3df", NoOutline: true},
	// Rivers: medium blue line.
	"rivers": {Kind: "line", Color: "#6baed6", Width: "0.8"},
	// Vegetation: very pale green, no outline.
	"vegetation": {Kind: "fill", Color: "#c8e6c4", NoOutline: true},
	// Roads: white line over the light background.
	"roads": {Kind: "line", Color: "#ffffff", Width: "0.5"},
	// Railways: dashed grey line.
	"railways": {Kind: "line", Color: "#666666", Width: "0.7", Dash: "5;3"},
	// Buildings: medium grey, no outline.
	"buildings": {Kind: "fill", Color: "#c0c0c0", NoOutline: true},
	// SIRENE points: small dark circle.
	"sirene": {Kind: "marker", Color: "#333333", Size: "1.5", NoOutline: true},
}

// For returns the symbol for a style key.
func For(key string) (Symbol, bool) {
	s, ok := symbols[key]
	return s, ok
}
