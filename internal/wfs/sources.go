// Package wfs fetches bbox-filtered feature layers from the IGN
// Géoplateforme WFS and clips them to a commune boundary.
package wfs

// SourceSpec declares one remote feature type. StyleKey is opaque here; it
// keys the composition order and the export style table.
type SourceSpec struct {
	TypeName    string
	DisplayName string
	StyleKey    string
}

// Sources returns the declared feature sources, in fetch order.
func Sources() []SourceSpec {
	return []SourceSpec{
		{"ADMINEXPRESS-COG-CARTO.LATEST:commune", "Commune (limite)", "commune_boundary"},
		{"CADASTRALPARCELS.PARCELLAIRE_EXPRESS:parcelle", "Parcelles cadastrales", "parcels"},
		{"BDTOPO_V3:cours_d_eau", "Hydrographie - cours d'eau", "rivers"},
		{"BDTOPO_V3:surface_hydrographique", "Hydrographie - surface", "water_surface"},
		{"BDTOPO_V3:troncon_de_route", "Voirie", "roads"},
		{"BDTOPO_V3:voie_ferree", "Voie ferrée", "railways"},
		{"BDTOPO_V3:batiment", "Bâti", "buildings"},
		{"BDTOPO_V3:zone_de_vegetation", "Végétation", "vegetation"},
	}
}
