package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"

	"github.com/atelier-carto/fondplan/internal/layer"
)

// writeWorkbook writes the establishment inventory as an XLSX sheet: one
// row per point feature with its identifier, name, activity and address.
func writeWorkbook(path string, l *layer.Layer) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Etablissements")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, title := range []string{"SIRET", "Nom", "Activité", "Adresse", "X", "Y"} {
		header.AddCell().Value = title
	}

	for _, f := range l.Features {
		row := sheet.AddRow()
		row.AddCell().Value = f.Attrs["siret"]
		row.AddCell().Value = f.Attrs["nom"]
		row.AddCell().Value = f.Attrs["activite"]
		row.AddCell().Value = f.Attrs["adresse"]
		if p, ok := f.Geom.(*geom.Point); ok {
			row.AddCell().SetFloat(p.X())
			row.AddCell().SetFloat(p.Y())
		} else {
			row.AddCell()
			row.AddCell()
		}
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook %s", path)
	}
	return nil
}
