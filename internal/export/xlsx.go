package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/gridscout/gridscout/internal/regions"
	"github.com/gridscout/gridscout/internal/store"
)

// WriteScoreReport writes a workbook with a run summary sheet and one row
// per region.
func WriteScoreReport(path string, run *store.Run, regs []*regions.Region) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "xlsx: add summary sheet")
	}
	addRow(summary, "Run", run.ID)
	addRow(summary, "Status", string(run.Status))
	addRow(summary, "Created", run.CreatedAt.Format("2006-01-02 15:04:05"))
	if run.Result != nil {
		addIntRow(summary, "Regions", run.Result.Regions)
		addIntRow(summary, "POIs", run.Result.POIs)
		addIntRow(summary, "Suitable cells", run.Result.SuitableCells)
		addFloatRow(summary, "Total population", run.Result.TotalPopulation)
	}

	sheet, err := f.AddSheet("Regions")
	if err != nil {
		return eris.Wrap(err, "xlsx: add regions sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"ID", "Name", "Cells", "Population", "Centroid Lon", "Centroid Lat"} {
		header.AddCell().Value = h
	}

	for _, r := range regs {
		row := sheet.AddRow()
		row.AddCell().SetInt(r.ID)
		row.AddCell().Value = r.Name
		row.AddCell().SetInt(r.Cells)
		row.AddCell().SetFloat(r.Population)
		row.AddCell().SetFloat(r.CentroidLon)
		row.AddCell().SetFloat(r.CentroidLat)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, label, value string) {
	row := sheet.AddRow()
	row.AddCell().Value = label
	row.AddCell().Value = value
}

func addIntRow(sheet *xlsx.Sheet, label string, value int) {
	row := sheet.AddRow()
	row.AddCell().Value = label
	row.AddCell().SetInt(value)
}

func addFloatRow(sheet *xlsx.Sheet, label string, value float64) {
	row := sheet.AddRow()
	row.AddCell().Value = label
	row.AddCell().SetFloat(value)
}
