package util

import (
	"fmt"
	"io"
	"time"

	"github.com/ariebrainware/hospital-dashboard/model"
	"github.com/tealeg/xlsx"
)

const (
	OccupancySheet = "Occupancy"
	BedsSheet      = "Beds"
)

var (
	occupancyHeader = []string{"Ward", "Occupied", "Total", "Percentage"}
	bedsHeader      = []string{"Bed", "Ward", "Status", "Patient", "Assigned At"}
)

func addHeader(sheet *xlsx.Sheet, titles []string) {
	row := sheet.AddRow()
	for _, title := range titles {
		row.AddCell().SetString(title)
	}
}

func addOccupancyRow(sheet *xlsx.Sheet, label string, occupied, total, percentage int) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetInt(occupied)
	row.AddCell().SetInt(total)
	row.AddCell().SetString(fmt.Sprintf("%d%%", percentage))
}

// WriteOccupancyWorkbook writes the occupancy report and the bed roster as an
// xlsx workbook. patientNames maps patient ids to display names.
func WriteOccupancyWorkbook(w io.Writer, report model.OccupancyReport, beds []model.Bed, patientNames map[string]string) error {
	file := xlsx.NewFile()

	occupancy, err := file.AddSheet(OccupancySheet)
	if err != nil {
		return fmt.Errorf("add %s sheet: %w", OccupancySheet, err)
	}
	addHeader(occupancy, occupancyHeader)
	for _, ward := range report.Wards {
		addOccupancyRow(occupancy, ward.Ward, ward.Occupied, ward.Total, ward.Percentage)
	}
	addOccupancyRow(occupancy, "Overall", report.Occupied, report.Total, report.Percentage)

	roster, err := file.AddSheet(BedsSheet)
	if err != nil {
		return fmt.Errorf("add %s sheet: %w", BedsSheet, err)
	}
	addHeader(roster, bedsHeader)
	for _, bed := range beds {
		patient := "-"
		if bed.PatientID != nil {
			patient = "Unknown patient"
			if name := patientNames[*bed.PatientID]; name != "" {
				patient = name
			}
		}
		assigned := "-"
		if bed.AssignedAt != nil {
			assigned = bed.AssignedAt.Format(time.RFC3339)
		}

		row := roster.AddRow()
		row.AddCell().SetString(bed.BedNumber)
		row.AddCell().SetString(bed.Ward)
		row.AddCell().SetString(bed.Status.Label())
		row.AddCell().SetString(patient)
		row.AddCell().SetString(assigned)
	}

	return file.Write(w)
}
