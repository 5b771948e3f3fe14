package model

import (
	"math"
	"sort"
)

// WardOccupancy is the bed usage of one ward.
type WardOccupancy struct {
	Ward       string `json:"ward"`
	Occupied   int    `json:"occupied"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
}

// OccupancyReport is the per-ward breakdown plus the hospital-wide totals.
type OccupancyReport struct {
	Wards      []WardOccupancy `json:"wards"`
	Occupied   int             `json:"occupied"`
	Total      int             `json:"total"`
	Percentage int             `json:"percentage"`
}

// OccupancyPercentage returns round(occupied/total*100), or 0 when total is 0.
func OccupancyPercentage(occupied, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(occupied) / float64(total) * 100))
}

// ComputeOccupancy groups beds by ward. Every ward in wards is reported, in the
// given order, even without beds; wards only seen on beds follow in name order.
func ComputeOccupancy(beds []Bed, wards []string) OccupancyReport {
	type counts struct{ occupied, total int }
	byWard := make(map[string]*counts)
	for _, b := range beds {
		c, ok := byWard[b.Ward]
		if !ok {
			c = &counts{}
			byWard[b.Ward] = c
		}
		c.total++
		if b.Status == BedOccupied {
			c.occupied++
		}
	}

	order := make([]string, 0, len(wards)+len(byWard))
	seen := make(map[string]bool, len(wards))
	for _, w := range wards {
		if seen[w] {
			continue
		}
		seen[w] = true
		order = append(order, w)
	}
	var extra []string
	for w := range byWard {
		if !seen[w] {
			extra = append(extra, w)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	report := OccupancyReport{Wards: make([]WardOccupancy, 0, len(order))}
	for _, w := range order {
		row := WardOccupancy{Ward: w}
		if c, ok := byWard[w]; ok {
			row.Occupied = c.occupied
			row.Total = c.total
		}
		row.Percentage = OccupancyPercentage(row.Occupied, row.Total)
		report.Occupied += row.Occupied
		report.Total += row.Total
		report.Wards = append(report.Wards, row)
	}
	report.Percentage = OccupancyPercentage(report.Occupied, report.Total)
	return report
}
