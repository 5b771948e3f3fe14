package model

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// DefaultDoctors is the staff roster created by `seed`.
var DefaultDoctors = []Doctor{
	{FullName: "Dr. Sarah Wilson", Specialty: "Cardiology", Status: DoctorBusy},
	{FullName: "Dr. Michael Chen", Specialty: "Neurology", Status: DoctorAvailable},
	{FullName: "Dr. Emily Johnson", Specialty: "Pediatrics", Status: DoctorAvailable},
	{FullName: "Dr. Robert Martinez", Specialty: "Orthopedics", Status: DoctorBusy},
	{FullName: "Dr. Lisa Williams", Specialty: "Dermatology", Status: DoctorOffDuty},
}

// SeedDoctors inserts DefaultDoctors that are not present yet, matched by full
// name, and returns how many were inserted.
func SeedDoctors(db *gorm.DB) (int, error) {
	created := 0
	for _, doctor := range DefaultDoctors {
		var existing Doctor
		err := db.Where("full_name = ?", doctor.FullName).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return created, err
		}
		if err := db.Create(&doctor).Error; err != nil {
			return created, fmt.Errorf("failed to seed doctor %s: %w", doctor.FullName, err)
		}
		created++
	}
	return created, nil
}

// SeedBeds creates perWard available beds in every ward, numbered "<PREFIX>-<n>",
// and returns how many were created. Existing bed numbers are left untouched.
// Wards whose labels derive the same prefix get a numeric suffix ("GW", "GW2").
func SeedBeds(db *gorm.DB, wards []string, perWard int) (int, error) {
	created := 0
	claimed := map[string]string{}
	for _, ward := range wards {
		prefix, err := wardPrefix(db, ward, claimed)
		if err != nil {
			return created, err
		}
		claimed[prefix] = ward
		for i := 1; i <= perWard; i++ {
			bed := Bed{
				BedNumber: fmt.Sprintf("%s-%d", prefix, i),
				Ward:      ward,
				Status:    BedAvailable,
			}
			var existing Bed
			err := db.Where("bed_number = ?", bed.BedNumber).First(&existing).Error
			if err == nil {
				continue
			}
			if err != gorm.ErrRecordNotFound {
				return created, err
			}
			if err := db.Create(&bed).Error; err != nil {
				return created, fmt.Errorf("failed to seed bed %s: %w", bed.BedNumber, err)
			}
			created++
		}
	}
	return created, nil
}

// wardPrefix picks the first prefix candidate not held by another ward,
// either earlier in this run or by beds already stored.
func wardPrefix(db *gorm.DB, ward string, claimed map[string]string) (string, error) {
	base := BedNumberPrefix(ward)
	for n := 1; ; n++ {
		candidate := base
		if n > 1 {
			candidate = fmt.Sprintf("%s%d", base, n)
		}
		if owner, ok := claimed[candidate]; ok && owner != ward {
			continue
		}
		var foreign int64
		err := db.Model(&Bed{}).
			Where("bed_number LIKE ? AND ward <> ?", candidate+"-%", ward).
			Count(&foreign).Error
		if err != nil {
			return "", err
		}
		if foreign == 0 {
			return candidate, nil
		}
	}
}

// BedNumberPrefix derives a short bed number prefix from a ward label:
// "ICU" stays "ICU", "General Ward" becomes "GW", "Maternity" becomes "MAT".
func BedNumberPrefix(ward string) string {
	words := strings.FieldsFunc(ward, func(r rune) bool { return r == ' ' || r == '-' })
	switch len(words) {
	case 0:
		return "BED"
	case 1:
		w := words[0]
		if len(w) <= 3 || strings.ToUpper(w) == w {
			return strings.ToUpper(w)
		}
		return strings.ToUpper(w[:3])
	}
	var b strings.Builder
	for _, w := range words {
		b.WriteString(strings.ToUpper(w[:1]))
	}
	return b.String()
}
