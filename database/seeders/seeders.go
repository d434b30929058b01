package seeders

import (
	"log"
	"time"

	"schoolhub_go/database"
	"schoolhub_go/models"
	"schoolhub_go/utils"
)

// SeedAll runs all seeders
func SeedAll() {
	log.Println("Starting database seeding...")

	SeedSchools()
	SeedUsers()
	SeedAcademicYears()
	SeedClasses()
	SeedFeeHeads()
	SeedFeeStructures()

	log.Println("Database seeding completed successfully!")
}

// SeedSchools seeds the schools table
func SeedSchools() {
	var count int64
	database.DB.Model(&models.School{}).Count(&count)
	if count > 0 {
		log.Println("Schools already seeded, skipping...")
		return
	}

	schools := []models.School{
		{
			BaseModel: models.BaseModel{ID: 1},
			Name:      "Greenfield Public School",
			Code:      "GPS",
			Address:   "14 Lake Road, Pune",
			Phone:     "020-2551234",
			Active:    true,
		},
	}

	for _, school := range schools {
		if err := database.DB.Create(&school).Error; err != nil {
			log.Printf("Error seeding school %s: %v", school.Code, err)
		}
	}

	log.Println("Schools seeded successfully")
}

// SeedUsers seeds the users table with one account per role
func SeedUsers() {
	var count int64
	database.DB.Model(&models.User{}).Count(&count)
	if count > 0 {
		log.Println("Users already seeded, skipping...")
		return
	}

	defaultPassword, err := utils.HashPassword("changeme123")
	if err != nil {
		log.Printf("Error hashing default password: %v", err)
		return
	}

	users := []models.User{
		{Username: "admin", Password: defaultPassword, Email: "admin@greenfield.example", Role: "admin", SchoolID: 1, Status: "active"},
		{Username: "registrar", Password: defaultPassword, Email: "registrar@greenfield.example", Role: "registrar", SchoolID: 1, Status: "active"},
		{Username: "accountant", Password: defaultPassword, Email: "accounts@greenfield.example", Role: "accountant", SchoolID: 1, Status: "active"},
	}

	for _, user := range users {
		if err := database.DB.Create(&user).Error; err != nil {
			log.Printf("Error seeding user %s: %v", user.Username, err)
		}
	}

	log.Println("Users seeded successfully")
}

// SeedAcademicYears seeds two consecutive academic years
func SeedAcademicYears() {
	var count int64
	database.DB.Model(&models.AcademicYear{}).Count(&count)
	if count > 0 {
		log.Println("Academic years already seeded, skipping...")
		return
	}

	years := []models.AcademicYear{
		{
			BaseModel: models.BaseModel{ID: 1},
			SchoolID:  1,
			Name:      "2025-2026",
			StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC),
			IsCurrent: true,
		},
		{
			BaseModel: models.BaseModel{ID: 2},
			SchoolID:  1,
			Name:      "2026-2027",
			StartDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2027, 5, 31, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, year := range years {
		if err := database.DB.Create(&year).Error; err != nil {
			log.Printf("Error seeding academic year %s: %v", year.Name, err)
		}
	}

	log.Println("Academic years seeded successfully")
}

// SeedClasses seeds classes with two sections each
func SeedClasses() {
	var count int64
	database.DB.Model(&models.Class{}).Count(&count)
	if count > 0 {
		log.Println("Classes already seeded, skipping...")
		return
	}

	names := []string{"Grade 1", "Grade 2", "Grade 3", "Grade 4", "Grade 5"}
	for i, name := range names {
		class := models.Class{
			SchoolID:  1,
			Name:      name,
			SortOrder: i + 1,
		}
		if err := database.DB.Create(&class).Error; err != nil {
			log.Printf("Error seeding class %s: %v", name, err)
			continue
		}
		for _, sectionName := range []string{"A", "B"} {
			section := models.Section{
				ClassID:  class.ID,
				Name:     sectionName,
				Capacity: 40,
			}
			if err := database.DB.Create(&section).Error; err != nil {
				log.Printf("Error seeding section %s-%s: %v", name, sectionName, err)
			}
		}
	}

	log.Println("Classes seeded successfully")
}

// SeedFeeHeads seeds the standard fee heads
func SeedFeeHeads() {
	var count int64
	database.DB.Model(&models.FeeHead{}).Count(&count)
	if count > 0 {
		log.Println("Fee heads already seeded, skipping...")
		return
	}

	heads := []models.FeeHead{
		{BaseModel: models.BaseModel{ID: 1}, SchoolID: 1, Name: "Tuition Fee", Code: "TUITION"},
		{BaseModel: models.BaseModel{ID: 2}, SchoolID: 1, Name: "Transport Fee", Code: "TRANSPORT"},
		{BaseModel: models.BaseModel{ID: 3}, SchoolID: 1, Name: "Library Fee", Code: "LIBRARY"},
	}

	for _, head := range heads {
		if err := database.DB.Create(&head).Error; err != nil {
			log.Printf("Error seeding fee head %s: %v", head.Code, err)
		}
	}

	log.Println("Fee heads seeded successfully")
}

// SeedFeeStructures seeds the current year's fee schedule
func SeedFeeStructures() {
	var count int64
	database.DB.Model(&models.FeeStructure{}).Count(&count)
	if count > 0 {
		log.Println("Fee structures already seeded, skipping...")
		return
	}

	var classes []models.Class
	if err := database.DB.Where("school_id = ?", 1).Find(&classes).Error; err != nil {
		log.Printf("Error loading classes for fee structures: %v", err)
		return
	}

	for _, class := range classes {
		structures := []models.FeeStructure{
			{SchoolID: 1, AcademicYearID: 1, ClassID: class.ID, FeeHeadID: 1, Amount: 24000, Frequency: models.FrequencyMonthly},
			{SchoolID: 1, AcademicYearID: 1, ClassID: class.ID, FeeHeadID: 2, Amount: 8000, Frequency: models.FrequencyQuarterly},
			{SchoolID: 1, AcademicYearID: 1, ClassID: class.ID, FeeHeadID: 3, Amount: 1200, Frequency: models.FrequencyAnnually},
		}
		for _, structure := range structures {
			if err := database.DB.Create(&structure).Error; err != nil {
				log.Printf("Error seeding fee structure for class %s: %v", class.Name, err)
			}
		}
	}

	log.Println("Fee structures seeded successfully")
}
