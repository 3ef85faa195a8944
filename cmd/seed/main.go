package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/dukkanhq/dukkan-backend/config"
	"github.com/dukkanhq/dukkan-backend/internal/app/model"
	"github.com/dukkanhq/dukkan-backend/internal/app/repository"
	"github.com/dukkanhq/dukkan-backend/internal/db"
	"github.com/dukkanhq/dukkan-backend/pkg/util"
)

// Seeds the database with an admin account and, when an XLSX catalog file is
// given, the product catalog.
//
// Usage:
//
//	go run cmd/seed/main.go [products.xlsx]
//
// Expected columns: name, description, price, category, stock_quantity, image_url
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	if err := db.Initialize(&cfg.Database); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	userRepo := repository.NewUserRepository(db.GetDB())
	productRepo := repository.NewProductRepository(db.GetDB())

	if err := seedAdminUser(userRepo); err != nil {
		log.Fatal("Failed to seed admin user:", err)
	}

	if len(os.Args) < 2 {
		fmt.Println("No catalog file given, skipping product import.")
		return
	}

	filePath := os.Args[1]
	fmt.Printf("Reading XLSX file: %s\n", filePath)
	products, err := readProductsFromXLSX(filePath)
	if err != nil {
		log.Fatal("Failed to read XLSX:", err)
	}

	fmt.Printf("Total products to import: %d\n", len(products))

	fmt.Print("Do you want to proceed with the import? (yes/no): ")
	var confirm string
	fmt.Scanln(&confirm)
	if confirm != "yes" && confirm != "y" {
		fmt.Println("Import cancelled.")
		return
	}

	batchSize := 500
	fmt.Printf("Starting bulk import with batch size: %d\n", batchSize)
	if err := productRepo.BulkCreate(products, batchSize); err != nil {
		log.Fatal("Failed to bulk create products:", err)
	}

	fmt.Println("Import completed successfully!")
	fmt.Printf("Total products imported: %d\n", len(products))
}

func seedAdminUser(userRepo repository.UserRepository) error {
	email := envOr("SEED_ADMIN_EMAIL", "admin@dukkan.local")
	password := envOr("SEED_ADMIN_PASSWORD", "changeme123")

	if _, err := userRepo.FindByEmail(email); err == nil {
		fmt.Printf("Admin user %s already exists, skipping.\n", email)
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return err
	}

	admin := &model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         "Administrator",
		Role:         model.RoleAdmin,
	}
	if err := userRepo.Create(admin); err != nil {
		return err
	}

	fmt.Printf("Admin user created: %s\n", email)
	return nil
}

func readProductsFromXLSX(filePath string) ([]model.Product, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no sheets found in XLSX file")
	}

	fmt.Printf("Reading sheet: %s\n", sheetName)

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("no data rows found in XLSX file")
	}

	// Map header names to column indexes so column order does not matter.
	col := make(map[string]int)
	for i, name := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"name", "price", "category"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing required column: %s", required)
		}
	}

	var products []model.Product
	seen := make(map[string]bool)
	skippedCount := 0

	for i, row := range rows[1:] {
		name := cell(row, col, "name")
		if name == "" {
			skippedCount++
			continue
		}
		if seen[name] {
			skippedCount++
			continue
		}

		price, err := strconv.ParseFloat(cell(row, col, "price"), 64)
		if err != nil || price <= 0 {
			fmt.Printf("Row %d: invalid price %q, skipping\n", i+2, cell(row, col, "price"))
			skippedCount++
			continue
		}

		stock := 0
		if s := cell(row, col, "stock_quantity"); s != "" {
			stock, err = strconv.Atoi(s)
			if err != nil || stock < 0 {
				fmt.Printf("Row %d: invalid stock %q, skipping\n", i+2, s)
				skippedCount++
				continue
			}
		}

		seen[name] = true
		products = append(products, model.Product{
			Name:          name,
			Description:   cell(row, col, "description"),
			Price:         price,
			Category:      cell(row, col, "category"),
			StockQuantity: stock,
			ImageURL:      cell(row, col, "image_url"),
		})
	}

	if skippedCount > 0 {
		fmt.Printf("Skipped %d rows (empty, duplicate, or invalid)\n", skippedCount)
	}

	return products, nil
}

func cell(row []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
