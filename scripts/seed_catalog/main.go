package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/stackscan/internal/config"
	"github.com/stackscan/internal/db"
	"github.com/stackscan/internal/service"
	"gorm.io/gorm"
)

// Seeds the catalog with common products so barcode quick matches work on a
// fresh database. Running it twice is harmless.
func main() {
	var file, user string
	flag.StringVar(&file, "file", "", "JSON array of labels to seed instead of the built-in list")
	flag.StringVar(&user, "user", "", "also add the seeded products to this user's library")
	flag.Parse()

	cfg := config.Load()
	if err := db.Init(db.Options{Driver: cfg.DatabaseDriver, Path: cfg.DatabasePath, DSN: cfg.DatabaseDSN}); err != nil {
		log.Fatal("init db: ", err)
	}

	labels := sampleLabels()
	if file != "" {
		loaded, err := readLabels(file)
		if err != nil {
			log.Fatal(err)
		}
		labels = loaded
	}

	created, ids, err := seedCatalog(context.Background(), db.DB, labels)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("catalog: %d products, %d new\n", len(ids), created)

	if user != "" {
		added, err := service.NewLibraryService(db.DB).SyncProtocol(context.Background(), user, ids)
		if err != nil {
			log.Fatal("sync library: ", err)
		}
		fmt.Printf("library %s: %d added\n", user, added)
	}
}

func seedCatalog(ctx context.Context, gdb *gorm.DB, labels []service.LabelData) (int, []string, error) {
	catalog := service.NewCatalogService(gdb, nil)
	created := 0
	ids := make([]string, 0, len(labels))
	for _, label := range labels {
		res, err := catalog.Resolve(ctx, service.ResolveInput{Label: label})
		if err != nil {
			return created, ids, fmt.Errorf("seed %s: %w", label.SupplementName, err)
		}
		if res.Created {
			created++
		}
		ids = append(ids, res.Product.ID)
	}
	return created, ids, nil
}

func readLabels(path string) ([]service.LabelData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	var labels []service.LabelData
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}
	return labels, nil
}

func sampleLabels() []service.LabelData {
	return []service.LabelData{
		{Brand: "Nordic Naturals", SupplementName: "Ultimate Omega", DosagePerServing: "1280 mg", ServingsPerContainer: 60, Form: "softgel", Barcode: "768990017926"},
		{Brand: "Thorne", SupplementName: "Vitamin D-5000", DosagePerServing: "5000 IU", ServingsPerContainer: 60, Form: "capsule", Barcode: "693749005122"},
		{Brand: "Doctor's Best", SupplementName: "High Absorption Magnesium", DosagePerServing: "200 mg", ServingsPerContainer: 120, Form: "tablet", Barcode: "753950000919"},
		{Brand: "NOW Foods", SupplementName: "Creatine Monohydrate", DosagePerServing: "5 g", ServingsPerContainer: 227, Form: "powder", Barcode: "733739027316"},
		{Brand: "Jarrow Formulas", SupplementName: "Methyl B-12", DosagePerServing: "1000 mcg", ServingsPerContainer: 100, Form: "other", Barcode: "790011180116"},
		{Brand: "Olly", SupplementName: "Sleep", DosagePerServing: "3 mg", ServingsPerContainer: 25, Form: "gummy"},
	}
}
