package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/creditshop/creditshop-api/internal/config"
	"github.com/creditshop/creditshop-api/internal/domain/catalog"
	"github.com/creditshop/creditshop-api/internal/pkg/database"
	"github.com/creditshop/creditshop-api/internal/pkg/logger"
	"github.com/creditshop/creditshop-api/internal/pkg/validator"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// seedFile mirrors catalog.yaml
type seedFile struct {
	Packages []seedPackage `yaml:"packages"`
	Products []seedProduct `yaml:"products"`
}

type seedPackage struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Credits     int64  `yaml:"credits"`
	Price       string `yaml:"price"`
	ExpiryDays  int    `yaml:"expiry_days"`
	Featured    bool   `yaml:"featured"`
}

type seedProduct struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Price       int64  `yaml:"price"`
	ExpiryDays  int    `yaml:"expiry_days"`
	Featured    bool   `yaml:"featured"`
}

// catalogSeed is a validated seed file
type catalogSeed struct {
	Packages []catalog.CreatePackageRequest
	Products []catalog.CreateProductRequest
}

func main() {
	file := flag.String("file", "", "catalog YAML (defaults to the bundled catalog)")
	flag.Parse()

	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	raw := defaultCatalog
	if *file != "" {
		b, err := os.ReadFile(*file)
		if err != nil {
			log.Fatal().Err(err).Str("file", *file).Msg("Failed to read catalog file")
		}
		raw = b
	}

	seed, err := parseCatalog(raw)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid catalog file")
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply schema")
	}

	created, err := apply(ctx, catalog.NewService(catalog.NewRepository(db), nil, nil), seed)
	if err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}
	log.Info().Int("created", created).Msg("Catalog seeded")
}

func parseCatalog(raw []byte) (*catalogSeed, error) {
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	seed := &catalogSeed{}
	for i, p := range f.Packages {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("package %d (%s): price: %w", i, p.Name, err)
		}
		req := catalog.CreatePackageRequest{
			Name:        p.Name,
			Description: p.Description,
			Credits:     p.Credits,
			Price:       price,
			ExpiryDays:  p.ExpiryDays,
			Featured:    p.Featured,
		}
		if errs := validator.Validate(&req); errs != nil {
			return nil, fmt.Errorf("package %d (%s): %v", i, p.Name, errs)
		}
		seed.Packages = append(seed.Packages, req)
	}
	for i, p := range f.Products {
		req := catalog.CreateProductRequest{
			Name:        p.Name,
			Description: p.Description,
			Category:    p.Category,
			Price:       p.Price,
			ExpiryDays:  p.ExpiryDays,
			Featured:    p.Featured,
		}
		if errs := validator.Validate(&req); errs != nil {
			return nil, fmt.Errorf("product %d (%s): %v", i, p.Name, errs)
		}
		seed.Products = append(seed.Products, req)
	}
	return seed, nil
}

// catalogWriter is the part of the catalog service seeding needs
type catalogWriter interface {
	ListPackages(ctx context.Context) ([]catalog.Package, error)
	CreatePackage(ctx context.Context, req *catalog.CreatePackageRequest) (*catalog.Package, error)
	ListProducts(ctx context.Context, filter catalog.ProductFilter) ([]catalog.Product, error)
	CreateProduct(ctx context.Context, req *catalog.CreateProductRequest) (*catalog.Product, error)
}

// apply creates every seeded item whose name is not taken yet
func apply(ctx context.Context, svc catalogWriter, seed *catalogSeed) (int, error) {
	packages, err := svc.ListPackages(ctx)
	if err != nil {
		return 0, err
	}
	products, err := svc.ListProducts(ctx, catalog.ProductFilter{})
	if err != nil {
		return 0, err
	}

	existing := make(map[string]bool, len(packages)+len(products))
	for _, p := range packages {
		existing["package:"+p.Name] = true
	}
	for _, p := range products {
		existing["product:"+p.Name] = true
	}

	created := 0
	for i := range seed.Packages {
		req := &seed.Packages[i]
		if existing["package:"+req.Name] {
			log.Debug().Str("name", req.Name).Msg("package already exists")
			continue
		}
		if _, err := svc.CreatePackage(ctx, req); err != nil {
			return created, fmt.Errorf("create package %s: %w", req.Name, err)
		}
		created++
	}
	for i := range seed.Products {
		req := &seed.Products[i]
		if existing["product:"+req.Name] {
			log.Debug().Str("name", req.Name).Msg("product already exists")
			continue
		}
		if _, err := svc.CreateProduct(ctx, req); err != nil {
			return created, fmt.Errorf("create product %s: %w", req.Name, err)
		}
		created++
	}
	return created, nil
}
