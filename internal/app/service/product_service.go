package service

import (
	"errors"

	"github.com/dukkanhq/dukkan-backend/internal/app/model"
	"github.com/dukkanhq/dukkan-backend/internal/app/repository"
	"github.com/dukkanhq/dukkan-backend/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrInvalidProductPrice = errors.New("product price must be positive")
	ErrInvalidProductStock = errors.New("product stock cannot be negative")
)

type ProductService interface {
	ListProducts(filter repository.ProductFilter) ([]model.Product, int64, error)
	GetProductByID(id uint) (*model.Product, error)
	CreateProduct(product *model.Product) error
	UpdateProduct(product *model.Product) error
	DeleteProduct(id uint) error
}

type productService struct {
	productRepo repository.ProductRepository
}

func NewProductService(productRepo repository.ProductRepository) ProductService {
	return &productService{productRepo: productRepo}
}

func (s *productService) ListProducts(filter repository.ProductFilter) ([]model.Product, int64, error) {
	logger.Debug("Listing products", map[string]interface{}{
		"category": filter.Category,
		"search":   filter.Search,
		"page":     filter.Page,
		"limit":    filter.Limit,
	})

	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}

	products, total, err := s.productRepo.List(filter)
	if err != nil {
		logger.Error("Failed to list products", err, nil)
		return nil, 0, err
	}
	return products, total, nil
}

func (s *productService) GetProductByID(id uint) (*model.Product, error) {
	logger.Debug("Fetching product", map[string]interface{}{
		"product_id": id,
	})

	product, err := s.productRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Product not found", map[string]interface{}{
				"product_id": id,
			})
			return nil, ErrProductNotFound
		}
		logger.Error("Failed to fetch product", err, map[string]interface{}{
			"product_id": id,
		})
		return nil, err
	}
	return product, nil
}

func (s *productService) CreateProduct(product *model.Product) error {
	logger.Info("Creating product", map[string]interface{}{
		"name":     product.Name,
		"category": product.Category,
		"price":    product.Price,
	})

	if err := validateProduct(product); err != nil {
		logger.Warn("Rejected product create: validation failed", map[string]interface{}{
			"name":  product.Name,
			"error": err.Error(),
		})
		return err
	}
	return s.productRepo.Create(product)
}

func (s *productService) UpdateProduct(product *model.Product) error {
	logger.Info("Updating product", map[string]interface{}{
		"product_id": product.ID,
	})

	if _, err := s.GetProductByID(product.ID); err != nil {
		return err
	}
	if err := validateProduct(product); err != nil {
		return err
	}
	return s.productRepo.Update(product)
}

func (s *productService) DeleteProduct(id uint) error {
	logger.Info("Deleting product", map[string]interface{}{
		"product_id": id,
	})

	if _, err := s.GetProductByID(id); err != nil {
		return err
	}
	return s.productRepo.Delete(id)
}

func validateProduct(product *model.Product) error {
	if product.Price <= 0 {
		return ErrInvalidProductPrice
	}
	if product.StockQuantity < 0 {
		return ErrInvalidProductStock
	}
	return nil
}
