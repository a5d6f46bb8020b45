package service

import (
	"context"
	"time"

	"stockroom/internal/domain"
	"stockroom/internal/repository"

	"github.com/google/uuid"
)

// ProductService defines the interface for catalog management
type ProductService interface {
	Create(ctx context.Context, name, description string, price float64) (*domain.Product, error)
	Update(ctx context.Context, id uuid.UUID, name, description string, price float64) (*domain.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	List(ctx context.Context, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error)
}

type productService struct {
	products repository.ProductRepository
}

// NewProductService creates a new instance of ProductService
func NewProductService(products repository.ProductRepository) ProductService {
	return &productService{products: products}
}

// Create adds a product to the catalog. New products start with zero
// stock; units only arrive through stock receiving.
func (s *productService) Create(ctx context.Context, name, description string, price float64) (*domain.Product, error) {
	now := time.Now().UTC()
	product := &domain.Product{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Price:       price,
		Stock:       0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}

	return product, nil
}

// Update changes a product's name, description and price. Stock is not
// touched here.
func (s *productService) Update(ctx context.Context, id uuid.UUID, name, description string, price float64) (*domain.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	product.Name = name
	product.Description = description
	product.Price = price
	product.UpdatedAt = time.Now().UTC()

	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}

	return product, nil
}

// Delete removes a product from the catalog. Historical orders keep their
// captured unit prices, so they survive the deletion intact.
func (s *productService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.products.Delete(ctx, id)
}

// GetByID retrieves a single product
func (s *productService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.products.FindByID(ctx, id)
}

// List retrieves a page of products
func (s *productService) List(ctx context.Context, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.products.List(ctx, page, pageSize, sortBy, sortOrder)
}
