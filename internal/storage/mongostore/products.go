package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/m3rciful/claimdesk/internal/domain"
)

// ProductField names an editable product attribute.
type ProductField string

const (
	ProductTitle       ProductField = "title"
	ProductDescription ProductField = "description"
	ProductImage       ProductField = "image_id"
)

// AddProduct stores a product under the next catalog id.
func (s *SalesDB) AddProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	id, err := nextSeq(ctx, s.db, productsCollection)
	if err != nil {
		return p, err
	}
	now := s.now().UTC()
	p.ProductID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	if _, err := s.products().InsertOne(ctx, p); err != nil {
		return p, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

// Product loads a catalog item.
func (s *SalesDB) Product(ctx context.Context, id int64) (domain.Product, error) {
	var p domain.Product
	err := s.products().FindOne(ctx, bson.M{"product_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return p, domain.NotFound(fmt.Sprintf("product %d not found", id))
	}
	if err != nil {
		return p, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

// Products returns one page of the catalog in id order and the total count.
func (s *SalesDB) Products(ctx context.Context, page, size int) ([]domain.Product, int64, error) {
	if size <= 0 {
		size = 5
	}
	if page < 1 {
		page = 1
	}
	total, err := s.products().CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	cur, err := s.products().Find(ctx, bson.M{}, options.Find().
		SetSort(bson.D{{Key: "product_id", Value: 1}}).
		SetSkip(int64((page-1)*size)).
		SetLimit(int64(size)))
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	out := []domain.Product{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return out, total, nil
}

// UpdateProduct sets one field.
func (s *SalesDB) UpdateProduct(ctx context.Context, id int64, field ProductField, value string) error {
	switch field {
	case ProductTitle, ProductDescription, ProductImage:
	default:
		return domain.Invalid(fmt.Sprintf("unknown product field %q", field))
	}
	res, err := s.products().UpdateOne(ctx, bson.M{"product_id": id},
		bson.M{"$set": bson.M{string(field): value, "updated_at": s.now().UTC()}})
	if err != nil {
		return fmt.Errorf("update product %d: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return domain.NotFound(fmt.Sprintf("product %d not found", id))
	}
	return nil
}
