package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-admin/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	productsCollection       = "products"
	couponsCollection        = "coupons"
	categoryImagesCollection = "category_images"
	subcategoriesCollection  = "subcategories"
)

type categoryImageDocument struct {
	Slug  string `bson:"_id"`
	Image string `bson:"image"`
}

type subcategoryDocument struct {
	Category string   `bson:"_id"`
	Names    []string `bson:"names"`
}

type mongoBackend struct {
	client *mongo.Client
	db     *mongo.Database
}

// ConnectMongo connects to MongoDB and verifies the connection with a ping
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client, nil
}

// NewMongoBackend creates a Backend storing each collection as documents
// keyed by their natural key in _id
func NewMongoBackend(client *mongo.Client, database string) Backend {
	return &mongoBackend{
		client: client,
		db:     client.Database(database),
	}
}

func (b *mongoBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx, nil)
}

func (b *mongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.client.Disconnect(ctx)
}

func (b *mongoBackend) ListProducts(ctx context.Context) ([]domain.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := b.db.Collection(productsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer cursor.Close(ctx)

	products := []domain.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}

	for i := range products {
		products[i].Normalize()
	}
	return products, nil
}

func (b *mongoBackend) UpsertProducts(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(products))
	for _, p := range products {
		p.Normalize()
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": p.ID}).
			SetReplacement(p).
			SetUpsert(true))
	}

	if _, err := b.db.Collection(productsCollection).BulkWrite(ctx, models); err != nil {
		return fmt.Errorf("failed to upsert products: %w", err)
	}
	return nil
}

func (b *mongoBackend) DeleteProduct(ctx context.Context, id string) error {
	result, err := b.db.Collection(productsCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (b *mongoBackend) LatestProductChange(ctx context.Context) (time.Time, error) {
	var latest time.Time

	for _, field := range []string{"updated_at", "created_at"} {
		var product domain.Product
		opts := options.FindOne().SetSort(bson.D{{Key: field, Value: -1}})

		err := b.db.Collection(productsCollection).FindOne(ctx, bson.M{}, opts).Decode(&product)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return time.Time{}, nil
		}
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to read latest product change: %w", err)
		}

		if changed := product.LastChange(); changed.After(latest) {
			latest = changed
		}
	}

	return latest, nil
}

func (b *mongoBackend) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	cursor, err := b.db.Collection(couponsCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	defer cursor.Close(ctx)

	coupons := []domain.Coupon{}
	if err := cursor.All(ctx, &coupons); err != nil {
		return nil, fmt.Errorf("failed to decode coupons: %w", err)
	}
	return coupons, nil
}

func (b *mongoBackend) UpsertCoupons(ctx context.Context, coupons []domain.Coupon) error {
	if len(coupons) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(coupons))
	for _, c := range coupons {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": c.ID}).
			SetReplacement(c).
			SetUpsert(true))
	}

	if _, err := b.db.Collection(couponsCollection).BulkWrite(ctx, models); err != nil {
		return fmt.Errorf("failed to upsert coupons: %w", err)
	}
	return nil
}

func (b *mongoBackend) DeleteCoupon(ctx context.Context, id string) error {
	result, err := b.db.Collection(couponsCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCouponNotFound
	}
	return nil
}

func (b *mongoBackend) ListCategoryImages(ctx context.Context) (domain.CategoryImageMap, error) {
	cursor, err := b.db.Collection(categoryImagesCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list category images: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []categoryImageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode category images: %w", err)
	}

	images := domain.CategoryImageMap{}
	for _, doc := range docs {
		images[doc.Slug] = doc.Image
	}
	return images, nil
}

func (b *mongoBackend) UpsertCategoryImages(ctx context.Context, images domain.CategoryImageMap) error {
	if len(images) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(images))
	for slug, image := range images {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": slug}).
			SetReplacement(categoryImageDocument{Slug: slug, Image: image}).
			SetUpsert(true))
	}

	if _, err := b.db.Collection(categoryImagesCollection).BulkWrite(ctx, models); err != nil {
		return fmt.Errorf("failed to upsert category images: %w", err)
	}
	return nil
}

func (b *mongoBackend) DeleteCategoryImage(ctx context.Context, slug string) error {
	if _, err := b.db.Collection(categoryImagesCollection).DeleteOne(ctx, bson.M{"_id": slug}); err != nil {
		return fmt.Errorf("failed to delete category image: %w", err)
	}
	return nil
}

func (b *mongoBackend) ListSubcategories(ctx context.Context) (domain.SubcategoryMap, error) {
	cursor, err := b.db.Collection(subcategoriesCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list subcategories: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []subcategoryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode subcategories: %w", err)
	}

	subcategories := domain.SubcategoryMap{}
	for _, doc := range docs {
		if doc.Names == nil {
			doc.Names = []string{}
		}
		subcategories[doc.Category] = doc.Names
	}
	return subcategories, nil
}

func (b *mongoBackend) UpsertSubcategories(ctx context.Context, subcategories domain.SubcategoryMap) error {
	if len(subcategories) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(subcategories))
	for category, names := range subcategories {
		if names == nil {
			names = []string{}
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": category}).
			SetReplacement(subcategoryDocument{Category: category, Names: names}).
			SetUpsert(true))
	}

	if _, err := b.db.Collection(subcategoriesCollection).BulkWrite(ctx, models); err != nil {
		return fmt.Errorf("failed to upsert subcategories: %w", err)
	}
	return nil
}
