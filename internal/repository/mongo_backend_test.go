package repository

import (
	"context"
	"testing"
	"time"

	"storefront-admin/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var testMongo *mongo.Client

func setupTestMongo() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	container, err := mongodb.Run(context.Background(), "mongo:7")
	if err != nil {
		return nil, err
	}

	uri, err := container.ConnectionString(context.Background())
	if err != nil {
		return container.Terminate, err
	}

	testMongo, err = ConnectMongo(context.Background(), uri)
	if err != nil {
		return container.Terminate, err
	}

	return container.Terminate, nil
}

// requireMongo returns a backend on a fresh database so tests do not see
// each other's documents
func requireMongo(t *testing.T) (Backend, *mongo.Database) {
	t.Helper()
	if testMongo == nil {
		t.Skip("mongo container not available")
	}

	name := "storefront_" + uuid.NewString()[:8]
	t.Cleanup(func() {
		_ = testMongo.Database(name).Drop(context.Background())
	})
	return NewMongoBackend(testMongo, name), testMongo.Database(name)
}

func TestProperty_MongoProductUpsertPreservesAttributes(t *testing.T) {
	backend, _ := requireMongo(t)

	properties := gopter.NewProperties(nil)

	properties.Property("upsert then list preserves every product attribute", prop.ForAll(
		func(name string, price float64, subcategory string) bool {
			ctx := context.Background()

			product := domain.Product{
				ID:             uuid.NewString(),
				Name:           name,
				Price:          price,
				Category:       "Engines",
				Subcategory:    subcategory,
				InStock:        true,
				Images:         []string{"https://cdn.example.com/e.png"},
				Specifications: []domain.Specification{{Name: "Power", Value: "300 hp"}},
				CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
			}

			if err := backend.UpsertProducts(ctx, []domain.Product{product}); err != nil {
				t.Logf("FAIL: Failed to upsert product: %v", err)
				return false
			}
			defer backend.DeleteProduct(ctx, product.ID)

			products, err := backend.ListProducts(ctx)
			if err != nil {
				t.Logf("FAIL: Failed to list products: %v", err)
				return false
			}

			for _, found := range products {
				if found.ID != product.ID {
					continue
				}
				if found.Name != name || found.Price != price || found.Subcategory != subcategory {
					t.Logf("FAIL: attribute mismatch: %+v", found)
					return false
				}
				if len(found.Specifications) != 1 || found.Specifications[0].Value != "300 hp" {
					t.Logf("FAIL: Specifications mismatch: %v", found.Specifications)
					return false
				}
				return !found.UpdatedAt.IsZero() && found.CreatedAt.Equal(product.CreatedAt)
			}

			t.Logf("FAIL: product %s not listed", product.ID)
			return false
		},
		gen.RegexMatch(`[A-Za-z0-9 ]{3,50}`),
		gen.Float64Range(0.01, 9999.99),
		gen.OneConstOf("", "A Class", "B Class"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestMongoDeleteMissingProduct(t *testing.T) {
	backend, _ := requireMongo(t)

	if err := backend.DeleteProduct(context.Background(), uuid.NewString()); err != ErrProductNotFound {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
}

func TestMongoLatestProductChangeEmpty(t *testing.T) {
	backend, _ := requireMongo(t)

	latest, err := backend.LatestProductChange(context.Background())
	if err != nil || !latest.IsZero() {
		t.Errorf("Expected zero time for an empty catalog, got %v (%v)", latest, err)
	}
}

func TestMongoLatestProductChangeFallsBackToCreatedAt(t *testing.T) {
	backend, db := requireMongo(t)
	ctx := context.Background()

	updated := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	edited := domain.Product{
		ID:        uuid.NewString(),
		Name:      "V8",
		Category:  "Engines",
		CreatedAt: updated.Add(-24 * time.Hour),
		UpdatedAt: updated,
	}
	if err := backend.UpsertProducts(ctx, []domain.Product{edited}); err != nil {
		t.Fatalf("Failed to upsert product: %v", err)
	}

	// written by another client that never sets updated_at
	created := time.Now().UTC().Truncate(time.Millisecond)
	if _, err := db.Collection(productsCollection).InsertOne(ctx, bson.M{
		"_id":        uuid.NewString(),
		"name":       "Caliper",
		"category":   "Brakes",
		"created_at": created,
	}); err != nil {
		t.Fatalf("Failed to insert raw product: %v", err)
	}

	latest, err := backend.LatestProductChange(ctx)
	if err != nil {
		t.Fatalf("Failed to read latest change: %v", err)
	}
	if !latest.Equal(created) {
		t.Errorf("Expected latest change %v from created_at, got %v", created, latest)
	}
}

func TestMongoCouponsAndCategories(t *testing.T) {
	backend, _ := requireMongo(t)
	ctx := context.Background()

	coupon := domain.Coupon{ID: uuid.NewString(), Code: "SAVE10", DiscountPercentage: 10, Active: true}
	if err := backend.UpsertCoupons(ctx, []domain.Coupon{coupon}); err != nil {
		t.Fatalf("Failed to upsert coupon: %v", err)
	}
	coupon.DiscountPercentage = 15
	if err := backend.UpsertCoupons(ctx, []domain.Coupon{coupon}); err != nil {
		t.Fatalf("Failed to update coupon: %v", err)
	}

	coupons, err := backend.ListCoupons(ctx)
	if err != nil || len(coupons) != 1 || coupons[0].DiscountPercentage != 15 {
		t.Fatalf("Expected one updated coupon, got %v (%v)", coupons, err)
	}

	if err := backend.DeleteCoupon(ctx, coupon.ID); err != nil {
		t.Errorf("Failed to delete coupon: %v", err)
	}
	if err := backend.DeleteCoupon(ctx, coupon.ID); err != ErrCouponNotFound {
		t.Errorf("Expected ErrCouponNotFound, got %v", err)
	}

	if err := backend.UpsertCategoryImages(ctx, domain.CategoryImageMap{"engines": "e.png", "brakes": "b.png"}); err != nil {
		t.Fatalf("Failed to upsert category images: %v", err)
	}
	if err := backend.DeleteCategoryImage(ctx, "brakes"); err != nil {
		t.Fatalf("Failed to delete category image: %v", err)
	}
	images, _ := backend.ListCategoryImages(ctx)
	if len(images) != 1 || images["engines"] != "e.png" {
		t.Errorf("Expected only the engines image, got %v", images)
	}

	if err := backend.UpsertSubcategories(ctx, domain.SubcategoryMap{"Engines": {"A Class", "B Class"}, "Brakes": nil}); err != nil {
		t.Fatalf("Failed to upsert subcategories: %v", err)
	}
	subcategories, _ := backend.ListSubcategories(ctx)
	if len(subcategories["Engines"]) != 2 || subcategories["Engines"][1] != "B Class" {
		t.Errorf("Expected ordered subcategories, got %v", subcategories)
	}
	if names, ok := subcategories["Brakes"]; !ok || names == nil || len(names) != 0 {
		t.Errorf("Expected empty list for Brakes, got %v", names)
	}
}
