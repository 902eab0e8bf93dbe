package domain

import "time"

// SnapshotVersion is written into every export
const SnapshotVersion = "1.0"

// Collection names shared by the local store, broadcast events and exports
const (
	CollectionProducts       = "products"
	CollectionCategoryImages = "categoryImages"
	CollectionSubcategories  = "subcategories"
	CollectionCoupons        = "coupons"
)

// Snapshot holds every admin collection at one point in time.
// It is the export/import file format and the unit of deployment.
type Snapshot struct {
	Version        string           `json:"version"`
	Timestamp      time.Time        `json:"timestamp"`
	Products       []Product        `json:"products"`
	CategoryImages CategoryImageMap `json:"categoryImages"`
	Subcategories  SubcategoryMap   `json:"subcategories"`
	Coupons        []Coupon         `json:"coupons"`
}
