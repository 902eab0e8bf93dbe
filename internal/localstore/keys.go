package localstore

// Versioned collection keys. Bump the suffix when the stored shape changes.
const (
	KeyCategoryImages = "categoryImages_v1"
	KeySubcategories  = "subcategories_v1"
	KeyCoupons        = "coupons_v1"
	KeyProducts       = "products_v1"
)

// Bookkeeping keys
const (
	KeySyncTrigger    = "lastSyncTrigger"
	KeyPendingChanges = "hasUnsavedChanges"
	KeyLastDeployment = "lastDeployment"
	KeyLastSync       = "lastSyncTime"
	KeyAutoDeploy     = "autoDeployEnabled"
	KeySyncInProgress = "syncInProgress"
)

// MaxBackups is the number of timestamped backups retained per key
const MaxBackups = 2
