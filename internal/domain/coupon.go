package domain

import "strings"

// Coupon is a percentage discount code redeemable at checkout
type Coupon struct {
	ID                 string `json:"id" bson:"_id"`
	Code               string `json:"code" bson:"code"`
	DiscountPercentage int    `json:"discountPercentage" bson:"discount_percentage"`
	Active             bool   `json:"active" bson:"active"`
	Description        string `json:"description,omitempty" bson:"description,omitempty"`
}

// Matches compares the coupon code case-insensitively
func (c Coupon) Matches(code string) bool {
	return strings.EqualFold(strings.TrimSpace(c.Code), strings.TrimSpace(code))
}
