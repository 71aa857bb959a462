package coupon

import (
	"time"

	uuid "github.com/hashicorp/go-uuid"
)

// Status of a user grant.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusUsed      Status = "USED"
	StatusExpired   Status = "EXPIRED"
)

// Grant records one coupon issued to one user. Grants are created by a
// successful issuance, flipped by use or expiry, and never deleted.
type Grant struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	CouponID     string     `json:"couponId"`
	Name         string     `json:"name"`
	DiscountRate int        `json:"discountRate"`
	Status       Status     `json:"status"`
	IssuedAt     time.Time  `json:"issuedAt"`
	UsedAt       *time.Time `json:"usedAt,omitempty"`
	ExpiresAt    time.Time  `json:"expiresAt"`
}

// Usable reports whether the grant can still be redeemed at now.
func (g Grant) Usable(now time.Time) bool {
	return g.Status == StatusAvailable && !now.After(g.ExpiresAt)
}

// Quota is the fixed-capacity coupon pool. Grants live inside the aggregate
// so the duplicate check, the counter bump and the grant insert all commit
// under one conditional write.
type Quota struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	DiscountRate   int              `json:"discountRate"`
	TotalQuantity  int              `json:"totalQuantity"`
	IssuedQuantity int              `json:"issuedQuantity"`
	ValidityDays   int              `json:"validityDays"`
	ValidFrom      time.Time        `json:"validFrom"`
	ValidUntil     time.Time        `json:"validUntil"`
	Grants         map[string]Grant `json:"grants"`
}

// CanIssue reports whether capacity remains.
func (q Quota) CanIssue() bool {
	return q.IssuedQuantity < q.TotalQuantity
}

// WithinWindow reports whether now falls inside [ValidFrom, ValidUntil].
func (q Quota) WithinWindow(now time.Time) bool {
	return !now.Before(q.ValidFrom) && !now.After(q.ValidUntil)
}

// Remaining returns the number of grants still available.
func (q Quota) Remaining() int {
	return q.TotalQuantity - q.IssuedQuantity
}

// Discount applies the quota's rate to an order amount.
func (q Quota) Discount(orderAmount int64) int64 {
	return orderAmount * int64(q.DiscountRate) / 100
}

func newGrant(userID string, q Quota, now time.Time) (Grant, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return Grant{}, err
	}
	return Grant{
		ID:           id,
		UserID:       userID,
		CouponID:     q.ID,
		Name:         q.Name,
		DiscountRate: q.DiscountRate,
		Status:       StatusAvailable,
		IssuedAt:     now,
		ExpiresAt:    now.AddDate(0, 0, q.ValidityDays),
	}, nil
}
