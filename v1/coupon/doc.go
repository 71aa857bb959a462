// Package coupon implements the fixed-capacity coupon pool. A quota tracks
// its total and issued counts together with the set of users already granted,
// all inside one versioned snapshot, so concurrent issuance can never oversell
// the pool or hand the same user two grants.
package coupon
