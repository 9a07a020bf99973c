// Package identity owns participant registration and profile persistence.
//
// Participants are keyed by the external id of the messaging channel and are
// registered on first contact. Profiles carry the free-text wishlist and
// address fields a santa needs to pick and deliver a gift.
package identity
