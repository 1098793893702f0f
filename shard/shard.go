// Package shard maps client location signals to one of the fixed set of
// regional index shards.
package shard

import "strings"

// ID identifies one regional partition of the address index.
type ID string

const (
	// City is the shard covering the City of St. Louis.
	City ID = "stl-city"

	// County is the shard covering St. Louis County. It is also the universal
	// fallback: an unresolvable or malformed location must never block the
	// search experience.
	County ID = "stl-county"
)

// Default is the shard used when no signal resolves.
const Default = County

// CookieName is the cookie carrying a previously resolved shard.
const CookieName = "regionShard"

// cityNames are the normalized locality spellings that indicate the city
// jurisdiction.
var cityNames = map[string]struct{}{
	"st. louis":      {},
	"st louis":       {},
	"saint louis":    {},
	"st. louis city": {},
	"city of st. louis": {},
}

// cityPostalCodes are ZIP codes entirely within the city limits. Codes that
// straddle the city/county line are deliberately absent and resolve to the
// county shard.
var cityPostalCodes = map[string]struct{}{
	"63101": {}, "63102": {}, "63103": {}, "63104": {},
	"63106": {}, "63107": {}, "63108": {}, "63109": {},
	"63110": {}, "63111": {}, "63112": {}, "63113": {},
	"63115": {}, "63116": {}, "63118": {}, "63120": {},
	"63139": {}, "63147": {},
}

// Resolve maps a city/region/postal-code triple to a shard.
// Pure function, no I/O. Empty or unrecognized inputs resolve to Default.
func Resolve(city, region, postalCode string) ID {
	city = strings.ToLower(strings.TrimSpace(city))
	region = strings.ToLower(strings.TrimSpace(region))
	postalCode = strings.TrimSpace(postalCode)

	if region != "" && region != "missouri" && region != "mo" {
		return Default
	}

	if _, ok := cityNames[city]; ok {
		return City
	}
	if _, ok := cityPostalCodes[postalCode]; ok {
		return City
	}
	return Default
}

// FromCookie maps a regionShard cookie value to a shard.
// Absent or unrecognized values resolve to Default.
func FromCookie(value string) ID {
	switch ID(strings.ToLower(strings.TrimSpace(value))) {
	case City:
		return City
	case County:
		return County
	default:
		return Default
	}
}

// Valid reports whether id is one of the fixed shard identifiers.
func Valid(id ID) bool {
	return id == City || id == County
}

// All returns every shard in a stable order.
func All() []ID {
	return []ID{City, County}
}
