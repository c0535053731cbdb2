// Package shipping classifies Australian postcodes into delivery zones and
// the flat shipping charge attached to each zone.
package shipping

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Tier is a delivery zone.
type Tier string

const (
	TierMetro         Tier = "metro"
	TierMajorRegional Tier = "major_regional"
	TierRemote        Tier = "remote"
)

// MajorRegionalCost is the flat charge for deliveries to a regional depot town.
var MajorRegionalCost = decimal.NewFromInt(100)

// Range is an inclusive postcode range.
type Range struct {
	Lo, Hi int
}

// Region groups postcode ranges under a named delivery area.
type Region struct {
	Name   string
	State  string
	Tier   Tier
	Ranges []Range
}

// Regions is the static postcode table. Ranges are disjoint across all regions.
var Regions = []Region{
	{Name: "Perth", State: "WA", Tier: TierMetro, Ranges: []Range{{6000, 6199}, {6200, 6214}}},
	{Name: "Sydney", State: "NSW", Tier: TierMetro, Ranges: []Range{{2000, 2249}, {2555, 2574}, {2740, 2786}}},
	{Name: "Melbourne", State: "VIC", Tier: TierMetro, Ranges: []Range{{3000, 3210}, {3335, 3341}, {3427, 3442}, {3750, 3810}, {3910, 3978}}},
	{Name: "Brisbane", State: "QLD", Tier: TierMetro, Ranges: []Range{{4000, 4206}, {4300, 4306}, {4500, 4521}}},
	{Name: "Adelaide", State: "SA", Tier: TierMetro, Ranges: []Range{{5000, 5199}}},
	{Name: "Canberra", State: "ACT", Tier: TierMetro, Ranges: []Range{{2600, 2620}, {2900, 2920}}},
	{Name: "Hobart", State: "TAS", Tier: TierMetro, Ranges: []Range{{7000, 7099}, {7170, 7179}}},
	{Name: "Darwin", State: "NT", Tier: TierMetro, Ranges: []Range{{800, 869}, {873, 899}}},
	{Name: "Gold Coast", State: "QLD", Tier: TierMetro, Ranges: []Range{{4207, 4230}}},
	{Name: "Newcastle", State: "NSW", Tier: TierMetro, Ranges: []Range{{2280, 2330}}},
	{Name: "Wollongong", State: "NSW", Tier: TierMetro, Ranges: []Range{{2500, 2535}}},
	{Name: "Geelong", State: "VIC", Tier: TierMetro, Ranges: []Range{{3211, 3227}}},

	// regional centres with freight depots
	{Name: "Bunbury", State: "WA", Tier: TierMajorRegional, Ranges: []Range{{6230, 6239}}},
	{Name: "Geraldton", State: "WA", Tier: TierMajorRegional, Ranges: []Range{{6530, 6532}}},
	{Name: "Kalgoorlie", State: "WA", Tier: TierMajorRegional, Ranges: []Range{{6430, 6433}}},
	{Name: "Albany", State: "WA", Tier: TierMajorRegional, Ranges: []Range{{6330, 6333}}},
	{Name: "Karratha", State: "WA", Tier: TierMajorRegional, Ranges: []Range{{6714, 6714}}},
	{Name: "Port Hedland", State: "WA", Tier: TierMajorRegional, Ranges: []Range{{6721, 6722}}},
	{Name: "Dubbo", State: "NSW", Tier: TierMajorRegional, Ranges: []Range{{2830, 2832}}},
	{Name: "Wagga Wagga", State: "NSW", Tier: TierMajorRegional, Ranges: []Range{{2650, 2652}}},
	{Name: "Albury", State: "NSW", Tier: TierMajorRegional, Ranges: []Range{{2640, 2641}}},
	{Name: "Tamworth", State: "NSW", Tier: TierMajorRegional, Ranges: []Range{{2340, 2341}}},
	{Name: "Orange", State: "NSW", Tier: TierMajorRegional, Ranges: []Range{{2800, 2800}}},
	{Name: "Bathurst", State: "NSW", Tier: TierMajorRegional, Ranges: []Range{{2795, 2795}}},
	{Name: "Coffs Harbour", State: "NSW", Tier: TierMajorRegional, Ranges: []Range{{2450, 2452}}},
	{Name: "Lismore", State: "NSW", Tier: TierMajorRegional, Ranges: []Range{{2480, 2480}}},
	{Name: "Port Macquarie", State: "NSW", Tier: TierMajorRegional, Ranges: []Range{{2444, 2446}}},
	{Name: "Ballarat", State: "VIC", Tier: TierMajorRegional, Ranges: []Range{{3350, 3356}}},
	{Name: "Bendigo", State: "VIC", Tier: TierMajorRegional, Ranges: []Range{{3550, 3556}}},
	{Name: "Shepparton", State: "VIC", Tier: TierMajorRegional, Ranges: []Range{{3630, 3632}}},
	{Name: "Wodonga", State: "VIC", Tier: TierMajorRegional, Ranges: []Range{{3690, 3691}}},
	{Name: "Warrnambool", State: "VIC", Tier: TierMajorRegional, Ranges: []Range{{3280, 3282}}},
	{Name: "Traralgon", State: "VIC", Tier: TierMajorRegional, Ranges: []Range{{3840, 3844}}},
	{Name: "Townsville", State: "QLD", Tier: TierMajorRegional, Ranges: []Range{{4810, 4818}}},
	{Name: "Cairns", State: "QLD", Tier: TierMajorRegional, Ranges: []Range{{4868, 4881}}},
	{Name: "Rockhampton", State: "QLD", Tier: TierMajorRegional, Ranges: []Range{{4700, 4703}}},
	{Name: "Mackay", State: "QLD", Tier: TierMajorRegional, Ranges: []Range{{4740, 4741}}},
	{Name: "Toowoomba", State: "QLD", Tier: TierMajorRegional, Ranges: []Range{{4350, 4352}}},
	{Name: "Bundaberg", State: "QLD", Tier: TierMajorRegional, Ranges: []Range{{4670, 4671}}},
	{Name: "Gladstone", State: "QLD", Tier: TierMajorRegional, Ranges: []Range{{4680, 4680}}},
	{Name: "Sunshine Coast", State: "QLD", Tier: TierMajorRegional, Ranges: []Range{{4550, 4575}}},
	{Name: "Mount Gambier", State: "SA", Tier: TierMajorRegional, Ranges: []Range{{5290, 5291}}},
	{Name: "Port Augusta", State: "SA", Tier: TierMajorRegional, Ranges: []Range{{5700, 5701}}},
	{Name: "Whyalla", State: "SA", Tier: TierMajorRegional, Ranges: []Range{{5600, 5601}}},
	{Name: "Launceston", State: "TAS", Tier: TierMajorRegional, Ranges: []Range{{7248, 7258}}},
	{Name: "Devonport", State: "TAS", Tier: TierMajorRegional, Ranges: []Range{{7310, 7310}}},
	{Name: "Burnie", State: "TAS", Tier: TierMajorRegional, Ranges: []Range{{7320, 7321}}},
	{Name: "Alice Springs", State: "NT", Tier: TierMajorRegional, Ranges: []Range{{870, 872}}},
}

// Zone is the result of classifying a postcode.
type Zone struct {
	Postcode string `json:"postcode"`
	Tier     Tier   `json:"zone"`
	Region   string `json:"region,omitempty"`
	State    string `json:"state,omitempty"`
}

// Cost returns the flat shipping charge for the zone. The second result is
// false when the zone needs a freight quote instead of a flat charge.
func (z Zone) Cost() (decimal.Decimal, bool) {
	switch z.Tier {
	case TierMetro:
		return decimal.Zero, true
	case TierMajorRegional:
		return MajorRegionalCost, true
	default:
		return decimal.Zero, false
	}
}

// QuoteRequired reports whether shipping must be quoted by staff.
func (z Zone) QuoteRequired() bool {
	_, ok := z.Cost()
	return !ok
}

// ClassifyPostcode scans the region table for n. Postcodes outside every
// range are remote.
func ClassifyPostcode(n int) Zone {
	for _, region := range Regions {
		for _, r := range region.Ranges {
			if n >= r.Lo && n <= r.Hi {
				return Zone{Postcode: formatPostcode(n), Tier: region.Tier, Region: region.Name, State: region.State}
			}
		}
	}
	return Zone{Postcode: formatPostcode(n), Tier: TierRemote}
}

// CheckZone classifies a postcode string. Input that is not a 3 or 4 digit
// postcode between 200 and 9999 is treated as remote.
func CheckZone(postcode string) Zone {
	n, ok := ParsePostcode(postcode)
	if !ok {
		return Zone{Postcode: strings.TrimSpace(postcode), Tier: TierRemote}
	}
	return ClassifyPostcode(n)
}

// ParsePostcode validates and converts an Australian postcode.
func ParsePostcode(postcode string) (int, bool) {
	pc := strings.TrimSpace(postcode)
	if len(pc) < 3 || len(pc) > 4 {
		return 0, false
	}
	for _, c := range pc {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(pc)
	if err != nil || n < 200 || n > 9999 {
		return 0, false
	}
	return n, true
}

func formatPostcode(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 4 {
		s = "0" + s
	}
	return s
}
