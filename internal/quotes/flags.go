package quotes

import (
	"fmt"
	"strings"

	"erp/ecommerce/quote-storefront/internal/leadtime"
	"erp/ecommerce/quote-storefront/internal/shipping"
)

// Flags lists the conditions staff should check before pricing a quote.
func Flags(q Quote) []string {
	var flags []string
	switch q.DeliveryZone {
	case shipping.TierRemote:
		if q.MineSite {
			flags = append(flags, "Remote/mine site delivery - freight quote required")
		} else {
			flags = append(flags, "Remote delivery - freight quote required")
		}
	case shipping.TierMajorRegional:
		flags = append(flags, fmt.Sprintf("Non-metro delivery (%s)", q.DeliveryRegion))
	}
	if q.ItemCount > LargeOrderItems {
		flags = append(flags, fmt.Sprintf("Large order (%d items)", q.ItemCount))
	}
	var long []string
	for _, it := range q.Items {
		if leadtime.IsLong(it.LeadTime) {
			long = append(long, fmt.Sprintf("%s (%s)", it.Name, it.LeadTime))
		}
	}
	if len(long) > 0 {
		flags = append(flags, "Long lead time: "+strings.Join(long, ", "))
	}
	if q.HasUnpriced {
		flags = append(flags, "Contains POA items - pricing required")
	}
	return flags
}
