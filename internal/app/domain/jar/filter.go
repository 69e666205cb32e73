package jar

import "fmt"

// Ordering selects how a jar listing is sorted. Fill-percentage orderings
// always place jars without a computable percentage last, regardless of
// direction.
type Ordering string

const (
	OrderFillAsc   Ordering = "fill_percentage"
	OrderFillDesc  Ordering = "-fill_percentage"
	OrderDateAsc   Ordering = "date_added"
	OrderDateDesc  Ordering = "-date_added"
	OrderDefault            = OrderDateDesc
)

// ParseOrdering validates a raw ordering query value. The empty string maps
// to the default ordering.
func ParseOrdering(raw string) (Ordering, error) {
	switch Ordering(raw) {
	case "":
		return OrderDefault, nil
	case OrderFillAsc, OrderFillDesc, OrderDateAsc, OrderDateDesc:
		return Ordering(raw), nil
	default:
		return "", fmt.Errorf("unsupported ordering %q", raw)
	}
}

// Filter narrows and orders a jar listing. Conditions compose conjunctively.
type Filter struct {
	// Search matches case-insensitive substrings of the title.
	Search string
	// Tag matches jars carrying a tag with exactly this name.
	Tag string
	// Ordering defaults to newest-first by date added.
	Ordering Ordering
}
