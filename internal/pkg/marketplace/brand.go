package marketplace

import "strings"

// brandStrategy extracts a brand candidate from an item, returning "" when it
// has nothing to offer.
type brandStrategy struct {
	name    string
	extract func(item *Item) string
}

// brandStrategies is the ordered fallback chain for brand extraction. The
// first strategy producing a value wins; the order is part of the contract.
var brandStrategies = []brandStrategy{
	{name: "attribute:BRAND", extract: attributeValue("BRAND")},
	{name: "attribute:MARCA", extract: attributeValue("MARCA")},
	{name: "attribute:MANUFACTURER", extract: attributeValue("MANUFACTURER")},
	{name: "seller_custom_field", extract: func(item *Item) string {
		return strings.TrimSpace(item.SellerCustomField)
	}},
}

func attributeValue(id string) func(item *Item) string {
	return func(item *Item) string {
		for _, attr := range item.Attributes {
			if strings.EqualFold(attr.ID, id) {
				return strings.TrimSpace(attr.ValueName)
			}
		}
		return ""
	}
}

// ExtractBrand walks the strategy chain and returns the first non-empty brand
// together with the name of the strategy that produced it. Both are empty
// when no strategy matched.
func ExtractBrand(item *Item) (string, string) {
	for _, strategy := range brandStrategies {
		if value := strategy.extract(item); value != "" {
			return value, strategy.name
		}
	}
	return "", ""
}
