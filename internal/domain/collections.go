package domain

// Collection describes one entry of the closed collection registry. New
// collections are added here and nowhere else, so the dispatch in the
// gateway stays a compile-time-checked table instead of an open string map.
type Collection struct {
	// Name is the canonical registry name clients address, e.g. "Product".
	Name string
	// Resource is the permission resource token, e.g. "customerorder".
	Resource string
	// References maps reference fields to the collection they point at,
	// used for relation expansion on reads.
	References map[string]string
}

// Canonical registry names.
const (
	ColUser              = "User"
	ColCart              = "Cart"
	ColCategory          = "Category"
	ColCustomerOrder     = "CustomerOrder"
	ColDiscount          = "Discount"
	ColPromotion         = "Promotion"
	ColFavorite          = "Favorite"
	ColOrder             = "Order"
	ColProduct           = "Product"
	ColPurchaseHistory   = "PurchaseHistory"
	ColPurchaseProduct   = "PurchaseProduct"
	ColRating            = "Rating"
	ColSupplier          = "Supplier"
	ColSystem            = "System"
	ColStock             = "Stock"
	ColTransaction       = "Transaction"
	ColUserLog           = "UserLog"
	ColDeletePurchaseLog = "DeletePurchaseLog"
	ColSymbolCurrency    = "SymbolCurrency"
	ColCurrency          = "Currency"
	ColCustomerFeedback  = "CustomerFeedback"
)

// The registry. Order is not significant; names are unique.
var collections = []Collection{
	{Name: ColUser, Resource: "user"},
	{Name: ColCart, Resource: "cart", References: map[string]string{"productId": ColProduct, "userId": ColUser}},
	{Name: ColCategory, Resource: "category"},
	{Name: ColCustomerOrder, Resource: "customerorder", References: map[string]string{"userId": ColUser}},
	{Name: ColDiscount, Resource: "discount"},
	{Name: ColPromotion, Resource: "promotion"},
	{Name: ColFavorite, Resource: "favorite", References: map[string]string{"productId": ColProduct, "userId": ColUser}},
	{Name: ColOrder, Resource: "order", References: map[string]string{"userId": ColUser}},
	{Name: ColProduct, Resource: "product", References: map[string]string{"categoryId": ColCategory, "supplierId": ColSupplier}},
	{Name: ColPurchaseHistory, Resource: "purchasehistory", References: map[string]string{"userId": ColUser}},
	{Name: ColPurchaseProduct, Resource: "purchaseproduct", References: map[string]string{"productId": ColProduct}},
	{Name: ColRating, Resource: "rating", References: map[string]string{"productId": ColProduct, "userId": ColUser}},
	{Name: ColSupplier, Resource: "supplier"},
	{Name: ColSystem, Resource: "system"},
	{Name: ColStock, Resource: "stock", References: map[string]string{"productId": ColProduct, "supplierId": ColSupplier}},
	{Name: ColTransaction, Resource: "transaction", References: map[string]string{"userId": ColUser, "orderId": ColOrder}},
	{Name: ColUserLog, Resource: "userlog", References: map[string]string{"userId": ColUser}},
	{Name: ColDeletePurchaseLog, Resource: "deletepurchaselog"},
	{Name: ColSymbolCurrency, Resource: "symbol"},
	{Name: ColCurrency, Resource: "currency"},
	{Name: ColCustomerFeedback, Resource: "customerfeedback", References: map[string]string{"userId": ColUser}},
}

// aliases kept for wire compatibility with older clients.
var aliases = map[string]string{
	"Rate":   ColRating,
	"Symbol": ColSymbolCurrency,
}

var byName = func() map[string]Collection {
	m := make(map[string]Collection, len(collections))
	for _, c := range collections {
		m[c.Name] = c
	}
	return m
}()

// ResolveCollection maps a client-supplied collection name to its registry
// entry. Unknown names fail; callers translate that into UnknownCollection.
func ResolveCollection(name string) (Collection, bool) {
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	c, ok := byName[name]
	return c, ok
}

// Collections returns the full registry, for startup tasks such as index
// creation and snapshot loading.
func Collections() []Collection {
	out := make([]Collection, len(collections))
	copy(out, collections)
	return out
}

// CountersCollection is the reserved store collection holding sequence
// counters. It is not client-addressable through the registry.
const CountersCollection = "counters"
