package scrape

import "fmt"

// SellerListURL is the primary URL for a seller's full store.
func SellerListURL(sellerID int64) string {
	return fmt.Sprintf("https://listado.mercadolibre.com.mx/tienda/%d", sellerID)
}

// SellerListURLAlt is the www-domain variant of the store URL.
func SellerListURLAlt(sellerID int64) string {
	return fmt.Sprintf("https://www.mercadolibre.com.mx/tienda/%d", sellerID)
}

// SellerCategoryURL scopes a seller listing to one category, avoiding the
// seller's unrelated inventory. Category "AD" means all categories.
func SellerCategoryURL(sellerID int64, categoryID string) string {
	if categoryID == "" {
		categoryID = "AD"
	}
	return fmt.Sprintf("https://listado.mercadolibre.com.mx/_CustId_%d_PrCategId_%s", sellerID, categoryID)
}

// SellerFallbackURLs returns the alternate store URLs tried when the primary
// returns 404.
func SellerFallbackURLs(sellerID int64) []string {
	return []string{
		SellerListURLAlt(sellerID),
		SellerCategoryURL(sellerID, "AD"),
	}
}
