// storefront serves the industrial parts catalog, quote requests and the
// back-office API.
package main

import "erp/ecommerce/quote-storefront/internal/cli"

func main() {
	cli.Execute()
}
