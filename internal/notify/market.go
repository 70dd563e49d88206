package notify

import (
	"fmt"
	"strings"

	"github.com/tealbay/nftmarketd/internal/domain"
)

// FormatActivity renders a marketplace activity as a notification title and
// body. Lovelace amounts are shown in ada for readability.
func FormatActivity(a domain.Activity) (title, message string) {
	title = strings.ReplaceAll(string(a.Kind), "_", " ")

	var b strings.Builder
	if a.Unit != "" {
		if name := domain.AssetNameUTF8(a.Unit); name != "" {
			fmt.Fprintf(&b, "asset: %s\n", name)
		} else {
			fmt.Fprintf(&b, "unit: %s\n", a.Unit)
		}
	}
	if a.Lovelace > 0 {
		fmt.Fprintf(&b, "price: %.6f ada\n", float64(a.Lovelace)/1_000_000)
	}
	if a.Caller != "" {
		fmt.Fprintf(&b, "by: %s\n", shortAddr(a.Caller))
	}
	fmt.Fprintf(&b, "tx: %s", a.TxID)

	return title, b.String()
}

// shortAddr elides the middle of a bech32 address for display.
func shortAddr(addr string) string {
	if len(addr) <= 20 {
		return addr
	}
	return addr[:12] + "..." + addr[len(addr)-6:]
}
