// Package present holds the formatting helpers shared by the HTML pages and
// the preview image.
package present

import (
	"math/big"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

var medals = [...]string{"", "🥇", "🥈", "🥉"}

// Fiat formats d with two decimals and thousands separators: 1234.5 becomes
// "1,234.50".
func Fiat(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	whole, fraction, _ := strings.Cut(fixed, ".")
	intPart, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return d.StringFixed(2)
	}
	formatted := humanize.BigComma(intPart) + "." + fraction
	if d.IsNegative() && fixed != "0.00" {
		return "-" + formatted
	}
	return formatted
}

// FiatString formats a decimal string, returning it unchanged when it does
// not parse.
func FiatString(amount string) string {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return amount
	}
	return Fiat(d)
}

// TruncateTxHash keeps the first start characters, and the last end ones when
// end is positive. Hashes no longer than 2*start are returned as is.
func TruncateTxHash(hash string, start, end int) string {
	if len(hash) <= 2*start {
		return hash
	}
	if end <= 0 {
		return hash[:start] + "..."
	}
	if end > len(hash)-start {
		return hash
	}
	return hash[:start] + "..." + hash[len(hash)-end:]
}

func ShortTxHash(hash string) string {
	return TruncateTxHash(hash, 8, 0)
}

// TruncateAddress shortens a well-formed account address to 0x1234…abcd.
func TruncateAddress(address string) string {
	if !addressPattern.MatchString(address) {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}

// DisplayName prefers the human-readable name over the address.
func DisplayName(name, address string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return TruncateAddress(address)
}

// Rankify renders ranks 1 to 3 as medals and others as "n.".
func Rankify(rank int) string {
	if rank >= 1 && rank < len(medals) {
		return medals[rank]
	}
	return strconv.Itoa(rank) + "."
}

// SplitName splits "alice.eth" into "alice" and ".eth" so the suffix can be
// de-emphasized.
func SplitName(name string) (first, rest string) {
	first, rest, found := strings.Cut(name, ".")
	if !found {
		return name, ""
	}
	return first, "." + rest
}

// Age renders t relative to now, e.g. "3 hours ago".
func Age(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

func AvatarURL(base, handle string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(handle)
}

// DonateURL links to the payment app for handle with a redirect back to this
// site's finalize route.
func DonateURL(appURL, publicBaseURL, handle string) string {
	redirect := strings.TrimRight(publicBaseURL, "/") + "/address/" + url.PathEscape(handle) + "/finalize"
	return strings.TrimRight(appURL, "/") + "/" + url.PathEscape(handle) + "?redirectUrl=" + url.QueryEscape(redirect)
}

func ReceiptURL(appURL, txHash string) string {
	return strings.TrimRight(appURL, "/") + "/tx/" + url.PathEscape(txHash)
}

// OpenGraphURL is the absolute URL of the preview image for handle.
func OpenGraphURL(publicBaseURL, handle string) string {
	return strings.TrimRight(publicBaseURL, "/") + "/address/" + url.PathEscape(handle) + "/opengraph-image"
}
