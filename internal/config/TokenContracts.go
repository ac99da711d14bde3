/*

Price history rows are cached by token code, while the dashboard asks for them by
contract address. This file maps the BSC contract addresses the dashboard knows about
to LiveCoinWatch / CryptoCompare codes.

If a contract has no entry here the price-history handler answers with an empty series.
Keep it in sync with the tokens listed on the dashboard.

*/

package config

import "strings"

var (
	CodeToContract = map[string]string{
		"ETH":  "0x2170ed0880ac9a755fd29b2688956bd959f933f8",
		"BTC":  "0x7130d2a12b9bcbfae4f2634d864a1ee1ce3ead9c",
		"USDT": "0x55d398326f99059ff775485246999027b3197955",
		"BNB":  "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c",
		"USDC": "0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d",
		"XRP":  "0x1d2f0da169ceb9fc7b3144628db156f3f6c60dbe",
		"ADA":  "0x3ee2200efb3400fabb9aacf31297cbdd1d435d47",
		"DOGE": "0xba2ae424d960c26247dd6c32edc70b295c744c43",
		"LINK": "0xf8a0bf9cf54bb92f17374d9e9a321e6a111a51bd",
		"DOT":  "0x7083609fce4d1d8dc0c979aab8c869ea2c873402",
		"LTC":  "0x4338665cbb7b2485a8855a139b75d5e34ab0db94",
		"CAKE": "0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82",
	}
)

// ContractForCode returns the known contract of a token code, or "".
func ContractForCode(code string) string {
	return CodeToContract[strings.ToUpper(strings.TrimSpace(code))]
}

// CodeForContract is the reverse lookup, case-insensitive on the address.
func CodeForContract(contract string) (string, bool) {
	contract = strings.ToLower(strings.TrimSpace(contract))
	for code, addr := range CodeToContract {
		if addr == contract {
			return code, true
		}
	}
	return "", false
}
