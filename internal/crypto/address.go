package crypto

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/tealbay/nftmarketd/internal/domain"
)

// Address header layout: the high nibble selects the payment/stake credential
// kinds, the low nibble carries the network id.
const (
	headerBaseKeyKey       = 0x00 // payment key, stake key
	headerBaseScriptKey    = 0x01 // payment script, stake key
	headerBaseKeyScript    = 0x02 // payment key, stake script
	headerBaseScriptScript = 0x03 // payment script, stake script
	headerEnterpriseKey    = 0x06 // payment key only
	headerEnterpriseScript = 0x07 // payment script only

	networkIDTestnet = 0x0
	networkIDMainnet = 0x1

	credentialHashLen = 28
)

func hrpFor(network domain.Network) string {
	if network.Mainnet() {
		return "addr"
	}
	return "addr_test"
}

func networkID(network domain.Network) byte {
	if network.Mainnet() {
		return networkIDMainnet
	}
	return networkIDTestnet
}

// EncodeAddress renders an address as its bech32 string for the given
// network.
func EncodeAddress(network domain.Network, addr domain.Address) (string, error) {
	if len(addr.Payment.Hash) != credentialHashLen {
		return "", fmt.Errorf("crypto: payment credential hash must be %d bytes, got %d",
			credentialHashLen, len(addr.Payment.Hash))
	}

	var header byte
	payload := make([]byte, 0, 1+2*credentialHashLen)

	switch {
	case addr.Stake == nil && !addr.Payment.IsScript:
		header = headerEnterpriseKey
	case addr.Stake == nil && addr.Payment.IsScript:
		header = headerEnterpriseScript
	case !addr.Payment.IsScript && !addr.Stake.IsScript:
		header = headerBaseKeyKey
	case addr.Payment.IsScript && !addr.Stake.IsScript:
		header = headerBaseScriptKey
	case !addr.Payment.IsScript && addr.Stake.IsScript:
		header = headerBaseKeyScript
	default:
		header = headerBaseScriptScript
	}

	payload = append(payload, header<<4|networkID(network))
	payload = append(payload, addr.Payment.Hash...)
	if addr.Stake != nil {
		if len(addr.Stake.Hash) != credentialHashLen {
			return "", fmt.Errorf("crypto: stake credential hash must be %d bytes, got %d",
				credentialHashLen, len(addr.Stake.Hash))
		}
		payload = append(payload, addr.Stake.Hash...)
	}

	conv, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("crypto: convert bits: %w", err)
	}
	out, err := bech32.Encode(hrpFor(network), conv)
	if err != nil {
		return "", fmt.Errorf("crypto: bech32 encode: %w", err)
	}
	return out, nil
}

// DecodeAddress parses a bech32 address string into its credentials and
// network.
func DecodeAddress(s string) (domain.Address, domain.Network, error) {
	// Ledger addresses exceed the 90-character BIP-173 cap, so the
	// unlimited decoder is required here.
	hrp, conv, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return domain.Address{}, "", fmt.Errorf("crypto: bech32 decode: %w", err)
	}

	var network domain.Network
	switch hrp {
	case "addr":
		network = domain.NetworkMainnet
	case "addr_test":
		network = domain.NetworkPreprod
	default:
		return domain.Address{}, "", fmt.Errorf("crypto: unexpected address prefix %q", hrp)
	}

	payload, err := bech32.ConvertBits(conv, 5, 8, false)
	if err != nil {
		return domain.Address{}, "", fmt.Errorf("crypto: convert bits: %w", err)
	}
	if len(payload) < 1+credentialHashLen {
		return domain.Address{}, "", errors.New("crypto: address payload too short")
	}

	header := payload[0] >> 4
	body := payload[1:]

	addr := domain.Address{
		Payment: domain.Credential{Hash: body[:credentialHashLen]},
	}

	switch header {
	case headerEnterpriseKey:
	case headerEnterpriseScript:
		addr.Payment.IsScript = true
	case headerBaseKeyKey, headerBaseKeyScript, headerBaseScriptKey, headerBaseScriptScript:
		if len(body) != 2*credentialHashLen {
			return domain.Address{}, "", errors.New("crypto: base address payload truncated")
		}
		addr.Payment.IsScript = header == headerBaseScriptKey || header == headerBaseScriptScript
		stake := domain.Credential{
			Hash:     body[credentialHashLen:],
			IsScript: header == headerBaseKeyScript || header == headerBaseScriptScript,
		}
		addr.Stake = &stake
	default:
		return domain.Address{}, "", fmt.Errorf("crypto: unsupported address header %#x", header)
	}

	return addr, network, nil
}
