package token

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// --- ABI encoding (simplified, for the types the Coin contract uses) ---

// encodeCall builds calldata: 4-byte selector + 32-byte encoded args.
func encodeCall(fn *ABIEntry, args ...string) (string, error) {
	var encoded strings.Builder
	encoded.WriteString(functionSelector(fn))

	if len(args) != len(fn.Inputs) {
		return "", fmt.Errorf("%s expects %d argument(s), got %d", fn.Name, len(fn.Inputs), len(args))
	}
	for i, param := range fn.Inputs {
		enc, err := encodeParam(param.Type, args[i])
		if err != nil {
			return "", fmt.Errorf("encoding param %s: %w", param.Name, err)
		}
		encoded.WriteString(enc)
	}
	return encoded.String(), nil
}

// functionSelector computes the 4-byte selector for a function.
func functionSelector(fn *ABIEntry) string {
	return "0x" + hex.EncodeToString(keccak(signature(fn))[:4])
}

// eventTopic computes the 32-byte topic hash for an event.
func eventTopic(ev *ABIEntry) string {
	return "0x" + hex.EncodeToString(keccak(signature(ev)))
}

func signature(e *ABIEntry) string {
	types := make([]string, len(e.Inputs))
	for i, p := range e.Inputs {
		types[i] = p.Type
	}
	return e.Name + "(" + strings.Join(types, ",") + ")"
}

func keccak(s string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(s))
	return h.Sum(nil)
}

// encodeParam encodes a single ABI value as a 32-byte hex word.
func encodeParam(typ, val string) (string, error) {
	switch {
	case typ == "address":
		return fmt.Sprintf("%064s", strings.ToLower(strings.TrimPrefix(val, "0x"))), nil

	case strings.HasPrefix(typ, "uint"):
		n, ok := new(big.Int).SetString(val, 10)
		if !ok || n.Sign() < 0 {
			return "", fmt.Errorf("invalid unsigned integer: %q", val)
		}
		return fmt.Sprintf("%064x", n), nil

	default:
		return "", fmt.Errorf("unsupported ABI type: %s", typ)
	}
}

// AddrTopic left-pads an address into the 32-byte topic form used for
// indexed event parameters.
func AddrTopic(addr string) string {
	return "0x" + fmt.Sprintf("%064s", strings.ToLower(strings.TrimPrefix(addr, "0x")))
}

// decodeUint decodes a single uint256 return word.
func decodeUint(hexData string) (*big.Int, error) {
	s := strings.TrimPrefix(hexData, "0x")
	if s == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("could not parse uint result: %q", hexData)
	}
	return n, nil
}

// decodeAddress decodes a single address return word.
func decodeAddress(hexData string) (string, error) {
	s := strings.TrimPrefix(hexData, "0x")
	if len(s) < 64 {
		return "", fmt.Errorf("result too short for address: %q", hexData)
	}
	return "0x" + strings.ToLower(s[len(s)-40:]), nil
}
