package elements

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// KeyOrigin is the `[fingerprint/path]xpub` shape descriptors and signers
// exchange, grounded on original_source/lwk_common/src/keyorigin_xpub.rs.
type KeyOrigin struct {
	Fingerprint [4]byte
	Path        []uint32 // hardened indices have the top bit set, as with btcutil/hdkeychain
	Xpub        string
}

// ParseKeyOriginXpub parses the "[fp/path]xpub" format, rejecting malformed
// fingerprints, missing brackets, and unparsable path components exactly as
// the reference implementation does.
func ParseKeyOriginXpub(s string) (KeyOrigin, error) {
	var ko KeyOrigin
	if !strings.HasPrefix(s, "[") {
		return ko, fmt.Errorf("elements: keyorigin xpub %q missing opening bracket", s)
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return ko, fmt.Errorf("elements: keyorigin xpub %q missing closing bracket", s)
	}
	origin := s[1:end]
	ko.Xpub = s[end+1:]
	if ko.Xpub == "" {
		return ko, fmt.Errorf("elements: keyorigin xpub %q missing xpub", s)
	}

	parts := strings.Split(origin, "/")
	if len(parts) < 1 || len(parts[0]) != 8 {
		return ko, fmt.Errorf("elements: keyorigin xpub %q has malformed fingerprint", s)
	}
	fpBytes, err := hex.DecodeString(parts[0])
	if err != nil || len(fpBytes) != 4 {
		return ko, fmt.Errorf("elements: keyorigin xpub %q has malformed fingerprint", s)
	}
	copy(ko.Fingerprint[:], fpBytes)

	for _, comp := range parts[1:] {
		if comp == "" {
			return ko, fmt.Errorf("elements: keyorigin xpub %q has empty path component", s)
		}
		hardened := false
		if strings.HasSuffix(comp, "h") || strings.HasSuffix(comp, "H") || strings.HasSuffix(comp, "'") {
			hardened = true
			comp = comp[:len(comp)-1]
		}
		n, err := strconv.ParseUint(comp, 10, 32)
		if err != nil {
			return ko, fmt.Errorf("elements: keyorigin xpub %q has invalid path component %q", s, comp)
		}
		idx := uint32(n)
		if hardened {
			idx |= 0x80000000
		}
		ko.Path = append(ko.Path, idx)
	}

	return ko, nil
}

// String renders the canonical "[fp/path]xpub" form.
func (ko KeyOrigin) String() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(hex.EncodeToString(ko.Fingerprint[:]))
	for _, idx := range ko.Path {
		b.WriteByte('/')
		if idx&0x80000000 != 0 {
			b.WriteString(strconv.FormatUint(uint64(idx&0x7fffffff), 10))
			b.WriteByte('h')
		} else {
			b.WriteString(strconv.FormatUint(uint64(idx), 10))
		}
	}
	b.WriteByte(']')
	b.WriteString(ko.Xpub)
	return b.String()
}
