package descriptor

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// Parse parses and validates a confidential descriptor string, enforcing
// the acceptance rules in spec §3: rejects bare blinding keys, view-key
// multipath, view-xprv with a wildcard, descriptors without a wildcard,
// unsupported multipath combinations, and non-segwit-v0 spending
// descriptors outside the explicit taproot variant.
func Parse(s string) (*Descriptor, error) {
	text := s
	checksum := ""
	if idx := strings.LastIndexByte(s, '#'); idx >= 0 {
		text = s[:idx]
		checksum = s[idx+1:]
		ok, err := ChecksumVerify(text, checksum)
		if err != nil {
			return nil, newErr(KindSyntax, "%v", err)
		}
		if !ok {
			want, _ := ChecksumCreate(text)
			return nil, newErr(KindChecksumMismatch, "expected %s got %s", want, checksum)
		}
	}

	if !strings.HasPrefix(text, "ct(") || !strings.HasSuffix(text, ")") {
		return nil, newErr(KindSyntax, "descriptor must be wrapped in ct(...)")
	}
	inner := text[3 : len(text)-1]

	parts := splitTopLevel(inner, ',')
	if len(parts) < 2 {
		return nil, newErr(KindSyntax, "ct() requires a blinding key and a spending descriptor")
	}
	blindingArg := parts[0]
	spendingArg := strings.Join(parts[1:], ",")

	policy, err := parseBlindingPolicy(blindingArg)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{Text: text, Checksum: checksum, Blinding: policy}

	if err := parseSpending(spendingArg, d); err != nil {
		return nil, err
	}

	if err := resolveNetwork(d); err != nil {
		return nil, err
	}

	return d, nil
}

// splitTopLevel splits s on sep, ignoring occurrences nested inside
// parentheses or angle brackets (used by the canonical multipath token).
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '<':
			depth++
		case ')', '>':
			depth--
		default:
			if s[i] == sep && depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func parseBlindingPolicy(arg string) (BlindingPolicy, error) {
	var policy BlindingPolicy

	if strings.HasPrefix(arg, "slip77(") && strings.HasSuffix(arg, ")") {
		hexKey := arg[len("slip77(") : len(arg)-1]
		b, err := hex.DecodeString(hexKey)
		if err != nil || len(b) != 32 {
			return policy, newErr(KindSyntax, "slip77 key must be 32-byte hex")
		}
		policy.Kind = BlindingSlip77
		copy(policy.Slip77Key[:], b)
		return policy, nil
	}

	if strings.Contains(arg, "multi(") {
		return policy, newErr(KindBlindingViewMultiUnsupported, "view blinding key may not itself be a multi-key expression")
	}

	key, err := hdkeychain.NewKeyFromString(arg)
	if err != nil {
		// An xprv followed by a derivation suffix carrying a wildcard is a
		// view key with a wildcard, not a bare key.
		if i := strings.IndexByte(arg, '/'); i > 0 && strings.Contains(arg, "*") {
			if k, kerr := hdkeychain.NewKeyFromString(arg[:i]); kerr == nil && k.IsPrivate() {
				return policy, newErr(KindBlindingViewWildcardUnsupported, "view xprv blinding key must not carry a wildcard")
			}
		}
		// Not a recognizable extended key and not slip77(...): this is
		// a bare blinding key, which spec §3 rejects.
		return policy, newErr(KindBlindingBareUnsupported, "bare blinding keys are not supported: %q", arg)
	}

	if key.IsPrivate() {
		if strings.Contains(arg, "*") {
			return policy, newErr(KindBlindingViewWildcardUnsupported, "view xprv blinding key must not carry a wildcard")
		}
		priv, err := key.ECPrivKey()
		if err != nil {
			return policy, newErr(KindSyntax, "%v", err)
		}
		policy.Kind = BlindingViewXprv
		policy.ViewKey = priv
		return policy, nil
	}

	policy.Kind = BlindingViewXpubOnly
	return policy, nil
}

func parseSpending(arg string, d *Descriptor) error {
	switch {
	case strings.HasPrefix(arg, "elwpkh(") && strings.HasSuffix(arg, ")"):
		inner := arg[len("elwpkh(") : len(arg)-1]
		ke, err := parseKeyExpr(inner)
		if err != nil {
			return err
		}
		d.Kind = KindWpkh
		d.Keys = []KeyExpr{ke}
		return nil

	case strings.HasPrefix(arg, "elsh(elwpkh(") && strings.HasSuffix(arg, "))"):
		inner := arg[len("elsh(elwpkh(") : len(arg)-2]
		ke, err := parseKeyExpr(inner)
		if err != nil {
			return err
		}
		d.Kind = KindShWpkh
		d.Keys = []KeyExpr{ke}
		return nil

	case strings.HasPrefix(arg, "elwsh(multi(") && strings.HasSuffix(arg, "))"):
		inner := arg[len("elwsh(multi(") : len(arg)-2]
		return parseMultisig(inner, d, KindWshMulti)

	case strings.HasPrefix(arg, "elwsh(sortedmulti(") && strings.HasSuffix(arg, "))"):
		inner := arg[len("elwsh(sortedmulti(") : len(arg)-2]
		return parseMultisig(inner, d, KindWshSortedMulti)

	case strings.HasPrefix(arg, "eltr(") && strings.HasSuffix(arg, ")"):
		inner := arg[len("eltr(") : len(arg)-1]
		ke, err := parseKeyExpr(inner)
		if err != nil {
			return err
		}
		d.Kind = KindTaprootKeyPath
		d.Keys = []KeyExpr{ke}
		return nil

	default:
		return newErr(KindNonSegwitV0, "unsupported or non-segwit-v0 spending descriptor: %q", arg)
	}
}

func parseMultisig(inner string, d *Descriptor, kind SpendingKind) error {
	parts := splitTopLevel(inner, ',')
	if len(parts) < 2 {
		return newErr(KindSyntax, "multi() requires a threshold and at least one key")
	}
	threshold, err := strconv.Atoi(parts[0])
	if err != nil {
		return newErr(KindSyntax, "invalid multisig threshold %q", parts[0])
	}
	keys := make([]KeyExpr, 0, len(parts)-1)
	for _, p := range parts[1:] {
		ke, err := parseKeyExpr(p)
		if err != nil {
			return err
		}
		keys = append(keys, ke)
	}
	d.Kind = kind
	d.Threshold = threshold
	d.Keys = keys
	return nil
}

func parseKeyExpr(s string) (KeyExpr, error) {
	var ke KeyExpr
	if !strings.HasPrefix(s, "[") {
		return ke, newErr(KindSyntax, "key expression %q missing key origin", s)
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return ke, newErr(KindSyntax, "key expression %q missing closing bracket", s)
	}
	origin := s[1:end]
	rest := s[end+1:]

	originParts := strings.Split(origin, "/")
	if len(originParts[0]) != 8 {
		return ke, newErr(KindSyntax, "key expression %q has malformed fingerprint", s)
	}
	fpBytes, err := hex.DecodeString(originParts[0])
	if err != nil || len(fpBytes) != 4 {
		return ke, newErr(KindSyntax, "key expression %q has malformed fingerprint", s)
	}
	copy(ke.Fingerprint[:], fpBytes)
	for _, comp := range originParts[1:] {
		idx, err := parsePathComponent(comp)
		if err != nil {
			return ke, newErr(KindSyntax, "%v", err)
		}
		ke.OriginPath = append(ke.OriginPath, idx)
	}

	slashIdx := strings.IndexByte(rest, '/')
	var xpubStr, suffix string
	if slashIdx < 0 {
		xpubStr = rest
		suffix = ""
	} else {
		xpubStr = rest[:slashIdx]
		suffix = rest[slashIdx:]
	}

	xpub, err := hdkeychain.NewKeyFromString(xpubStr)
	if err != nil {
		return ke, newErr(KindSyntax, "invalid xpub %q: %v", xpubStr, err)
	}
	ke.Xpub = xpub

	if suffix == "" {
		return ke, newErr(KindNoWildcard, "key expression %q has no wildcard", s)
	}

	ext, internal, hasInternal, err := parseSuffix(suffix)
	if err != nil {
		return ke, err
	}
	ke.ExternalSuffix = ext
	if hasInternal {
		ke.InternalSuffix = internal
	}

	return ke, nil
}

func parsePathComponent(comp string) (uint32, error) {
	hardened := false
	if strings.HasSuffix(comp, "h") || strings.HasSuffix(comp, "H") || strings.HasSuffix(comp, "'") {
		hardened = true
		comp = comp[:len(comp)-1]
	}
	n, err := strconv.ParseUint(comp, 10, 32)
	if err != nil {
		return 0, err
	}
	idx := uint32(n)
	if hardened {
		idx |= 0x80000000
	}
	return idx, nil
}

// parseSuffix parses the path suffix after an xpub (e.g. "/<0;1>/*" or
// "/0/*"), desugaring the canonical two-path multipath token into separate
// external/internal suffixes, per spec §4.B.
func parseSuffix(suffix string) (ext, internal []uint32, hasInternal bool, err error) {
	suffix = strings.TrimPrefix(suffix, "/")
	comps := strings.Split(suffix, "/")
	if len(comps) == 0 || comps[len(comps)-1] != "*" {
		return nil, nil, false, newErr(KindNoWildcard, "path suffix %q has no trailing wildcard", suffix)
	}
	comps = comps[:len(comps)-1]

	multipathIdx := -1
	for i, c := range comps {
		if strings.HasPrefix(c, "<") && strings.HasSuffix(c, ">") {
			multipathIdx = i
			break
		}
	}

	if multipathIdx < 0 {
		for _, c := range comps {
			idx, perr := parsePathComponent(c)
			if perr != nil {
				return nil, nil, false, newErr(KindSyntax, "%v", perr)
			}
			ext = append(ext, idx)
		}
		return ext, nil, false, nil
	}

	token := strings.Trim(comps[multipathIdx], "<>")
	branches := strings.Split(token, ";")
	if len(branches) != 2 || branches[0] != "0" || branches[1] != "1" {
		return nil, nil, false, newErr(KindMultipath, "unsupported multipath token <%s>: only the canonical <0;1> split is accepted", token)
	}

	for i, c := range comps {
		if i == multipathIdx {
			continue
		}
		idx, perr := parsePathComponent(c)
		if perr != nil {
			return nil, nil, false, newErr(KindSyntax, "%v", perr)
		}
		ext = append(ext, idx)
		internal = append(internal, idx)
	}
	ext = append(ext, 0)
	internal = append(internal, 1)
	return ext, internal, true, nil
}

// resolveNetwork checks that every key's extended-key network byte agrees,
// setting Descriptor.mainnet accordingly, per spec §4.B "is_mainnet".
func resolveNetwork(d *Descriptor) error {
	nets := []*chaincfg.Params{&chaincfg.MainNetParams, &chaincfg.TestNet3Params, &chaincfg.RegressionNetParams}
	var agreed *chaincfg.Params
	for _, ke := range d.Keys {
		var matched *chaincfg.Params
		for _, n := range nets {
			if ke.Xpub.IsForNet(n) {
				matched = n
				break
			}
		}
		if matched == nil {
			return newErr(KindSyntax, "xpub does not match any known network")
		}
		if agreed == nil {
			agreed = matched
		} else if agreed != matched {
			return newErr(KindSyntax, "descriptor keys disagree on network")
		}
	}
	if agreed != nil {
		d.mainnet = agreed == &chaincfg.MainNetParams
	}
	return nil
}
