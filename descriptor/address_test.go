package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lwkgo/lwk/elements"
)

func TestParseAddressRoundtripsUnconfidentialAndConfidential(t *testing.T) {
	t.Parallel()
	const text = "ct(slip77(9aa0dc2b7e04ddf4efd6ceb44307ee1749c5620a06048531da30ac8739b3e12c)," +
		"elwpkh([aabbccdd/84'/1'/0']tpubD6NzVbkrYhZ4WZaiWHz59q5EQ61bd6dUYfFwpH7pBmgyeYBgvrhzTwNjj5WpwW9hkp5PhSXhcn2WH3DKiANx7Chbrgu9iA8ooQcGNfGWNVY/<0;1>/*))"
	d, err := Parse(text)
	require.NoError(t, err)

	net := elements.Networks[elements.NetworkLocaltestLiquid]
	addr, err := d.Address(0, net)
	require.NoError(t, err)
	require.NotEmpty(t, addr.Confidential)
	require.NotEmpty(t, addr.Unconfidential)

	parsedConf, err := ParseAddress(addr.Confidential, net)
	require.NoError(t, err)
	require.Equal(t, addr.Script, parsedConf.Script)
	require.NotNil(t, parsedConf.BlindingKey)
	require.True(t, addr.BlindingKey.IsEqual(parsedConf.BlindingKey))

	parsedUnconf, err := ParseAddress(addr.Unconfidential, net)
	require.NoError(t, err)
	require.Equal(t, addr.Script, parsedUnconf.Script)
	require.Nil(t, parsedUnconf.BlindingKey)

	require.Error(t, ValidateAddressNetwork(parsedUnconf, true))
	require.NoError(t, ValidateAddressNetwork(parsedConf, true))
}

func TestParseAddressRejectsWrongNetwork(t *testing.T) {
	t.Parallel()
	const text = "ct(slip77(9aa0dc2b7e04ddf4efd6ceb44307ee1749c5620a06048531da30ac8739b3e12c)," +
		"elwpkh([aabbccdd/84'/1'/0']tpubD6NzVbkrYhZ4WZaiWHz59q5EQ61bd6dUYfFwpH7pBmgyeYBgvrhzTwNjj5WpwW9hkp5PhSXhcn2WH3DKiANx7Chbrgu9iA8ooQcGNfGWNVY/<0;1>/*))"
	d, err := Parse(text)
	require.NoError(t, err)

	local := elements.Networks[elements.NetworkLocaltestLiquid]
	addr, err := d.Address(0, local)
	require.NoError(t, err)

	mainnet := elements.Networks[elements.NetworkLiquid]
	_, err = ParseAddress(addr.Unconfidential, mainnet)
	require.Error(t, err)
}
