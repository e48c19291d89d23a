package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionPayloadHashCanonical(t *testing.T) {
	a := ActionPayload{Kind: ActionUpdateConfig, Body: []byte(`{"fee_threshold_sol":0.1,"sell_percent":50}`)}
	b := ActionPayload{Kind: ActionUpdateConfig, Body: []byte(`{ "sell_percent": 50, "fee_threshold_sol": 0.1 }`)}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)

	// Key order and whitespace are insignificant.
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestActionPayloadHashValueSensitive(t *testing.T) {
	a := ActionPayload{Kind: ActionUpdateConfig, Body: []byte(`{"fee_threshold_sol":0.1}`)}
	b := ActionPayload{Kind: ActionUpdateConfig, Body: []byte(`{"fee_threshold_sol":0.2}`)}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)

	assert.NotEqual(t, ha, hb)
}

func TestActionPayloadHashKindSeparation(t *testing.T) {
	a := ActionPayload{Kind: ActionSuspend}
	b := ActionPayload{Kind: ActionResume}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)

	assert.NotEqual(t, ha, hb)
}

func TestActionPayloadHashNilBody(t *testing.T) {
	a := ActionPayload{Kind: ActionAuthenticate}
	b := ActionPayload{Kind: ActionAuthenticate, Body: []byte(`null`)}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestActionPayloadHashNestedAndArrays(t *testing.T) {
	a := ActionPayload{Kind: ActionStartMarket, Body: []byte(`{"strategy":"spread","levels":[1,2,3],"limits":{"max":5,"min":1}}`)}
	b := ActionPayload{Kind: ActionStartMarket, Body: []byte(`{"limits":{"min":1,"max":5},"levels":[1,2,3],"strategy":"spread"}`)}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)

	assert.Equal(t, ha, hb)

	// Array order stays significant.
	c := ActionPayload{Kind: ActionStartMarket, Body: []byte(`{"limits":{"min":1,"max":5},"levels":[3,2,1],"strategy":"spread"}`)}
	hc, err := c.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestActionPayloadHashInvalidJSON(t *testing.T) {
	p := ActionPayload{Kind: ActionUpdateConfig, Body: []byte(`{not json`)}
	_, err := p.Hash()
	assert.Error(t, err)
}
