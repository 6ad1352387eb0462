package tiers

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() Table {
	return Table{
		{Name: "Bronze", Threshold: decimal.Zero, CommissionPct: decimal.NewFromInt(10), MLM2Pct: decimal.NewFromInt(2)},
		{Name: "Silver", Threshold: decimal.NewFromInt(1000), CommissionPct: decimal.NewFromInt(15), MLM2Pct: decimal.NewFromInt(3)},
		{Name: "Gold", Threshold: decimal.NewFromInt(5000), CommissionPct: decimal.NewFromInt(20), MLM2Pct: decimal.NewFromInt(5)},
	}
}

func TestResolveIndexLastMatchWins(t *testing.T) {
	table := testTable()

	cases := []struct {
		revenue string
		want    int
	}{
		{"0", 0},
		{"999.99", 0},
		{"1000", 1},
		{"4999.99", 1},
		{"5000", 2},
		{"250000", 2},
	}
	for _, tc := range cases {
		got, err := ResolveIndex(decimal.RequireFromString(tc.revenue), table)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "revenue %s", tc.revenue)
	}
}

func TestResolveIndexBelowAllThresholds(t *testing.T) {
	table := Table{
		{Name: "Starter", Threshold: decimal.NewFromInt(500), CommissionPct: decimal.NewFromInt(5)},
	}
	got, err := ResolveIndex(decimal.NewFromInt(10), table)
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestResolveIndexMonotone(t *testing.T) {
	table := testTable()
	prev := 0
	for revenue := int64(0); revenue <= 10000; revenue += 250 {
		got, err := ResolveIndex(decimal.NewFromInt(revenue), table)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, prev, "revenue %d", revenue)
		assert.Less(t, got, len(table))
		prev = got
	}
}

func TestResolveIndexEmptyTable(t *testing.T) {
	_, err := ResolveIndex(decimal.NewFromInt(100), nil)
	assert.Error(t, err)
}

func TestCommissionAndOverride(t *testing.T) {
	table := testTable()
	amount := decimal.RequireFromString("199.99")

	commission, err := Commission(amount, table, 1)
	require.NoError(t, err)
	assert.True(t, commission.Equal(decimal.RequireFromString("30.00")), "got %s", commission)

	override, err := Override(amount, table, 1)
	require.NoError(t, err)
	assert.True(t, override.Equal(decimal.RequireFromString("6.00")), "got %s", override)
}

func TestCommissionIndexOutOfRange(t *testing.T) {
	table := testTable()
	if _, err := Commission(decimal.NewFromInt(100), table, 7); err == nil {
		t.Fatal("expected error for out of range index")
	}
	if _, err := Override(decimal.NewFromInt(100), table, -1); err == nil {
		t.Fatal("expected error for negative index")
	}
}

func TestValidateRejectsBadTables(t *testing.T) {
	cases := map[string]Table{
		"empty": {},
		"too many rows": {
			{Name: "a", Threshold: decimal.NewFromInt(0), CommissionPct: decimal.NewFromInt(1)},
			{Name: "b", Threshold: decimal.NewFromInt(1), CommissionPct: decimal.NewFromInt(1)},
			{Name: "c", Threshold: decimal.NewFromInt(2), CommissionPct: decimal.NewFromInt(1)},
			{Name: "d", Threshold: decimal.NewFromInt(3), CommissionPct: decimal.NewFromInt(1)},
			{Name: "e", Threshold: decimal.NewFromInt(4), CommissionPct: decimal.NewFromInt(1)},
			{Name: "f", Threshold: decimal.NewFromInt(5), CommissionPct: decimal.NewFromInt(1)},
		},
		"unsorted thresholds": {
			{Name: "a", Threshold: decimal.NewFromInt(100), CommissionPct: decimal.NewFromInt(1)},
			{Name: "b", Threshold: decimal.NewFromInt(50), CommissionPct: decimal.NewFromInt(1)},
		},
		"duplicate thresholds": {
			{Name: "a", Threshold: decimal.NewFromInt(100), CommissionPct: decimal.NewFromInt(1)},
			{Name: "b", Threshold: decimal.NewFromInt(100), CommissionPct: decimal.NewFromInt(2)},
		},
		"missing name": {
			{Threshold: decimal.Zero, CommissionPct: decimal.NewFromInt(1)},
		},
		"percentage above 100": {
			{Name: "a", Threshold: decimal.Zero, CommissionPct: decimal.NewFromInt(150)},
		},
	}
	for name, table := range cases {
		assert.Error(t, table.Validate(), name)
	}
}

func TestParseTable(t *testing.T) {
	raw := []byte(`[
		{"name":"Bronze","threshold":"0","commission_pct":"10","mlm2_pct":"2","mlm3_pct":"0"},
		{"name":"Silver","threshold":"1000","commission_pct":"15","mlm2_pct":"3","mlm3_pct":"1"}
	]`)
	table, err := ParseTable(raw)
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, "Silver", table[1].Name)
	assert.True(t, table.Level3Defined())

	_, err = ParseTable([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}

func TestLevel3DefinedFalseWhenZero(t *testing.T) {
	assert.False(t, testTable().Level3Defined())
}

func TestNameAtClamps(t *testing.T) {
	table := testTable()
	assert.Equal(t, "Bronze", table.NameAt(-4))
	assert.Equal(t, "Gold", table.NameAt(99))
	assert.Equal(t, "Silver", table.NameAt(1))
	assert.Equal(t, "", Table{}.NameAt(0))
}
