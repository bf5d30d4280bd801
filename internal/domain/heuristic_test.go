package domain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "fixbench.dev/pkg/fixbench/internal/model"
)

func newAddBuilder(opts ContextOptions) HeuristicContextBuilder {
	return NewHeuristicContextBuilder(stubPython{scopes: addScopes}, opts)
}

func TestBuild_FN(t *testing.T) {
	hc, err := newAddBuilder(DefaultContextOptions()).Build(context.Background(), addRecord(), m.TierFN)
	require.NoError(t, err)

	fn, ok := hc.(*m.FNContext)
	require.True(t, ok)
	assert.Equal(t, "add", fn.Function)
	assert.Equal(t, m.Span{Start: 6, End: 9}, fn.Region)
	assert.False(t, fn.Fallback)
	assert.Equal(t, addSource[5:9], fn.Excerpt)
}

func TestBuild_FLN(t *testing.T) {
	hc, err := newAddBuilder(DefaultContextOptions()).Build(context.Background(), addRecord(), m.TierFLN)
	require.NoError(t, err)

	fln, ok := hc.(*m.FLNContext)
	require.True(t, ok)
	assert.Equal(t, []int{8}, fln.Markers)
	assert.Equal(t, []string{
		"def add(x, y):",
		"    total = x",
		"    total = total - y  # <BUGGY LINE>",
		"    return total",
	}, fln.Marked)
}

func TestBuild_CFNNeighbors(t *testing.T) {
	hc, err := newAddBuilder(DefaultContextOptions()).Build(context.Background(), addRecord(), m.TierCFN)
	require.NoError(t, err)

	cfn, ok := hc.(*m.CFNContext)
	require.True(t, ok)
	assert.Equal(t, m.Span{Start: 3, End: 12}, cfn.Extended)
	assert.False(t, cfn.Truncated)
	assert.Len(t, cfn.ExtendedExcerpt, 10)
	assert.Equal(t, "def helper(a):", cfn.ExtendedExcerpt[0])
	assert.Equal(t, "    pass", cfn.ExtendedExcerpt[9])
}

func TestBuild_CFNRadius(t *testing.T) {
	opts := DefaultContextOptions()
	opts.Radius = 1

	hc, err := newAddBuilder(opts).Build(context.Background(), addRecord(), m.TierCFN)
	require.NoError(t, err)

	cfn := hc.(*m.CFNContext)
	assert.Equal(t, m.Span{Start: 5, End: 10}, cfn.Extended)
	assert.Len(t, cfn.ExtendedExcerpt, 6)
}

func TestBuild_Containment(t *testing.T) {
	builder := newAddBuilder(DefaultContextOptions())
	ctx := context.Background()

	fn, err := builder.Build(ctx, addRecord(), m.TierFN)
	require.NoError(t, err)
	fln, err := builder.Build(ctx, addRecord(), m.TierFLN)
	require.NoError(t, err)
	cfn, err := builder.Build(ctx, addRecord(), m.TierCFN)
	require.NoError(t, err)

	unmarked := make([]string, 0, len(fln.Lines()))
	for _, line := range fln.Lines() {
		unmarked = append(unmarked, strings.TrimSuffix(line, "  "+m.BuggyLineMarker))
	}

	assert.Equal(t, fn.Lines(), unmarked, "FLN is FN plus markers")
	assert.Contains(t, m.ContextText(cfn), m.ContextText(fln), "CFN embeds the marked function")
	assert.Equal(t, fn.Base().Region, cfn.Base().Region)
}

func TestBuild_Idempotent(t *testing.T) {
	builder := newAddBuilder(DefaultContextOptions())

	for _, tier := range m.Tiers {
		first, err := builder.Build(context.Background(), addRecord(), tier)
		require.NoError(t, err)

		second, err := builder.Build(context.Background(), addRecord(), tier)
		require.NoError(t, err)

		assert.Equal(t, first, second, tier)
	}
}

func TestBuild_FallbackWindow(t *testing.T) {
	record := addRecord()
	record.Span = m.Span{Start: 14, End: 14}
	record.BuggyLines = []string{"VALUE = 1"}

	hc, err := newAddBuilder(DefaultContextOptions()).Build(context.Background(), record, m.TierFN)
	require.NoError(t, err)

	fn := hc.Base()
	assert.True(t, fn.Fallback)
	assert.Empty(t, fn.Function)
	assert.Equal(t, m.Span{Start: 1, End: 14}, fn.Region, "window clamped to the file")

	opts := DefaultContextOptions()
	opts.FallbackWindow = 3

	hc, err = newAddBuilder(opts).Build(context.Background(), record, m.TierFN)
	require.NoError(t, err)
	assert.Equal(t, m.Span{Start: 12, End: 14}, hc.Base().Region, "window shifted inside the file")
}

func TestBuild_SmallestEnclosingFunction(t *testing.T) {
	scopes := []m.Scope{
		{Name: "Box", Kind: m.ScopeClass, Span: m.Span{Start: 1, End: 14}, Parent: -1},
		{Name: "outer", Kind: m.ScopeMethod, Span: m.Span{Start: 3, End: 12}, Parent: 0},
		{Name: "inner", Kind: m.ScopeFunction, Span: m.Span{Start: 6, End: 9}, Parent: 1},
	}

	hc, err := NewHeuristicContextBuilder(stubPython{scopes: scopes}, DefaultContextOptions()).
		Build(context.Background(), addRecord(), m.TierFN)
	require.NoError(t, err)
	assert.Equal(t, "inner", hc.Base().Function)

	record := addRecord()
	record.Span = m.Span{Start: 8, End: 10}

	hc, err = NewHeuristicContextBuilder(stubPython{scopes: scopes}, DefaultContextOptions()).
		Build(context.Background(), record, m.TierFN)
	require.NoError(t, err)
	assert.Equal(t, "outer", hc.Base().Function, "the function must cover the whole span")
}

func TestBuild_Budget(t *testing.T) {
	opts := DefaultContextOptions()
	opts.MaxChars = 50

	_, err := newAddBuilder(opts).Build(context.Background(), addRecord(), m.TierFN)
	require.ErrorIs(t, err, m.ErrContextTooLarge)

	opts.Truncate = true

	_, err = newAddBuilder(opts).Build(context.Background(), addRecord(), m.TierCFN)
	require.ErrorIs(t, err, m.ErrContextTooLarge, "the marked function is never clipped")
}

func TestBuild_CFNTruncation(t *testing.T) {
	opts := DefaultContextOptions()
	opts.MaxChars = 121
	opts.Truncate = true

	hc, err := newAddBuilder(opts).Build(context.Background(), addRecord(), m.TierCFN)
	require.NoError(t, err)

	cfn := hc.(*m.CFNContext)
	assert.True(t, cfn.Truncated)
	assert.Equal(t, m.Span{Start: 5, End: 10}, cfn.Extended)
	assert.Equal(t, m.TruncationMarker, cfn.ExtendedExcerpt[0])
	assert.Equal(t, m.TruncationMarker, cfn.ExtendedExcerpt[len(cfn.ExtendedExcerpt)-1])
	assert.LessOrEqual(t, len(m.ContextText(cfn)), opts.MaxChars)

	opts.MaxChars = 119

	hc, err = newAddBuilder(opts).Build(context.Background(), addRecord(), m.TierCFN)
	require.NoError(t, err)
	assert.Equal(t, m.Span{Start: 6, End: 9}, hc.(*m.CFNContext).Extended, "shrunk down to the FLN region")

	opts.Truncate = false

	_, err = newAddBuilder(opts).Build(context.Background(), addRecord(), m.TierCFN)
	require.ErrorIs(t, err, m.ErrContextTooLarge)
}

func TestBuild_Errors(t *testing.T) {
	record := addRecord()
	record.Span = m.Span{Start: 20, End: 20}

	_, err := newAddBuilder(DefaultContextOptions()).Build(context.Background(), record, m.TierFN)
	require.ErrorIs(t, err, m.ErrInvalidSpan)

	broken := NewHeuristicContextBuilder(stubPython{err: errors.New("parser exploded")}, DefaultContextOptions())
	_, err = broken.Build(context.Background(), addRecord(), m.TierFN)
	require.ErrorContains(t, err, "parser exploded")

	_, err = newAddBuilder(DefaultContextOptions()).Build(context.Background(), addRecord(), m.Tier("XL"))
	require.Error(t, err)
}
