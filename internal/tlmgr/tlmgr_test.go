package tlmgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latexmk-emu/internal/texlog"
)

const mfSearchOutput = `tlmgr: package repository https://mirror.example/tlnet
 (verified)
metafont.x86_64-darwin:
	bin/x86_64-darwin/mf
metapost.x86_64-darwin:
	bin/x86_64-darwin/mfplain
`

func fixedSearch(output string) SearchFunc {
	return func(ctx context.Context, query string) (string, error) {
		return output, nil
	}
}

func TestResolveSuffixExactMatch(t *testing.T) {
	// "mf" must resolve to metafont only: mfplain merely contains the
	// token and must not match.
	r := NewResolverWithSearch(fixedSearch(mfSearchOutput))

	got, err := r.Resolve(context.Background(), []texlog.MissingResource{{Raw: "mf", Query: "mf"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "metafont", got[0].Package)
	assert.Equal(t, "mf", got[0].Source)
}

func TestResolveStripsArchQualifier(t *testing.T) {
	output := "tlmgr: package repository https://mirror.example/tlnet\n" +
		"header\n" +
		"framed:\n" +
		"\ttexmf-dist/tex/latex/framed/framed.sty\n"
	r := NewResolverWithSearch(fixedSearch(output))

	got, err := r.Resolve(context.Background(), []texlog.MissingResource{{Raw: "framed.sty", Query: "framed.sty"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "framed", got[0].Package)
}

func TestResolveRegexQuery(t *testing.T) {
	output := "tlmgr: package repository https://mirror.example/tlnet\n" +
		"header\n" +
		"rsfs:\n" +
		"\ttexmf-dist/fonts/tfm/public/rsfs/rsfs10.tfm\n"
	r := NewResolverWithSearch(fixedSearch(output))

	got, err := r.Resolve(context.Background(), []texlog.MissingResource{
		{Raw: "rsfs10", Query: "rsfs10[.](tfm|afm|mf|otf)"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rsfs", got[0].Package)
}

func TestResolveFandolShortCircuit(t *testing.T) {
	searched := false
	r := NewResolverWithSearch(func(ctx context.Context, query string) (string, error) {
		searched = true
		return "", nil
	})

	got, err := r.Resolve(context.Background(), []texlog.MissingResource{
		{Raw: "FandolSong-Regular", Query: "FandolSong-Regular[.](tfm|afm|mf|otf)"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fandol", got[0].Package)
	assert.False(t, searched, "fandol fonts must not trigger a search round-trip")
}

func TestResolveUnresolvedTokenSkipped(t *testing.T) {
	r := NewResolverWithSearch(fixedSearch("tlmgr: package repository https://mirror.example/tlnet\nheader\n"))

	got, err := r.Resolve(context.Background(), []texlog.MissingResource{{Raw: "nosuch.sty", Query: "nosuch.sty"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveDeduplicatesPackages(t *testing.T) {
	output := "tlmgr: package repository https://mirror.example/tlnet\n" +
		"header\n" +
		"psnfss:\n" +
		"\ttexmf-dist/tex/latex/psnfss/times.sty\n" +
		"\ttexmf-dist/tex/latex/psnfss/helvet.sty\n"
	r := NewResolverWithSearch(fixedSearch(output))

	got, err := r.Resolve(context.Background(), []texlog.MissingResource{
		{Raw: "times.sty", Query: "times.sty"},
		{Raw: "helvet.sty", Query: "helvet.sty"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1, "both tokens resolve to psnfss once")
	assert.Equal(t, "psnfss", got[0].Package)
	assert.Equal(t, "times.sty", got[0].Source)
}

func TestParseSearchResultsHeaderLinesIgnored(t *testing.T) {
	// A path in the first two lines must not count as a match.
	output := "tlmgr: bin/x/mf\nbin/y/mf\nmetafont:\n\tbin/z/mf\n"
	pkgs := parseSearchResults(output, "mf")
	assert.Equal(t, []string{"metafont"}, pkgs)
}
