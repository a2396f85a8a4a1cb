// Package tlmgr resolves missing-file tokens to TeX Live package names
// via tlmgr search and installs them. Both capabilities are behind small
// interfaces so the convergence loop can be tested without a TeX
// distribution.
package tlmgr

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"

	"latexmk-emu/internal/logger"
	"latexmk-emu/internal/texlog"
	"latexmk-emu/internal/types"
)

// Candidate is a resolved package name together with the token it was
// resolved from.
type Candidate struct {
	Package string
	Source  string
}

// Resolver maps missing-resource tokens to installable package names.
type Resolver interface {
	Resolve(ctx context.Context, resources []texlog.MissingResource) ([]Candidate, error)
}

// Installer installs packages by name.
type Installer interface {
	Install(ctx context.Context, packages []string) error
}

// SearchFunc performs one package search and returns the raw result
// lines. Production use shells out to tlmgr; tests supply fixtures.
type SearchFunc func(ctx context.Context, query string) (string, error)

// TlmgrResolver resolves tokens through `tlmgr search --file --global`.
type TlmgrResolver struct {
	search SearchFunc
}

// NewResolver creates a resolver backed by the tlmgr binary.
func NewResolver() *TlmgrResolver {
	return &TlmgrResolver{search: tlmgrSearch}
}

// NewResolverWithSearch creates a resolver with a custom search function.
func NewResolverWithSearch(search SearchFunc) *TlmgrResolver {
	return &TlmgrResolver{search: search}
}

// Resolve looks up every token and returns candidates de-duplicated by
// package name, preserving first-seen order. Tokens that cannot be
// resolved are logged at warning level and skipped.
func (r *TlmgrResolver) Resolve(ctx context.Context, resources []texlog.MissingResource) ([]Candidate, error) {
	var out []Candidate
	seen := make(map[string]bool)

	for _, res := range resources {
		pkgs, err := r.resolveOne(ctx, res)
		if err != nil {
			logger.Warn("package search failed", logger.String("token", res.Raw), logger.Err(err))
			continue
		}
		if len(pkgs) == 0 {
			logger.Warn("no package found for missing file", logger.String("token", res.Raw))
			continue
		}
		for _, pkg := range pkgs {
			if !seen[pkg] {
				seen[pkg] = true
				out = append(out, Candidate{Package: pkg, Source: res.Raw})
			}
		}
	}
	return out, nil
}

// fandol ships the default CJK fonts; its font names resolve to the
// package directly, skipping a search round-trip.
const fandolPrefix = "Fandol"

func (r *TlmgrResolver) resolveOne(ctx context.Context, res texlog.MissingResource) ([]string, error) {
	if strings.HasPrefix(res.Raw, fandolPrefix) {
		return []string{"fandol"}, nil
	}

	output, err := r.search(ctx, "/"+res.Query)
	if err != nil {
		return nil, err
	}
	return parseSearchResults(output, res.Query), nil
}

// parseSearchResults walks tlmgr's flat text protocol: lines ending in
// ":" name a package group, indented lines below it are file paths owned
// by that group. Only paths ending in exactly "/token" count — a bare
// substring match would let "mf" claim "mfplain".
func parseSearchResults(output, query string) []string {
	suffixRe, err := regexp.Compile("/" + query + "$")
	if err != nil {
		logger.Warn("invalid search query", logger.String("query", query), logger.Err(err))
		return nil
	}

	lines := strings.Split(output, "\n")
	// The first two lines of a result group are repository headers, not
	// matches.
	if len(lines) > 2 {
		lines = lines[2:]
	} else {
		lines = nil
	}

	var pkgs []string
	seen := make(map[string]bool)
	current := ""

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasSuffix(trimmed, ":") {
			current = strings.TrimSuffix(trimmed, ":")
			continue
		}
		if current == "" || !suffixRe.MatchString(trimmed) {
			continue
		}
		// Strip the architecture qualifier: metafont.x86_64-linux -> metafont.
		pkg := current
		if i := strings.Index(pkg, "."); i >= 0 {
			pkg = pkg[:i]
		}
		if pkg != "" && !seen[pkg] {
			seen[pkg] = true
			pkgs = append(pkgs, pkg)
		}
	}
	return pkgs
}

func tlmgrSearch(ctx context.Context, query string) (string, error) {
	cmd := exec.CommandContext(ctx, "tlmgr", "search", "--file", "--global", query)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// tlmgr exits non-zero when nothing matches; treat that as an
		// empty result, not a failure.
		if _, ok := err.(*exec.ExitError); ok {
			return stdout.String(), nil
		}
		return "", types.NewAppError(types.ErrInstall, "tlmgr search failed", err)
	}
	return stdout.String(), nil
}

// TlmgrInstaller installs packages through the tlmgr binary.
type TlmgrInstaller struct{}

// NewInstaller creates an installer backed by the tlmgr binary.
func NewInstaller() *TlmgrInstaller {
	return &TlmgrInstaller{}
}

// Install runs `tlmgr install` for the given package names.
func (i *TlmgrInstaller) Install(ctx context.Context, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	logger.Info("installing packages", logger.Strings("packages", packages))

	args := append([]string{"install"}, packages...)
	cmd := exec.CommandContext(ctx, "tlmgr", args...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	if err := cmd.Run(); err != nil {
		return types.NewAppErrorWithDetails(types.ErrInstall,
			"tlmgr install failed", strings.TrimSpace(combined.String()), err)
	}
	return nil
}
