// Package asanaurl parses and generates app.asana.com URLs so that CLI
// identifiers can be a GID, an email, a name, or a pasted link.
package asanaurl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrParse is wrapped by every URL parse failure.
var ErrParse = errors.New("invalid asana url")

// Kind classifies what a URL points at.
type Kind string

const (
	KindTask      Kind = "task"
	KindProject   Kind = "project"
	KindPortfolio Kind = "portfolio"
	KindTeam      Kind = "team"
)

// Info is the parsed content of an Asana URL.
type Info struct {
	Kind Kind
	GID  string
	// ProjectGID is set for legacy task URLs, which carry the containing
	// project in the path.
	ProjectGID string
	// WorkspaceGID is set for URLs in the new /1/ format.
	WorkspaceGID string
}

// legacy project view suffixes: /0/<project_gid>/<suffix>
var viewSuffixes = map[string]bool{
	"list": true, "board": true, "timeline": true, "calendar": true,
	"overview": true, "messages": true, "files": true, "progress": true,
}

// Parse parses an Asana URL into its component identifiers.
//
// Legacy /0/ format:
//
//	https://app.asana.com/0/portfolio/<portfolio_gid>/list
//	https://app.asana.com/0/<project_gid>/<task_gid>
//	https://app.asana.com/0/<project_gid>[/list|/board|...]
//
// New /1/ format:
//
//	https://app.asana.com/1/<workspace_gid>/<project|portfolio|task|team>/<gid>/...
func Parse(input string) (*Info, error) {
	u, err := url.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if !strings.Contains(u.Hostname(), "asana.com") {
		return nil, fmt.Errorf("%w: not an Asana URL: %s", ErrParse, input)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return nil, fmt.Errorf("%w: empty path: %s", ErrParse, input)
	}

	switch segments[0] {
	case "0":
		return parseLegacy(input, segments[1:])
	case "1":
		return parseNew(input, segments[1:])
	}
	return nil, fmt.Errorf("%w: unexpected URL format: %s", ErrParse, input)
}

func parseNew(input string, rest []string) (*Info, error) {
	if len(rest) < 1 || !IsGID(rest[0]) {
		return nil, fmt.Errorf("%w: missing workspace GID: %s", ErrParse, input)
	}
	workspaceGID := rest[0]
	var entityType, gid string
	if len(rest) >= 3 {
		entityType, gid = rest[1], rest[2]
	}
	if !IsGID(gid) {
		return nil, fmt.Errorf("%w: missing entity GID: %s", ErrParse, input)
	}
	switch entityType {
	case "project":
		return &Info{Kind: KindProject, GID: gid, WorkspaceGID: workspaceGID}, nil
	case "portfolio":
		return &Info{Kind: KindPortfolio, GID: gid, WorkspaceGID: workspaceGID}, nil
	case "task":
		return &Info{Kind: KindTask, GID: gid, WorkspaceGID: workspaceGID}, nil
	case "team":
		return &Info{Kind: KindTeam, GID: gid, WorkspaceGID: workspaceGID}, nil
	}
	return nil, fmt.Errorf("%w: unknown entity type %q: %s", ErrParse, entityType, input)
}

func parseLegacy(input string, rest []string) (*Info, error) {
	if len(rest) > 0 && rest[0] == "portfolio" {
		if len(rest) < 2 || !IsGID(rest[1]) {
			return nil, fmt.Errorf("%w: missing portfolio GID: %s", ErrParse, input)
		}
		return &Info{Kind: KindPortfolio, GID: rest[1]}, nil
	}

	var seg1, seg2 string
	if len(rest) > 0 {
		seg1 = rest[0]
	}
	if len(rest) > 1 {
		seg2 = rest[1]
	}
	if !IsGID(seg1) {
		return nil, fmt.Errorf("%w: expected GID in path: %s", ErrParse, input)
	}

	if seg2 == "" || viewSuffixes[seg2] {
		return &Info{Kind: KindProject, GID: seg1}, nil
	}
	if IsGID(seg2) {
		return &Info{Kind: KindTask, GID: seg2, ProjectGID: seg1}, nil
	}
	return nil, fmt.Errorf("%w: could not parse: %s", ErrParse, input)
}

// Generate builds a shareable URL for an entity.
func Generate(kind Kind, gid string) string {
	switch kind {
	case KindProject:
		return fmt.Sprintf("https://app.asana.com/0/%s", gid)
	case KindPortfolio:
		return fmt.Sprintf("https://app.asana.com/0/portfolio/%s/list", gid)
	default:
		return fmt.Sprintf("https://app.asana.com/0/0/%s", gid)
	}
}

// IsGID reports whether s looks like an Asana GID (all digits).
func IsGID(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ResolveGID extracts a GID from a raw GID or an Asana URL. Other inputs
// (names, emails) pass through unchanged for later resolution against the
// store or the API.
func ResolveGID(input string) (string, error) {
	if IsGID(input) {
		return input, nil
	}
	if strings.Contains(input, "asana.com") {
		info, err := Parse(input)
		if err != nil {
			return "", err
		}
		return info.GID, nil
	}
	return input, nil
}
