package config

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
	"strings"

	"github.com/wesleywu/routesock/internal/iface"
	"github.com/wesleywu/routesock/route"
)

// IndexFunc resolves an interface name to its index.
type IndexFunc func(name string) (uint32, error)

// ParseRoutes parses route lines of the form
//
//	CIDR [via GATEWAY] [dev IFNAME]
//
// Blank lines and lines starting with # are skipped. A bare address is a
// host route.
func ParseRoutes(lines []string, resolve IndexFunc) ([]route.Route, error) {
	routes := make([]route.Route, 0, len(lines))

	for lineNum, line := range lines {
		line = strings.TrimSpace(line)

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		r, err := parseRouteLine(line, resolve)
		if err != nil {
			return nil, fmt.Errorf("invalid route at line %d: %s: %w", lineNum+1, line, err)
		}

		routes = append(routes, r)
	}

	return routes, nil
}

func parseRouteLine(line string, resolve IndexFunc) (route.Route, error) {
	fields := strings.Fields(line)
	r, err := route.Parse(fields[0])
	if err != nil {
		return route.Route{}, err
	}

	rest := fields[1:]
	for len(rest) > 0 {
		if len(rest) < 2 {
			return route.Route{}, fmt.Errorf("%q needs an argument", rest[0])
		}
		key, val := rest[0], rest[1]
		rest = rest[2:]

		switch key {
		case "via":
			gw, err := netip.ParseAddr(val)
			if err != nil {
				return route.Route{}, err
			}
			r = r.WithGateway(gw)
		case "dev":
			idx, err := resolve(val)
			if err != nil {
				return route.Route{}, err
			}
			r = r.WithIfIndex(idx)
		default:
			return route.Route{}, fmt.Errorf("unknown keyword %q", key)
		}
	}

	if err := r.Validate(); err != nil {
		return route.Route{}, err
	}
	return r, nil
}

// LoadRoutes reads a route list file, resolving dev names through the
// shared interface cache.
func LoadRoutes(file string) ([]route.Route, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", file, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", file, err)
	}

	return ParseRoutes(lines, iface.Index)
}
