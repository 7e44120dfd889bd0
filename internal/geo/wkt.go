package geo

import (
	"fmt"
	"strconv"
	"strings"
)

// horizontal CRS keywords of WKT1 and WKT2.
var horizontalKeywords = map[string]bool{
	"PROJCS": true, "PROJCRS": true, "PROJECTEDCRS": true,
	"GEOGCS": true, "GEOGCRS": true, "GEOGRAPHICCRS": true,
	"GEODCRS": true, "GEODETICCRS": true,
}

type wktNode struct {
	keyword  string
	values   []string
	children []*wktNode
}

// EPSGFromWKT returns the EPSG code of the horizontal CRS described by a WKT1
// or WKT2 string, taken from its outermost AUTHORITY or ID. For compound
// systems the first horizontal component is used. It returns 0 when no code
// is declared or the text does not parse.
func EPSGFromWKT(wkt string) int {
	root, err := parseWKT(wkt)
	if err != nil {
		return 0
	}

	switch strings.ToUpper(root.keyword) {
	case "COMPD_CS", "COMPOUNDCRS":
		for _, c := range root.children {
			if horizontalKeywords[strings.ToUpper(c.keyword)] {
				return c.epsg()
			}
		}
		return 0
	}
	return root.epsg()
}

func (n *wktNode) epsg() int {
	for _, c := range n.children {
		switch strings.ToUpper(c.keyword) {
		case "AUTHORITY", "ID":
		default:
			continue
		}
		if len(c.values) < 2 || !strings.EqualFold(c.values[0], "EPSG") {
			continue
		}
		if code, err := strconv.Atoi(c.values[1]); err == nil && code > 0 {
			return code
		}
	}
	return 0
}

type wktParser struct {
	s   string
	pos int
}

func parseWKT(s string) (*wktNode, error) {
	p := &wktParser{s: s}
	n, err := p.node()
	if err != nil {
		return nil, err
	}
	p.space()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("trailing data at offset %d", p.pos)
	}
	return n, nil
}

func (p *wktParser) space() {
	for p.pos < len(p.s) && strings.IndexByte(" \t\r\n", p.s[p.pos]) >= 0 {
		p.pos++
	}
}

func (p *wktParser) keyword() string {
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c == '_' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' {
			p.pos++
			continue
		}
		break
	}
	return p.s[start:p.pos]
}

func (p *wktParser) node() (*wktNode, error) {
	p.space()
	n := &wktNode{keyword: p.keyword()}
	if n.keyword == "" {
		return nil, fmt.Errorf("expected keyword at offset %d", p.pos)
	}
	p.space()
	if p.pos >= len(p.s) || (p.s[p.pos] != '[' && p.s[p.pos] != '(') {
		return nil, fmt.Errorf("expected '[' after %s", n.keyword)
	}
	p.pos++

	for {
		p.space()
		if p.pos >= len(p.s) {
			return nil, fmt.Errorf("unterminated %s", n.keyword)
		}
		switch c := p.s[p.pos]; {
		case c == '"':
			v, err := p.quoted()
			if err != nil {
				return nil, err
			}
			n.values = append(n.values, v)
		case c == '_' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z':
			save := p.pos
			p.keyword()
			p.space()
			bracket := p.pos < len(p.s) && (p.s[p.pos] == '[' || p.s[p.pos] == '(')
			p.pos = save
			if bracket {
				child, err := p.node()
				if err != nil {
					return nil, err
				}
				n.children = append(n.children, child)
			} else {
				n.values = append(n.values, p.bare())
			}
		default:
			n.values = append(n.values, p.bare())
		}

		p.space()
		if p.pos >= len(p.s) {
			return nil, fmt.Errorf("unterminated %s", n.keyword)
		}
		switch p.s[p.pos] {
		case ',':
			p.pos++
		case ']', ')':
			p.pos++
			return n, nil
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", p.s[p.pos], p.pos)
		}
	}
}

func (p *wktParser) quoted() (string, error) {
	p.pos++
	var b strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		p.pos++
		if c != '"' {
			b.WriteByte(c)
			continue
		}
		// "" is an escaped quote
		if p.pos < len(p.s) && p.s[p.pos] == '"' {
			b.WriteByte('"')
			p.pos++
			continue
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *wktParser) bare() string {
	start := p.pos
	for p.pos < len(p.s) && strings.IndexByte(",])", p.s[p.pos]) < 0 {
		p.pos++
	}
	return strings.TrimSpace(p.s[start:p.pos])
}
