package device

import (
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"

	"github.com/devicelab-dev/touchstone/pkg/core"
)

var boundsRe = regexp.MustCompile(`\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]`)

// ListElements dumps the UI hierarchy with uiautomator and returns every
// node that carries visible text (accessibility description as fallback).
func (d *AndroidDevice) ListElements() ([]core.Element, error) {
	// Dumping to /dev/tty streams the XML over exec-out without a
	// round-trip through /sdcard.
	out, err := d.adbRaw("exec-out", "uiautomator", "dump", "/dev/tty")
	if err != nil {
		return nil, err
	}
	return parseUIDump(out)
}

// parseUIDump extracts text-bearing elements from a uiautomator XML dump.
// The dump ends with a non-XML status line, which the decoder's trailing
// error conveniently ignores once the document element is closed.
func parseUIDump(data []byte) ([]core.Element, error) {
	// Cut the trailing "UI hierchary dumped to: ..." status line.
	if idx := strings.LastIndex(string(data), ">"); idx != -1 {
		data = data[:idx+1]
	}

	var elements []core.Element
	decoder := xml.NewDecoder(strings.NewReader(string(data)))

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "node" {
			continue
		}

		var text, desc, bounds string
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "text":
				text = attr.Value
			case "content-desc":
				desc = attr.Value
			case "bounds":
				bounds = attr.Value
			}
		}
		if text == "" {
			text = desc
		}
		if text == "" {
			continue
		}

		el, ok := elementFromBounds(text, bounds)
		if !ok {
			continue
		}
		elements = append(elements, el)
	}

	return elements, nil
}

// elementFromBounds parses a "[x1,y1][x2,y2]" bounds attribute.
func elementFromBounds(text, bounds string) (core.Element, bool) {
	m := boundsRe.FindStringSubmatch(bounds)
	if m == nil {
		return core.Element{}, false
	}
	x1, _ := strconv.Atoi(m[1])
	y1, _ := strconv.Atoi(m[2])
	x2, _ := strconv.Atoi(m[3])
	y2, _ := strconv.Atoi(m[4])
	if x2 <= x1 || y2 <= y1 {
		return core.Element{}, false
	}
	return core.Element{
		Text:   text,
		X:      x1,
		Y:      y1,
		Width:  x2 - x1,
		Height: y2 - y1,
	}, true
}
