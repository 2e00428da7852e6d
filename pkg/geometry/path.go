package geometry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidPath is returned for path data that cannot be parsed.
var ErrInvalidPath = errors.New("invalid path data")

// ParsePath reads M/L path data and scales every point by (scaleX, scaleY).
// Each M starts a new subpath, so a string joining several traced regions
// comes back as several polygons. Other commands are ignored.
func ParsePath(data string, scaleX, scaleY float64) ([][]PointF, error) {
	var (
		subpaths [][]PointF
		current  []PointF
	)

	for _, cmd := range splitCommands(data) {
		args, err := parseArgs(cmd[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		if len(args)%2 != 0 {
			return nil, fmt.Errorf("%w: odd coordinate count in %q", ErrInvalidPath, cmd)
		}

		switch cmd[0] {
		case 'M':
			if len(current) > 0 {
				subpaths = append(subpaths, current)
			}
			current = nil
			for i := 0; i < len(args); i += 2 {
				current = append(current, PointF{X: args[i] * scaleX, Y: args[i+1] * scaleY})
			}
		case 'L':
			for i := 0; i < len(args); i += 2 {
				current = append(current, PointF{X: args[i] * scaleX, Y: args[i+1] * scaleY})
			}
		}
	}
	if len(current) > 0 {
		subpaths = append(subpaths, current)
	}
	return subpaths, nil
}

// ParsePaths parses every path and flattens the subpaths.
func ParsePaths(paths []string, scaleX, scaleY float64) ([][]PointF, error) {
	var out [][]PointF
	for _, p := range paths {
		sub, err := ParsePath(p, scaleX, scaleY)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// pathCommands are the SVG path command letters. Exponent markers are not
// among them.
const pathCommands = "MmLlHhVvZzCcSsQqTtAa"

// splitCommands cuts data before every path command.
func splitCommands(data string) []string {
	var cmds []string
	start := -1
	for i, r := range data {
		if strings.ContainsRune(pathCommands, r) {
			if start >= 0 {
				cmds = append(cmds, data[start:i])
			}
			start = i
		}
	}
	if start >= 0 {
		cmds = append(cmds, data[start:])
	}
	return cmds
}

func parseArgs(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	args := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite coordinate %q", f)
		}
		args = append(args, v)
	}
	return args, nil
}
