package queryid

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// The bundle exports operation metadata as webpack modules of the shape
//
//	12345: e => { e.exports = {queryId:"abc", operationName:"Followers", ...} }
//
// exportRe anchors on that shape; the exported object itself is recovered
// by bracket matching because it nests arbitrarily deep.
var (
	exportRe      = regexp.MustCompile(`(\d+):\s*e\s*=>\s*\{\s*e\.exports\s*=\s*(\{)`)
	unquotedKeyRe = regexp.MustCompile(`(\w+):`)
)

// Extract pulls every exported operation object out of the obfuscated
// bundle source, keyed by webpack module id. Exports that do not carry a
// query id are skipped.
func Extract(jsCode string) (map[int]Details, error) {
	result := make(map[int]Details)

	for _, match := range exportRe.FindAllStringSubmatchIndex(jsCode, -1) {
		id, err := strconv.Atoi(jsCode[match[2]:match[3]])
		if err != nil {
			continue
		}

		start := match[5]
		end, err := findMatchingBrace(jsCode, start)
		if err != nil {
			return nil, fmt.Errorf("module %d: %w", id, err)
		}

		objectSrc := "{" + jsCode[start:end+1]
		var details Details
		if err := json.Unmarshal([]byte(quoteKeys(objectSrc)), &details); err != nil {
			// Not every export is an operation object.
			continue
		}
		if details.QueryID == "" || details.OperationName == "" {
			continue
		}
		result[id] = details
	}

	return result, nil
}

// quoteKeys turns JS object keys into JSON keys. Values in these exports
// are plain identifiers, strings, and arrays, so the rewrite is safe.
func quoteKeys(objectSrc string) string {
	return unquotedKeyRe.ReplaceAllString(objectSrc, `"$1":`)
}

// findMatchingBrace returns the index of the brace closing the object that
// opened just before start.
func findMatchingBrace(code string, start int) (int, error) {
	depth := 1
	for i := start; i < len(code); i++ {
		switch code[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("no matching closing brace found")
}
