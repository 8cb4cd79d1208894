package engine

import (
	"path"
	"strings"
)

// heuristicLinks relates the files of one unit of work to each other:
// same-directory siblings, resolvers to schema files and tests to the
// implementation files beside them. Keys and values are normalized paths;
// a file with no link is absent.
func heuristicLinks(files []string, hints *HintTable) map[string][]string {
	files = normalizePaths(files)
	links := make(map[string][]string)
	add := func(from, to string) {
		if from == to {
			return
		}
		for _, existing := range links[from] {
			if existing == to {
				return
			}
		}
		links[from] = append(links[from], to)
	}

	var resolvers, schemas, tests, impls []string
	for _, f := range files {
		kinds := make(map[string]bool)
		for _, r := range hints.Match(f) {
			kinds[r.Name] = true
		}
		if kinds["resolver"] {
			resolvers = append(resolvers, f)
		}
		if kinds["schema"] {
			schemas = append(schemas, f)
		}
		if kinds["test"] || strings.Contains(strings.ToLower(path.Base(f)), "test") {
			tests = append(tests, f)
		} else {
			impls = append(impls, f)
		}
	}

	for i, a := range files {
		for _, b := range files[i+1:] {
			if path.Dir(a) == path.Dir(b) {
				add(a, b)
				add(b, a)
			}
		}
	}
	for _, r := range resolvers {
		for _, s := range schemas {
			add(r, s)
		}
	}
	for _, t := range tests {
		for _, impl := range impls {
			add(t, impl)
		}
	}

	if len(links) == 0 {
		return nil
	}
	return links
}
