package script

import (
	"sort"
	"strings"

	"github.com/derekparker/trie"
)

var keywords = func() *trie.Trie {
	t := trie.New()
	for k := range kindNames {
		t.Add(kindNames[k], Kind(k))
	}
	return t
}()

// lookupKind returns the directive kind named by word.
func lookupKind(word string) (Kind, bool) {
	node, ok := keywords.Find(word)
	if !ok {
		return 0, false
	}
	return node.Meta().(Kind), true
}

// Suggest returns the directive keywords that word could be a misspelling
// of, shortest first. It returns nil for words that are valid keywords.
func Suggest(word string) []string {
	if _, ok := lookupKind(word); ok {
		return nil
	}
	r := keywords.FuzzySearch(word)
	if len(r) == 0 {
		// Fall back to the keywords sharing the first word of word.
		if i := strings.IndexByte(word, '_'); i > 0 {
			r = keywords.PrefixSearch(word[:i+1])
		}
	}
	sort.Slice(r, func(i, j int) bool {
		if len(r[i]) != len(r[j]) {
			return len(r[i]) < len(r[j])
		}
		return r[i] < r[j]
	})
	return r
}

// looksLikeKeyword reports whether word is written like a directive keyword:
// upper case letters, digits and underscores.
func looksLikeKeyword(word string) bool {
	if word == "" {
		return false
	}
	for _, ch := range word {
		switch {
		case ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9':
		case ch == '_':
		default:
			return false
		}
	}
	return true
}
