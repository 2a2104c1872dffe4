// Package pathname parses storage paths into segments, ancestor chains, and
// access-control categories.
//
// A storage path is a "/"-separated sequence of segments. A trailing
// separator marks a directory; anything else names a document. The root path
// is "/" (or the empty string), whose segment list is empty.
package pathname

import "strings"

// IsDir reports whether p names a directory rather than a document.
func IsDir(p string) bool {
	return p == "" || strings.HasSuffix(p, "/")
}

// Split returns the path's segments in order, with no empty entries. The
// leading separator and, for directories, the trailing separator are
// dropped; "/a/b/" and "a/b" both split to ["a" "b"].
func Split(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Clean normalizes p to a canonical form: a single leading separator,
// collapsed empty segments, and the trailing separator preserved iff p named
// a directory.
func Clean(p string) string {
	dir := IsDir(p)
	segs := collapse(Split(p))
	if len(segs) == 0 {
		return "/"
	}
	out := "/" + strings.Join(segs, "/")
	if dir {
		out += "/"
	}
	return out
}

func collapse(segs []string) []string {
	out := segs[:0]
	for _, s := range segs {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Parents returns the ancestor directory paths of p ordered deepest-first,
// ending with the root "/". With includeSelf, p itself (cleaned) leads the
// list. For "/a/b/c" the ancestors are "/a/b/", "/a/", "/".
func Parents(p string, includeSelf bool) []string {
	segs := Split(p)
	var out []string
	if includeSelf {
		out = append(out, Clean(p))
	}
	for i := len(segs) - 1; i >= 0; i-- {
		if i == 0 {
			out = append(out, "/")
			continue
		}
		out = append(out, "/"+strings.Join(segs[:i], "/")+"/")
	}
	return out
}

// Category returns the access-control category of p: its first segment, or
// "public/<second>" when the first segment is literally "public". The root
// and a bare "/public/" have no category and return "".
func Category(p string) string {
	segs := Split(p)
	if len(segs) == 0 {
		return ""
	}
	if segs[0] == "public" {
		if len(segs) < 2 {
			return ""
		}
		return "public/" + segs[1]
	}
	return segs[0]
}

// Base returns the final segment of p, or "" for the root.
func Base(p string) string {
	segs := Split(p)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
