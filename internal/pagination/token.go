package pagination

import (
	"strings"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/errors"
)

// Separator joins the store cursor and the bucket id in a token
const Separator = "_"

// Token is a decoded continuation token: "<cursor>_<bucketId>".
// An empty Cursor with a BucketID resumes at the start of that bucket.
// An empty BucketID is used by listings over a single unbucketed partition.
type Token struct {
	Cursor   string
	BucketID string
}

// Encode renders a continuation token
func Encode(cursor, bucketID string) string {
	return cursor + Separator + bucketID
}

// String renders the token in wire form
func (t Token) String() string {
	return Encode(t.Cursor, t.BucketID)
}

// Decode parses a continuation token. The token must split into exactly two
// segments around the separator; either segment may be empty.
func Decode(token string) (Token, error) {
	if token == "" {
		return Token{}, errors.MalformedToken(token, "empty token")
	}
	parts := strings.Split(token, Separator)
	if len(parts) != 2 {
		return Token{}, errors.MalformedToken(token, "expected exactly two segments")
	}
	return Token{Cursor: parts[0], BucketID: parts[1]}, nil
}
