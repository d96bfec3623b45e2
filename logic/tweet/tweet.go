// Package tweet defines the tweet record returned by the search service and
// decodes it from one line of the newline-delimited response stream.
package tweet

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

// Errors reported by Decode. Each is wrapped with the offending field name.
var (
	ErrMissingField     = errors.New("missing field")
	ErrNullField        = errors.New("null field")
	ErrUnknownField     = errors.New("unknown field")
	ErrNegativeCounter  = errors.New("negative counter")
	ErrUnexpectedParent = errors.New("parent_id set on a non-reply")
	ErrInvalidEncoding  = errors.New("invalid UTF-8")
)

// requiredFields is the exact key set of a wire record. parent_id must be
// present but may be null.
var requiredFields = [...]string{
	"id", "text", "lang", "username", "time", "permalink",
	"is_reply", "parent_id", "replies", "retweets", "favorites",
}

// nullableField is the only wire field allowed to carry null.
const nullableField = "parent_id"

var jsonNull = []byte("null")

// ParentID is the identifier of the tweet being replied to. It is a value,
// never dereferenced. The zero value means no parent.
type ParentID struct {
	ID    int64
	Valid bool
}

// SomeParent returns a valid ParentID for id.
func SomeParent(id int64) ParentID {
	return ParentID{ID: id, Valid: true}
}

// MarshalJSON encodes an invalid ParentID as null.
func (p ParentID) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, p.ID, 10), nil
}

// Tweet is an immutable snapshot of one tweet. All fields are comparable, so
// == is structural equality.
type Tweet struct {
	ID        int64    `json:"id"`
	Text      string   `json:"text"`
	Lang      string   `json:"lang"`
	Username  string   `json:"username"`
	Time      string   `json:"time"`
	Permalink string   `json:"permalink"`
	IsReply   bool     `json:"is_reply"`
	ParentID  ParentID `json:"parent_id"`
	Replies   int      `json:"replies"`
	Retweets  int      `json:"retweets"`
	Favorites int      `json:"favorites"`
}

// Parent returns the parent identifier and whether one is present.
func (t Tweet) Parent() (int64, bool) {
	return t.ParentID.ID, t.ParentID.Valid
}

// rawTweet mirrors the wire record. parent_id is a pointer so null decodes
// to nil.
type rawTweet struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Lang      string `json:"lang"`
	Username  string `json:"username"`
	Time      string `json:"time"`
	Permalink string `json:"permalink"`
	IsReply   bool   `json:"is_reply"`
	ParentID  *int64 `json:"parent_id"`
	Replies   int    `json:"replies"`
	Retweets  int    `json:"retweets"`
	Favorites int    `json:"favorites"`
}

// Decode parses one stream line into a Tweet. The line must be valid UTF-8
// holding a JSON object with exactly the wire field set. Trailing newline
// bytes are ignored by the JSON codec.
//
//	tw, err := tweet.Decode([]byte(`{"id":1,"text":"hi",...}`))
func Decode(line []byte) (Tweet, error) {
	if !utf8.Valid(line) {
		return Tweet{}, fmt.Errorf("tweet: %w", ErrInvalidEncoding)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return Tweet{}, fmt.Errorf("tweet: parse: %w", err)
	}
	if err := checkFieldSet(fields); err != nil {
		return Tweet{}, err
	}

	var raw rawTweet
	if err := json.Unmarshal(line, &raw); err != nil {
		return Tweet{}, fmt.Errorf("tweet: parse: %w", err)
	}

	for name, v := range map[string]int{"replies": raw.Replies, "retweets": raw.Retweets, "favorites": raw.Favorites} {
		if v < 0 {
			return Tweet{}, fmt.Errorf("tweet: %w: %s=%d", ErrNegativeCounter, name, v)
		}
	}

	tw := Tweet{
		ID:        raw.ID,
		Text:      raw.Text,
		Lang:      raw.Lang,
		Username:  raw.Username,
		Time:      raw.Time,
		Permalink: raw.Permalink,
		IsReply:   raw.IsReply,
		Replies:   raw.Replies,
		Retweets:  raw.Retweets,
		Favorites: raw.Favorites,
	}
	if raw.ParentID != nil {
		if !raw.IsReply {
			return Tweet{}, fmt.Errorf("tweet: %w: %d", ErrUnexpectedParent, *raw.ParentID)
		}
		tw.ParentID = SomeParent(*raw.ParentID)
	}
	return tw, nil
}

func checkFieldSet(fields map[string]json.RawMessage) error {
	for _, name := range requiredFields {
		v, ok := fields[name]
		if !ok {
			return fmt.Errorf("tweet: %w: %s", ErrMissingField, name)
		}
		if name != nullableField && bytes.Equal(bytes.TrimSpace(v), jsonNull) {
			return fmt.Errorf("tweet: %w: %s", ErrNullField, name)
		}
	}
	if len(fields) == len(requiredFields) {
		return nil
	}
	for name := range fields {
		if !slices.Contains(requiredFields[:], name) {
			return fmt.Errorf("tweet: %w: %s", ErrUnknownField, name)
		}
	}
	return nil
}
